// Package chain builds linear chains of task descriptors.
//
// A [Descriptor] is the immutable description of one task: the worker type to
// run, its explicit input, its tags and its retry budget. [Build] turns an
// ordered list of descriptors into a [Chain] in which each node's input
// defaults to its predecessor's output.
//
// Chains are strictly linear. Fan-out and fan-in are not supported.
//
// # Usage
//
//	c, err := chain.Begin(chain.NewDescriptor("cleanup")).
//	    Then(chain.NewDescriptor("blur").WithInput(work.Data{"image_uri": uri})).
//	    Then(chain.NewDescriptor("save").AddTag("OUTPUT")).
//	    Build()
//
// Chain definitions can also be loaded from YAML with [LoadFile].
package chain
