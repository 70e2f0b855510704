package work

// OutcomeKind discriminates the result of a task body execution.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeFailure
	OutcomeCancelled
)

// String returns a human-readable name for the outcome kind.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Outcome is what a task body reports. Output is only meaningful for
// success; Err is only meaningful for failure.
type Outcome struct {
	Kind   OutcomeKind
	Output Data
	Err    error
}

// Success reports a completed execution with the given output.
func Success(output Data) Outcome {
	return Outcome{Kind: OutcomeSuccess, Output: output}
}

// Failure reports a failed execution. err may be nil.
func Failure(err error) Outcome {
	return Outcome{Kind: OutcomeFailure, Err: err}
}

// Cancelled reports that the body stopped because it was asked to.
func Cancelled() Outcome {
	return Outcome{Kind: OutcomeCancelled}
}
