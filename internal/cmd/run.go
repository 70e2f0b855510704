package cmd

import (
	"fmt"

	"github.com/Iron-Ham/workchain/internal/chain"
	"github.com/Iron-Ham/workchain/internal/errors"
	"github.com/Iron-Ham/workchain/internal/taskqueue"
	"github.com/Iron-Ham/workchain/internal/workmanager"
	"github.com/spf13/cobra"
)

var (
	runFiles  []string
	runPolicy string
)

var runCmd = &cobra.Command{
	Use:   "run -f <chain.yaml> [-f <chain.yaml>...]",
	Short: "Submit chains described in YAML files",
	Long: `Submit one or more chain definitions and wait for them to finish.

Files are submitted in the order given, so two files naming the same
chain exercise the submission policy: replace cancels the first run, keep
ignores the second file, and append adds the second file's tasks to the
end of the first run.

Example chain file:

  name: image_manipulation_work
  policy: append
  tasks:
    - type: cleanup
    - type: blur
      input:
        image_uri: file:///tmp/photo.png
    - type: save
      tags: [OUTPUT]`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringSliceVarP(&runFiles, "file", "f", nil, "chain definition file (repeatable)")
	runCmd.Flags().StringVarP(&runPolicy, "policy", "p", "", "policy for files that do not set one")
	_ = runCmd.MarkFlagRequired("file")
}

func runRun(cmd *cobra.Command, args []string) error {
	defs := make([]*chain.Definition, 0, len(runFiles))
	for _, f := range runFiles {
		def, err := chain.LoadFile(f)
		if err != nil {
			return fmt.Errorf("%s: %w", f, err)
		}
		defs = append(defs, def)
	}

	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	fallback, err := s.policy(runPolicy)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	var handles []workmanager.Handle
	seen := make(map[workmanager.Handle]bool)
	for i, def := range defs {
		h, action, err := s.manager.SubmitDefinition(def, fallback)
		if err != nil {
			return fmt.Errorf("%s: %w", runFiles[i], err)
		}
		fmt.Fprintf(out, "Chain %s %s (run %s) from %s\n", h.Name, action, h.RunID, runFiles[i])
		if !seen[h] {
			seen[h] = true
			handles = append(handles, h)
		}
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	var failed []string
	for _, h := range handles {
		fmt.Fprintf(out, "\n%s (run %s)\n", h.Name, h.RunID)
		outcome, err := follow(ctx, s.manager, h, out, false)
		if err != nil {
			return err
		}
		if outcome != taskqueue.OutcomeSucceeded {
			failed = append(failed, fmt.Sprintf("%s (%s)", h.Name, outcome))
		}
	}
	if len(failed) > 0 {
		return errors.NewChainError(fmt.Sprintf("%d chain run(s) did not succeed: %v", len(failed), failed), nil)
	}
	return nil
}
