package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/Iron-Ham/workchain/internal/errors"
	"github.com/Iron-Ham/workchain/internal/taskqueue"
	"github.com/Iron-Ham/workchain/internal/tui"
	"github.com/Iron-Ham/workchain/internal/workers"
	"github.com/Iron-Ham/workchain/internal/workmanager"
	"github.com/spf13/cobra"
)

var (
	blurLevel  int
	blurPolicy string
	blurName   string
	blurPlain  bool
)

var blurCmd = &cobra.Command{
	Use:   "blur <image>",
	Short: "Blur an image and save the result",
	Long: `Blur an image by submitting a cleanup, blur and save chain.

The chain cleans the temporary directory, applies the blur filter --level
times and copies the final image to the output directory. The saved
image's URI is printed when the chain succeeds.

When stdout is a terminal the chain's progress is shown live; press c to
cancel the chain or q to quit, which also cancels it.`,
	Args: cobra.ExactArgs(1),
	RunE: runBlur,
}

func init() {
	rootCmd.AddCommand(blurCmd)
	blurCmd.Flags().IntVarP(&blurLevel, "level", "l", 0, "number of blur passes (default from workers.blur_level)")
	blurCmd.Flags().StringVarP(&blurPolicy, "policy", "p", "", "policy when the name is in use: replace, keep or append")
	blurCmd.Flags().StringVarP(&blurName, "name", "n", workers.ChainName, "unique chain name")
	blurCmd.Flags().BoolVar(&blurPlain, "plain", false, "print progress as plain text instead of the live view")
}

func runBlur(cmd *cobra.Command, args []string) error {
	path, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("failed to resolve image path: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		return errors.NewValidationError("image not found").WithField("image").WithCause(err)
	}

	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	policy, err := s.policy(blurPolicy)
	if err != nil {
		return err
	}
	level := blurLevel
	if level < 1 {
		level = s.cfg.Workers.BlurLevel
	}

	out := cmd.OutOrStdout()
	h, action, err := s.manager.Submit(blurName, policy, workers.BlurChain(workers.FileURI(path), level)...)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Chain %s %s (run %s, %d blur passes)\n", h.Name, action, h.RunID, level)

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	outcome, err := follow(ctx, s.manager, h, out, !blurPlain && isTerminal(out))
	if err != nil {
		return err
	}
	return outcomeError(h.Name, outcome)
}

// follow tracks the run until it finishes and prints its final task list.
// When ctx is done first the chain is cancelled.
func follow(ctx context.Context, mgr *workmanager.Manager, h workmanager.Handle, out io.Writer, live bool) (taskqueue.Outcome, error) {
	if live {
		sub := mgr.Observe(h.Name)
		m := tui.NewModel(h.Name, sub.C, func() { mgr.Cancel(h.Name) })
		tasks, err := tui.Run(ctx, m)
		sub.Close()
		if err != nil {
			return taskqueue.OutcomePending, err
		}
		if !tui.Finished(tasks) {
			mgr.Cancel(h.Name)
		}
	}

	outcome, err := mgr.Wait(ctx, h)
	if err != nil && ctx.Err() != nil {
		mgr.Cancel(h.Name)
		outcome, err = mgr.Wait(context.Background(), h)
	}
	if err != nil {
		return outcome, err
	}

	tasks, err := mgr.Tasks(h)
	if err != nil {
		return outcome, err
	}
	fmt.Fprintln(out, tui.RenderTasks(tasks, ""))
	fmt.Fprintf(out, "%s: %s\n", outcome, tui.Summary(tasks))
	return outcome, nil
}

func outcomeError(name string, outcome taskqueue.Outcome) error {
	if outcome == taskqueue.OutcomeSucceeded {
		return nil
	}
	err := errors.NewChainError("run "+outcome.String(), nil).WithName(name)
	if outcome == taskqueue.OutcomeCancelled {
		err.WithSeverity(errors.SeverityWarning)
	}
	return err
}
