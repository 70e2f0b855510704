package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/Iron-Ham/workchain/internal/chain"
	"github.com/Iron-Ham/workchain/internal/errors"
	"github.com/Iron-Ham/workchain/internal/observer"
	"github.com/Iron-Ham/workchain/internal/watch"
	"github.com/Iron-Ham/workchain/internal/work"
	"github.com/Iron-Ham/workchain/internal/workers"
	"github.com/spf13/cobra"
)

var (
	watchLevel int
	watchName  string
)

var watchCmd = &cobra.Command{
	Use:   "watch <image>",
	Short: "Blur an image again every time it changes",
	Long: `Submit the blur chain for an image and resubmit it with the replace
policy whenever the file is written. A change that arrives while a chain
is still running cancels that run, so only the latest version of the
image is saved.

Every saved image's URI is printed as it is produced. Stop with Ctrl+C.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().IntVarP(&watchLevel, "level", "l", 0, "number of blur passes (default from workers.blur_level)")
	watchCmd.Flags().StringVarP(&watchName, "name", "n", workers.ChainName, "unique chain name")
}

func runWatch(cmd *cobra.Command, args []string) error {
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

	level := watchLevel
	if level < 1 {
		level = s.cfg.Workers.BlurLevel
	}
	out := &syncWriter{w: cmd.OutOrStdout()}

	submit := func() error {
		h, action, err := s.manager.Submit(watchName, chain.PolicyReplace, workers.BlurChain(workers.FileURI(path), level)...)
		if err != nil {
			return err
		}
		out.Printf("Chain %s %s (run %s)\n", h.Name, action, h.RunID)
		return nil
	}

	outputs := s.manager.ObserveByTag(workers.TagOutput)
	defer outputs.Close()
	go printOutputs(outputs, out)

	w, err := watch.New(func(string) {
		if err := submit(); err != nil {
			out.Printf("resubmit failed: %v\n", err)
			return
		}
		if n := s.manager.Prune(); n > 0 {
			s.logger.Debug("pruned finished runs", "count", n)
		}
	}, watch.WithDebounce(s.cfg.Watch.Debounce()), watch.WithLogger(s.logger))
	if err != nil {
		return err
	}
	if err := w.Add(path); err != nil {
		w.Stop()
		return err
	}

	if err := submit(); err != nil {
		w.Stop()
		return err
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	w.Start()
	out.Printf("Watching %s\n", path)

	select {
	case <-ctx.Done():
	case <-w.Done():
	}
	w.Stop()
	return nil
}

// printOutputs prints each OUTPUT-tagged TaskRun once, when it succeeds.
func printOutputs(sub *observer.Subscription, out *syncWriter) {
	printed := make(map[string]bool)
	for list := range sub.C {
		for _, tr := range list {
			if tr.State != work.StateSucceeded || printed[tr.ID] {
				continue
			}
			printed[tr.ID] = true
			out.Printf("Saved %s\n", tr.Output.String(workers.KeyImageURI))
		}
	}
}
