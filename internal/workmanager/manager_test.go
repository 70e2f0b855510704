package workmanager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Iron-Ham/workchain/internal/chain"
	"github.com/Iron-Ham/workchain/internal/config"
	wcerrors "github.com/Iron-Ham/workchain/internal/errors"
	"github.com/Iron-Ham/workchain/internal/registry"
	"github.com/Iron-Ham/workchain/internal/taskqueue"
	"github.com/Iron-Ham/workchain/internal/testutil"
	"github.com/Iron-Ham/workchain/internal/work"
	"github.com/Iron-Ham/workchain/internal/workers"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Scheduler.Workers = 2
	cfg.Scheduler.InitialBackoffMs = 1
	cfg.Scheduler.MaxBackoffMs = 5
	cfg.Ledger.Dir = filepath.Join(dir, "ledger")
	cfg.Workers.OutputDir = filepath.Join(dir, "out")
	cfg.Workers.TempDir = filepath.Join(dir, "tmp")
	return cfg
}

func newManager(t *testing.T, cfg *config.Config, catalog *work.Catalog) *Manager {
	t.Helper()
	m, err := New(cfg, catalog, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(m.Close)
	return m
}

func wait(t *testing.T, m *Manager, h Handle) taskqueue.Outcome {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	outcome, err := m.Wait(ctx, h)
	if err != nil {
		t.Fatalf("Wait(%v): %v", h, err)
	}
	return outcome
}

func states(list []work.TaskRun) string {
	out := make([]work.State, len(list))
	for i, tr := range list {
		out[i] = tr.State
	}
	return fmt.Sprint(out)
}

// gate is a worker that blocks until released or cancelled.
type gate struct {
	started chan struct{}
	release chan struct{}
}

func newGate() *gate {
	return &gate{started: make(chan struct{}, 8), release: make(chan struct{})}
}

func (g *gate) body(ctx context.Context, _ work.Data) work.Outcome {
	g.started <- struct{}{}
	select {
	case <-g.release:
		return work.Success(nil)
	case <-ctx.Done():
		return work.Cancelled()
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Scheduler.Workers = 0
	if _, err := New(cfg, work.NewCatalog(), nil); err == nil {
		t.Fatal("expected validation error")
	} else if _, ok := err.(config.ValidationErrors); !ok {
		t.Errorf("error = %T, want config.ValidationErrors", err)
	}
}

func TestManager_ObserveUnknownName(t *testing.T) {
	m := newManager(t, testConfig(t), work.NewCatalog())

	sub := m.Observe("nobody")
	defer sub.Close()
	if list := testutil.Receive(t, sub.C); len(list) != 0 {
		t.Errorf("first list = %v, want empty", list)
	}
	if m.Cancel("nobody") {
		t.Error("Cancel of an unknown name should report false")
	}
}

func TestManager_DataThreading(t *testing.T) {
	catalog := work.NewCatalog()
	catalog.RegisterFunc("a", func(context.Context, work.Data) work.Outcome {
		return work.Success(work.Data{"x": "a"})
	})
	var got work.Data
	catalog.RegisterFunc("b", func(_ context.Context, in work.Data) work.Outcome {
		got = in
		return work.Success(nil)
	})
	m := newManager(t, testConfig(t), catalog)

	h, err := m.SubmitChain("n", "", chain.NewDescriptor("a"), chain.NewDescriptor("b"))
	if err != nil {
		t.Fatalf("SubmitChain: %v", err)
	}
	if outcome := wait(t, m, h); outcome != taskqueue.OutcomeSucceeded {
		t.Fatalf("outcome = %s", outcome)
	}
	if len(got) != 1 || got.String("x") != "a" {
		t.Errorf("b input = %v, want {x:a}", got)
	}
}

func TestManager_EmptyChain(t *testing.T) {
	m := newManager(t, testConfig(t), work.NewCatalog())
	_, err := m.SubmitChain("n", chain.PolicyReplace)
	if !errors.Is(err, wcerrors.ErrEmptyChain) {
		t.Errorf("error = %v, want ErrEmptyChain", err)
	}
}

func TestManager_ReplaceLeavesOneActiveRun(t *testing.T) {
	g := newGate()
	catalog := work.NewCatalog()
	catalog.RegisterFunc("slow", g.body)
	catalog.RegisterFunc("ok", func(context.Context, work.Data) work.Outcome { return work.Success(nil) })
	m := newManager(t, testConfig(t), catalog)

	first, err := m.SubmitChain("img", chain.PolicyReplace, chain.NewDescriptor("slow"), chain.NewDescriptor("ok"))
	if err != nil {
		t.Fatalf("SubmitChain: %v", err)
	}
	testutil.Receive(t, g.started)

	second, action, err := m.Submit("img", chain.PolicyReplace, chain.NewDescriptor("ok"))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if action != registry.ActionReplaced || second == first {
		t.Fatalf("action = %s, handles %v / %v", action, first, second)
	}

	if outcome := wait(t, m, first); outcome != taskqueue.OutcomeCancelled {
		t.Errorf("first outcome = %s", outcome)
	}
	if outcome := wait(t, m, second); outcome != taskqueue.OutcomeSucceeded {
		t.Errorf("second outcome = %s", outcome)
	}
	if got := m.Snapshot("img"); len(got) != 1 || got[0].RunID != second.RunID {
		t.Errorf("Snapshot() = %+v, want the replacement run only", got)
	}
	old, err := m.Tasks(first)
	if err != nil {
		t.Fatalf("Tasks(first): %v", err)
	}
	if got := states(old); got != "[CANCELLED CANCELLED]" {
		t.Errorf("superseded run states = %s", got)
	}
}

func TestManager_KeepReturnsExistingHandle(t *testing.T) {
	g := newGate()
	ran := make(chan struct{}, 1)
	catalog := work.NewCatalog()
	catalog.RegisterFunc("slow", g.body)
	catalog.RegisterFunc("new", func(context.Context, work.Data) work.Outcome {
		ran <- struct{}{}
		return work.Success(nil)
	})
	m := newManager(t, testConfig(t), catalog)

	first, _ := m.SubmitChain("img", chain.PolicyKeep, chain.NewDescriptor("slow"))
	testutil.Receive(t, g.started)

	kept, err := m.SubmitChain("img", chain.PolicyKeep, chain.NewDescriptor("new"))
	if err != nil {
		t.Fatalf("SubmitChain: %v", err)
	}
	if kept != first {
		t.Errorf("KEEP handle = %v, want %v", kept, first)
	}

	close(g.release)
	wait(t, m, first)
	select {
	case <-ran:
		t.Error("KEEP must never schedule the new descriptors")
	default:
	}
}

func TestManager_AppendRunsAfterPrior(t *testing.T) {
	g := newGate()
	catalog := work.NewCatalog()
	catalog.RegisterFunc("slow", g.body)
	catalog.RegisterFunc("after", func(context.Context, work.Data) work.Outcome { return work.Success(nil) })
	m := newManager(t, testConfig(t), catalog)

	first, _ := m.SubmitChain("img", chain.PolicyAppend, chain.NewDescriptor("slow"))
	testutil.Receive(t, g.started)

	appended, action, err := m.Submit("img", chain.PolicyAppend, chain.NewDescriptor("after"))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if action != registry.ActionAppended || appended != first {
		t.Fatalf("action = %s, handle %v want %v", action, appended, first)
	}

	close(g.release)
	if outcome := wait(t, m, first); outcome != taskqueue.OutcomeSucceeded {
		t.Fatalf("outcome = %s", outcome)
	}
	snap := m.Snapshot("img")
	if len(snap) != 2 || snap[1].TypeID != "after" || states(snap) != "[SUCCEEDED SUCCEEDED]" {
		t.Errorf("Snapshot() = %+v", snap)
	}
	if snap[1].StartedAt.Before(*snap[0].FinishedAt) {
		t.Error("appended task started before the prior task finished")
	}
}

func TestManager_ShortCircuit(t *testing.T) {
	catalog := work.NewCatalog()
	ok := func(context.Context, work.Data) work.Outcome { return work.Success(nil) }
	catalog.RegisterFunc("ok", ok)
	catalog.RegisterFunc("bad", func(context.Context, work.Data) work.Outcome {
		return work.Failure(errors.New("boom"))
	})
	m := newManager(t, testConfig(t), catalog)

	h, _ := m.SubmitChain("n", chain.PolicyReplace,
		chain.NewDescriptor("ok"), chain.NewDescriptor("bad"), chain.NewDescriptor("ok"))
	if outcome := wait(t, m, h); outcome != taskqueue.OutcomeFailed {
		t.Fatalf("outcome = %s", outcome)
	}
	if got := states(m.Snapshot("n")); got != "[SUCCEEDED FAILED CANCELLED]" {
		t.Errorf("states = %s", got)
	}
}

func TestManager_WaitUnknownHandle(t *testing.T) {
	m := newManager(t, testConfig(t), work.NewCatalog())
	_, err := m.Wait(context.Background(), Handle{Name: "n", RunID: "missing"})
	if !errors.Is(err, wcerrors.ErrUnknownName) {
		t.Errorf("Wait() error = %v, want not found", err)
	}
}

func imageCatalog(cfg *config.Config) *work.Catalog {
	catalog := work.NewCatalog()
	workers.Register(catalog, workers.Config{
		TempDir:   cfg.Workers.ResolveTempDir(),
		OutputDir: cfg.Workers.ResolveOutputDir(""),
		Delay:     cfg.Workers.Delay(),
		Sigma:     cfg.Workers.BlurSigma,
	}, nil)
	return catalog
}

func TestManager_ImageChain(t *testing.T) {
	cfg := testConfig(t)
	m := newManager(t, cfg, imageCatalog(cfg))
	src := testutil.WriteImage(t, t.TempDir(), "in.png", 24, 24)

	outputs := m.ObserveByTag(workers.TagOutput)
	defer outputs.Close()
	testutil.Receive(t, outputs.C)

	h, err := m.SubmitChain(workers.ChainName, chain.PolicyReplace,
		workers.BlurChain(workers.FileURI(src), 2)...)
	if err != nil {
		t.Fatalf("SubmitChain: %v", err)
	}
	if outcome := wait(t, m, h); outcome != taskqueue.OutcomeSucceeded {
		t.Fatalf("outcome = %s (%+v)", outcome, m.Snapshot(workers.ChainName))
	}

	saved := testutil.ReceiveUntil(t, outputs.C, func(list []work.TaskRun) bool {
		return len(list) == 1 && list[0].State == work.StateSucceeded
	})
	path, err := workers.PathFromURI(saved[0].Output.String(workers.KeyImageURI))
	if err != nil {
		t.Fatalf("save output: %v", err)
	}
	if filepath.Dir(path) != cfg.Workers.OutputDir {
		t.Errorf("saved to %s, want under %s", path, cfg.Workers.OutputDir)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("saved image missing: %v", err)
	}

	rec, err := taskqueue.LoadRecord(cfg.Ledger.Dir, workers.ChainName)
	if err != nil {
		t.Fatalf("LoadRecord: %v", err)
	}
	if rec.RunID != h.RunID || len(rec.Tasks) != 4 {
		t.Errorf("ledger record = %+v", rec)
	}
}

func TestManager_ImageChainCancelMidBlur(t *testing.T) {
	cfg := testConfig(t)
	cfg.Workers.DelayMs = 200
	m := newManager(t, cfg, imageCatalog(cfg))
	src := testutil.WriteImage(t, t.TempDir(), "in.png", 8, 8)

	sub := m.Observe(workers.ChainName)
	defer sub.Close()

	h, err := m.SubmitChain(workers.ChainName, chain.PolicyReplace,
		workers.BlurChain(workers.FileURI(src), 1)...)
	if err != nil {
		t.Fatalf("SubmitChain: %v", err)
	}

	testutil.ReceiveUntil(t, sub.C, func(list []work.TaskRun) bool {
		return len(list) == 3 && list[1].State == work.StateRunning
	})
	if !m.Cancel(workers.ChainName) {
		t.Fatal("Cancel reported no active run")
	}

	if outcome := wait(t, m, h); outcome != taskqueue.OutcomeCancelled {
		t.Fatalf("outcome = %s", outcome)
	}
	if got := states(m.Snapshot(workers.ChainName)); got != "[SUCCEEDED CANCELLED CANCELLED]" {
		t.Errorf("states = %s", got)
	}
	if entries, _ := os.ReadDir(cfg.Workers.OutputDir); len(entries) != 0 {
		t.Errorf("output dir should be empty after cancel, got %d entries", len(entries))
	}
}

func TestManager_Prune(t *testing.T) {
	catalog := work.NewCatalog()
	catalog.RegisterFunc("ok", func(context.Context, work.Data) work.Outcome { return work.Success(nil) })
	m := newManager(t, testConfig(t), catalog)

	first, _ := m.SubmitChain("n", chain.PolicyReplace, chain.NewDescriptor("ok"))
	wait(t, m, first)
	second, _ := m.SubmitChain("n", chain.PolicyReplace, chain.NewDescriptor("ok"))
	wait(t, m, second)

	if n := m.Prune(); n != 1 {
		t.Errorf("Prune() = %d, want 1", n)
	}
	if _, err := m.Wait(context.Background(), first); err == nil {
		t.Error("pruned handle should be forgotten")
	}
	if got := m.Snapshot("n"); len(got) != 1 || got[0].RunID != second.RunID {
		t.Errorf("Snapshot() = %+v", got)
	}
}

func TestManager_Close(t *testing.T) {
	g := newGate()
	catalog := work.NewCatalog()
	catalog.RegisterFunc("slow", g.body)
	m, err := New(testConfig(t), catalog, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	h, _ := m.SubmitChain("n", chain.PolicyReplace, chain.NewDescriptor("slow"))
	testutil.Receive(t, g.started)
	sub := m.Observe("n")

	m.Close()
	m.Close()

	if outcome := wait(t, m, h); outcome != taskqueue.OutcomeCancelled {
		t.Errorf("outcome after Close = %s", outcome)
	}
	testutil.Drain(t, sub.C)
	if _, err := m.SubmitChain("n", chain.PolicyReplace, chain.NewDescriptor("slow")); !errors.Is(err, wcerrors.ErrSchedulerClosed) {
		t.Errorf("submit after Close error = %v", err)
	}
}
