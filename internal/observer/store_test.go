package observer

import (
	"fmt"
	"testing"
	"time"

	"github.com/Iron-Ham/workchain/internal/chain"
	"github.com/Iron-Ham/workchain/internal/event"
	"github.com/Iron-Ham/workchain/internal/taskqueue"
	"github.com/Iron-Ham/workchain/internal/work"
)

// newRun creates a run whose descriptors carry the given types, all tagged
// with tag when it is non-empty.
func newRun(t *testing.T, bus *event.Bus, name, runID, tag string, types ...string) *taskqueue.EventQueue {
	t.Helper()
	descs := make([]chain.Descriptor, len(types))
	for i, typ := range types {
		descs[i] = chain.NewDescriptor(typ).AddTag(tag)
	}
	c, err := chain.Build(descs...)
	if err != nil {
		t.Fatalf("chain.Build: %v", err)
	}
	q, err := taskqueue.New(name, runID, c)
	if err != nil {
		t.Fatalf("taskqueue.New: %v", err)
	}
	return taskqueue.NewEventQueue(q, bus)
}

func startRun(t *testing.T, bus *event.Bus, name, runID, tag string, types ...string) *taskqueue.EventQueue {
	t.Helper()
	eq := newRun(t, bus, name, runID, tag, types...)
	eq.Announce()
	return eq
}

// drainUntilClosed reads C until it is closed.
func drainUntilClosed(t *testing.T, sub *Subscription) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-sub.C:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("C was not closed")
		}
	}
}

func complete(t *testing.T, eq *taskqueue.EventQueue) {
	t.Helper()
	for _, tr := range eq.Queue().Snapshot() {
		if _, err := eq.Start(tr.ID); err != nil {
			t.Fatalf("Start: %v", err)
		}
		if _, err := eq.Succeed(tr.ID, nil); err != nil {
			t.Fatalf("Succeed: %v", err)
		}
	}
}

func receive(t *testing.T, sub *Subscription) []work.TaskRun {
	t.Helper()
	select {
	case list, ok := <-sub.C:
		if !ok {
			t.Fatal("subscription closed unexpectedly")
		}
		return list
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a snapshot list")
		return nil
	}
}

func stateString(list []work.TaskRun) string {
	out := make([]work.State, len(list))
	for i, tr := range list {
		out[i] = tr.State
	}
	return fmt.Sprint(out)
}

func TestStore_ObserveUnknownName(t *testing.T) {
	store := NewStore(event.NewBus())
	defer store.Close()

	sub := store.ObserveByName("missing")
	defer sub.Close()

	list := receive(t, sub)
	if list == nil || len(list) != 0 {
		t.Errorf("first list = %v, want empty non-nil", list)
	}
}

func TestStore_ObserveByName(t *testing.T) {
	bus := event.NewBus()
	store := NewStore(bus)
	defer store.Close()

	sub := store.ObserveByName("img")
	defer sub.Close()
	receive(t, sub) // initial empty list

	eq := startRun(t, bus, "img", "run-1", "", "cleanup", "blur")
	first := eq.Queue().Snapshot()[0]
	if _, err := eq.Start(first.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := eq.Succeed(first.ID, work.Data{"image_uri": "tmp"}); err != nil {
		t.Fatalf("Succeed: %v", err)
	}

	want := []string{
		"[ENQUEUED BLOCKED]",
		"[RUNNING BLOCKED]",
		"[SUCCEEDED BLOCKED]",
		"[SUCCEEDED ENQUEUED]",
	}
	for i, w := range want {
		if got := stateString(receive(t, sub)); got != w {
			t.Fatalf("list %d = %s, want %s", i, got, w)
		}
	}

	snap := store.Snapshot("img")
	if snap[0].Output.String("image_uri") != "tmp" {
		t.Errorf("snapshot output = %v", snap[0].Output)
	}
}

func TestStore_LateSubscriberSeesCurrentState(t *testing.T) {
	bus := event.NewBus()
	store := NewStore(bus)
	defer store.Close()

	eq := startRun(t, bus, "img", "run-1", "", "a", "b")
	complete(t, eq)

	sub := store.ObserveByName("img")
	defer sub.Close()
	if got := stateString(receive(t, sub)); got != "[SUCCEEDED SUCCEEDED]" {
		t.Errorf("first list = %s", got)
	}
}

func TestStore_ReplaceSwitchesToNewRun(t *testing.T) {
	bus := event.NewBus()
	store := NewStore(bus)
	defer store.Close()

	old := startRun(t, bus, "img", "run-1", "", "a", "b")
	sub := store.ObserveByName("img")
	defer sub.Close()
	receive(t, sub)

	// Both TaskRuns are cancelled in one change but published one by one.
	old.Cancel("replaced")
	if got := stateString(receive(t, sub)); got != "[CANCELLED BLOCKED]" {
		t.Fatalf("first cancel list = %s", got)
	}
	if got := stateString(receive(t, sub)); got != "[CANCELLED CANCELLED]" {
		t.Fatalf("after cancel = %s", got)
	}

	startRun(t, bus, "img", "run-2", "", "c")
	list := receive(t, sub)
	if len(list) != 1 || list[0].RunID != "run-2" || list[0].TypeID != "c" {
		t.Fatalf("after replace = %+v", list)
	}
}

func TestStore_SupersededRunIsNotStreamed(t *testing.T) {
	bus := event.NewBus()
	store := NewStore(bus)
	defer store.Close()

	old := startRun(t, bus, "img", "run-1", "", "a")
	startRun(t, bus, "img", "run-2", "", "b")

	sub := store.ObserveByName("img")
	defer sub.Close()
	receive(t, sub)

	old.Cancel("replaced")

	select {
	case list := <-sub.C:
		t.Errorf("unexpected list for superseded run: %+v", list)
	case <-time.After(50 * time.Millisecond):
	}
	if got := store.Snapshot("img"); len(got) != 1 || got[0].RunID != "run-2" {
		t.Errorf("Snapshot() = %+v", got)
	}
}

func TestStore_Append(t *testing.T) {
	bus := event.NewBus()
	store := NewStore(bus)
	defer store.Close()

	eq := startRun(t, bus, "img", "run-1", "", "a")
	sub := store.ObserveByName("img")
	defer sub.Close()
	receive(t, sub)

	c, err := chain.Build(chain.NewDescriptor("b"))
	if err != nil {
		t.Fatalf("chain.Build: %v", err)
	}
	if _, ok := eq.Append(c); !ok {
		t.Fatal("Append refused on an active run")
	}
	list := receive(t, sub)
	if len(list) != 2 || list[1].TypeID != "b" || list[1].State != work.StateBlocked {
		t.Errorf("after append = %+v", list)
	}
}

func TestStore_ObserveByTag(t *testing.T) {
	bus := event.NewBus()
	store := NewStore(bus)
	defer store.Close()

	startRun(t, bus, "one", "run-1", "OUTPUT", "a", "b")
	startRun(t, bus, "two", "run-2", "OTHER", "c")
	third := startRun(t, bus, "three", "run-3", "OUTPUT", "d")

	sub := store.ObserveByTag("OUTPUT")
	defer sub.Close()

	list := receive(t, sub)
	var types []string
	for _, tr := range list {
		types = append(types, tr.TypeID)
	}
	if fmt.Sprint(types) != "[a b d]" {
		t.Fatalf("tagged types = %v, want [a b d]", types)
	}

	tr := third.Queue().Snapshot()[0]
	if _, err := third.Start(tr.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	list = receive(t, sub)
	if list[2].State != work.StateRunning {
		t.Errorf("tag list after start = %s", stateString(list))
	}
	if got := store.SnapshotByTag("OTHER"); len(got) != 1 || got[0].TypeID != "c" {
		t.Errorf("SnapshotByTag(OTHER) = %+v", got)
	}
}

func TestStore_Prune(t *testing.T) {
	bus := event.NewBus()
	store := NewStore(bus, WithRetention(time.Hour))
	defer store.Close()

	old := startRun(t, bus, "img", "run-1", "OUTPUT", "a")
	complete(t, old)
	current := startRun(t, bus, "img", "run-2", "OUTPUT", "b")
	complete(t, current)
	startRun(t, bus, "other", "run-3", "OUTPUT", "c")

	if got := len(store.SnapshotByTag("OUTPUT")); got != 3 {
		t.Fatalf("tagged before prune = %d, want 3", got)
	}

	if n := store.Prune(); n != 1 {
		t.Errorf("Prune() = %d, want 1 (superseded run only)", n)
	}
	if got := len(store.SnapshotByTag("OUTPUT")); got != 2 {
		t.Errorf("tagged after prune = %d, want 2", got)
	}

	store.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if n := store.Prune(); n != 1 {
		t.Errorf("Prune() after retention = %d, want 1", n)
	}
	if got := store.Snapshot("img"); len(got) != 0 {
		t.Errorf("expired run still visible: %+v", got)
	}
	if got := store.Snapshot("other"); len(got) != 1 {
		t.Error("unfinished run must never be pruned")
	}
	if names := store.Names(); fmt.Sprint(names) != "[other]" {
		t.Errorf("Names() = %v", names)
	}
}

func TestSubscription_Close(t *testing.T) {
	bus := event.NewBus()
	store := NewStore(bus)

	sub := store.ObserveByName("img")
	sub.Close()
	sub.Close()

	drainUntilClosed(t, sub)

	// A closed subscription no longer receives changes.
	startRun(t, bus, "img", "run-1", "", "a")

	other := store.ObserveByName("img")
	store.Close()
	drainUntilClosed(t, other)
}

func TestSubscription_SlowReaderDoesNotBlockPublisher(t *testing.T) {
	bus := event.NewBus()
	store := NewStore(bus)
	defer store.Close()

	sub := store.ObserveByName("img")
	defer sub.Close()

	runs := make([]*taskqueue.EventQueue, 50)
	for i := range runs {
		runs[i] = newRun(t, bus, "img", fmt.Sprintf("run-%d", i), "", "a")
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, eq := range runs {
			eq.Announce()
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked on an unread subscription")
	}

	// 1 initial list plus one per run start.
	for i := 0; i < 51; i++ {
		receive(t, sub)
	}
}
