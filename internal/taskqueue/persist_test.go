package taskqueue

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/Iron-Ham/workchain/internal/work"
)

func finishedQueue(t *testing.T, name string) *Queue {
	t.Helper()
	q := makeQueue(t, "cleanup", "blur")
	q.name = name
	for _, r := range q.Snapshot() {
		q.Start(r.ID)
		q.Succeed(r.ID, work.Data{"image_uri": "file:///tmp/out.png"})
	}
	return q
}

func TestSaveAndLoadRecord(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "ledger")
	q := finishedQueue(t, "image-manipulation-work")

	if err := SaveRecord(dir, q.Record()); err != nil {
		t.Fatalf("SaveRecord: %v", err)
	}

	r, err := LoadRecord(dir, "image-manipulation-work")
	if err != nil {
		t.Fatalf("LoadRecord: %v", err)
	}
	if r.RunID != "run-1" || r.Outcome != OutcomeSucceeded {
		t.Errorf("record = %+v", r)
	}
	if r.FinishedAt == nil || r.CreatedAt.IsZero() {
		t.Error("timestamps should survive the round trip")
	}
	if len(r.Tasks) != 2 || r.Tasks[1].Output.String("image_uri") != "file:///tmp/out.png" {
		t.Errorf("tasks = %+v", r.Tasks)
	}
	if s := r.Status(); s.Succeeded != 2 {
		t.Errorf("Status() = %+v", s)
	}
}

func TestSaveRecord_AtomicWrite(t *testing.T) {
	dir := t.TempDir()
	q := finishedQueue(t, "img")

	if err := SaveRecord(dir, q.Record()); err != nil {
		t.Fatalf("SaveRecord: %v", err)
	}
	if _, err := os.Stat(recordPath(dir, "img") + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file should not exist after successful save")
	}
}

func TestSaveRecord_ReplacesPrevious(t *testing.T) {
	dir := t.TempDir()
	first := finishedQueue(t, "img")
	second := finishedQueue(t, "img")
	second.runID = "run-2"

	if err := SaveRecord(dir, first.Record()); err != nil {
		t.Fatalf("SaveRecord: %v", err)
	}
	if err := SaveRecord(dir, second.Record()); err != nil {
		t.Fatalf("SaveRecord: %v", err)
	}

	r, err := LoadRecord(dir, "img")
	if err != nil {
		t.Fatalf("LoadRecord: %v", err)
	}
	if r.RunID != "run-2" {
		t.Errorf("RunID = %q, want run-2", r.RunID)
	}
}

func TestLoadRecord_NotFound(t *testing.T) {
	_, err := LoadRecord(t.TempDir(), "missing")
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("LoadRecord error = %v, want os.ErrNotExist", err)
	}
}

func TestLoadRecord_InvalidJSON(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(recordPath(dir, "bad"), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadRecord(dir, "bad"); err == nil {
		t.Error("expected an error for invalid JSON")
	}
}

func TestListRecords(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"zeta", "alpha/with/slashes", "mid"} {
		if err := SaveRecord(dir, finishedQueue(t, name).Record()); err != nil {
			t.Fatalf("SaveRecord(%s): %v", name, err)
		}
	}

	records, err := ListRecords(dir)
	if err != nil {
		t.Fatalf("ListRecords: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	want := []string{"alpha/with/slashes", "mid", "zeta"}
	for i, r := range records {
		if r.Name != want[i] {
			t.Errorf("records[%d].Name = %q, want %q", i, r.Name, want[i])
		}
	}

	none, err := ListRecords(filepath.Join(dir, "absent"))
	if err != nil || len(none) != 0 {
		t.Errorf("ListRecords(missing dir) = %v, %v", none, err)
	}
}
