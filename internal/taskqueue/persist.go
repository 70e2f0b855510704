package taskqueue

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Iron-Ham/workchain/internal/work"
)

const recordExt = ".json"

// Record is the ledger entry of a finished chain run.
type Record struct {
	Name       string         `json:"name"`
	RunID      string         `json:"run_id"`
	Outcome    Outcome        `json:"outcome"`
	CreatedAt  time.Time      `json:"created_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
	Tasks      []work.TaskRun `json:"tasks"`
}

// Status counts the record's TaskRuns by state.
func (r Record) Status() RunStatus {
	var s RunStatus
	for _, t := range r.Tasks {
		s.add(t.State)
	}
	return s
}

// Record returns the ledger entry for the run's current state.
func (q *Queue) Record() Record {
	q.mu.Lock()
	defer q.mu.Unlock()

	r := Record{
		Name:      q.name,
		RunID:     q.runID,
		Outcome:   q.outcome,
		CreatedAt: q.createdAt,
		Tasks:     q.snapshotLocked(),
	}
	if q.finishedAt != nil {
		ts := *q.finishedAt
		r.FinishedAt = &ts
	}
	return r
}

// SaveRecord writes r to {dir}/{name}.json, replacing the previous record of
// the same name. The write is atomic: data is written to a temporary file
// first, then renamed into place. A file lock is held during the operation
// for cross-process safety.
func SaveRecord(dir string, r Record) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create ledger dir: %w", err)
	}

	fl := NewFileLock(dir)
	if err := fl.Lock(); err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	defer func() { _ = fl.Unlock() }()

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	target := recordPath(dir, r.Name)
	tmp := target + ".tmp"

	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp) // best-effort cleanup
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// LoadRecord reads the ledger entry for name. A missing entry yields an
// error matching os.ErrNotExist.
func LoadRecord(dir, name string) (*Record, error) {
	fl := NewFileLock(dir)
	if err := fl.Lock(); err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	defer func() { _ = fl.Unlock() }()

	return readRecord(recordPath(dir, name))
}

// ListRecords reads every ledger entry in dir, sorted by name. A missing
// directory yields no records.
func ListRecords(dir string) ([]Record, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger dir: %w", err)
	}

	fl := NewFileLock(dir)
	if err := fl.Lock(); err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	defer func() { _ = fl.Unlock() }()

	var records []Record
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), recordExt) {
			continue
		}
		r, err := readRecord(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		records = append(records, *r)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Name < records[j].Name })
	return records, nil
}

func readRecord(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read record: %w", err)
	}
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("unmarshal record %s: %w", filepath.Base(path), err)
	}
	if r.Tasks == nil {
		r.Tasks = []work.TaskRun{}
	}
	return &r, nil
}

// recordPath escapes name so that any chain name maps to a single file.
func recordPath(dir, name string) string {
	return filepath.Join(dir, url.PathEscape(name)+recordExt)
}
