package workers

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	wcerrors "github.com/Iron-Ham/workchain/internal/errors"
	"github.com/Iron-Ham/workchain/internal/testutil"
	"github.com/Iron-Ham/workchain/internal/work"
)

func newCatalog(t *testing.T) (*work.Catalog, Config) {
	t.Helper()
	dir := t.TempDir()
	cfg := Config{
		TempDir:   filepath.Join(dir, "tmp"),
		OutputDir: filepath.Join(dir, "out"),
	}
	catalog := work.NewCatalog()
	Register(catalog, cfg, nil)
	return catalog, cfg
}

func execute(t *testing.T, catalog *work.Catalog, typeID string, input work.Data) work.Outcome {
	t.Helper()
	w, err := catalog.New(typeID)
	if err != nil {
		t.Fatalf("catalog.New(%q): %v", typeID, err)
	}
	return w.Execute(context.Background(), input)
}

func TestRegister(t *testing.T) {
	catalog, _ := newCatalog(t)
	for _, typ := range []string{TypeCleanup, TypeBlur, TypeSave} {
		if !catalog.Has(typ) {
			t.Errorf("catalog missing %q", typ)
		}
	}
}

func TestBlurChain(t *testing.T) {
	tests := []struct {
		level     int
		wantTypes []string
	}{
		{0, []string{"cleanup", "blur", "save"}},
		{1, []string{"cleanup", "blur", "save"}},
		{3, []string{"cleanup", "blur", "blur", "blur", "save"}},
	}

	for _, tt := range tests {
		descs := BlurChain("file:///in.png", tt.level)
		if len(descs) != len(tt.wantTypes) {
			t.Fatalf("level %d: got %d descriptors, want %d", tt.level, len(descs), len(tt.wantTypes))
		}
		for i, d := range descs {
			if d.TypeID() != tt.wantTypes[i] {
				t.Errorf("level %d: descs[%d] = %s, want %s", tt.level, i, d.TypeID(), tt.wantTypes[i])
			}
			if d.HasInput() != (i == 1) {
				t.Errorf("level %d: descs[%d].HasInput() = %v", tt.level, i, d.HasInput())
			}
		}
		last := descs[len(descs)-1]
		if tags := last.Tags(); len(tags) != 1 || tags[0] != TagOutput {
			t.Errorf("save tags = %v", tags)
		}
		if descs[1].Input().String(KeyImageURI) != "file:///in.png" {
			t.Errorf("first blur input = %v", descs[1].Input())
		}
	}
}

func TestPathFromURI(t *testing.T) {
	tests := []struct {
		name    string
		uri     string
		want    string
		wantErr bool
	}{
		{"plain path", "/tmp/a.png", "/tmp/a.png", false},
		{"file uri", "file:///tmp/a.png", "/tmp/a.png", false},
		{"escaped", "file:///tmp/my%20pic.png", "/tmp/my pic.png", false},
		{"empty", "", "", true},
		{"other scheme", "content://media/1", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PathFromURI(tt.uri)
			if (err != nil) != tt.wantErr {
				t.Fatalf("PathFromURI(%q) error = %v, wantErr %v", tt.uri, err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, wcerrors.ErrInvalidInput) {
					t.Errorf("error should be a validation error: %v", err)
				}
				return
			}
			if got != filepath.FromSlash(tt.want) {
				t.Errorf("PathFromURI(%q) = %q, want %q", tt.uri, got, tt.want)
			}
		})
	}
}

func TestFileURIRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a b.png")
	uri := FileURI(path)
	if !strings.HasPrefix(uri, "file://") {
		t.Fatalf("FileURI() = %q", uri)
	}
	got, err := PathFromURI(uri)
	if err != nil || got != path {
		t.Errorf("PathFromURI(FileURI(p)) = %q, %v; want %q", got, err, path)
	}
}

func TestCleanup(t *testing.T) {
	catalog, cfg := newCatalog(t)

	t.Run("missing dir", func(t *testing.T) {
		if out := execute(t, catalog, TypeCleanup, nil); out.Kind != work.OutcomeSuccess {
			t.Errorf("outcome = %v", out)
		}
	})

	t.Run("removes only png files", func(t *testing.T) {
		testutil.WriteFile(t, cfg.TempDir, "old.png", "x")
		testutil.WriteFile(t, cfg.TempDir, "OLD2.PNG", "x")
		keep := testutil.WriteFile(t, cfg.TempDir, "notes.txt", "x")

		if out := execute(t, catalog, TypeCleanup, nil); out.Kind != work.OutcomeSuccess {
			t.Fatalf("outcome = %v", out)
		}
		entries, err := os.ReadDir(cfg.TempDir)
		if err != nil {
			t.Fatalf("ReadDir: %v", err)
		}
		if len(entries) != 1 || entries[0].Name() != filepath.Base(keep) {
			t.Errorf("remaining entries = %v", entries)
		}
	})
}

func TestBlur(t *testing.T) {
	catalog, cfg := newCatalog(t)
	src := testutil.WriteImage(t, t.TempDir(), "in.png", 32, 16)

	out := execute(t, catalog, TypeBlur, work.Data{KeyImageURI: FileURI(src)})
	if out.Kind != work.OutcomeSuccess {
		t.Fatalf("outcome = %v (%v)", out.Kind, out.Err)
	}
	dst, err := PathFromURI(out.Output.String(KeyImageURI))
	if err != nil {
		t.Fatalf("output uri: %v", err)
	}
	if filepath.Dir(dst) != cfg.TempDir {
		t.Errorf("blurred image written to %s, want under %s", dst, cfg.TempDir)
	}

	before := testutil.OpenImage(t, src)
	after := testutil.OpenImage(t, dst)
	if after.Bounds() != before.Bounds() {
		t.Fatalf("bounds changed: %v -> %v", before.Bounds(), after.Bounds())
	}
	// The pixel beside the edge mixes black and white once blurred.
	r, _, _, _ := after.At(15, 8).RGBA()
	if r == 0 || r == 0xffff {
		t.Errorf("edge pixel not blurred: r=%#x", r)
	}
}

func TestBlur_InvalidInput(t *testing.T) {
	catalog, _ := newCatalog(t)

	t.Run("empty uri", func(t *testing.T) {
		out := execute(t, catalog, TypeBlur, work.Data{})
		if out.Kind != work.OutcomeFailure {
			t.Fatalf("outcome = %v", out.Kind)
		}
		if wcerrors.IsRetryable(out.Err) {
			t.Error("empty uri should not be retryable")
		}
	})

	t.Run("missing file", func(t *testing.T) {
		out := execute(t, catalog, TypeBlur, work.Data{KeyImageURI: filepath.Join(t.TempDir(), "nope.png")})
		if out.Kind != work.OutcomeFailure {
			t.Fatalf("outcome = %v", out.Kind)
		}
	})
}

func TestBlur_CancelledDuringDelay(t *testing.T) {
	catalog := work.NewCatalog()
	Register(catalog, Config{TempDir: t.TempDir(), Delay: time.Hour}, nil)
	w, err := catalog.New(TypeBlur)
	if err != nil {
		t.Fatalf("catalog.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if out := w.Execute(ctx, work.Data{KeyImageURI: "/x.png"}); out.Kind != work.OutcomeCancelled {
		t.Errorf("outcome = %v, want cancelled", out.Kind)
	}
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	src := testutil.WriteImage(t, dir, "blurred.png", 8, 8)
	w := &saveWorker{
		cfg: Config{OutputDir: filepath.Join(dir, "out")},
		log: nil,
		now: func() time.Time { return time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC) },
	}

	out := w.Execute(context.Background(), work.Data{KeyImageURI: FileURI(src)})
	if out.Kind != work.OutcomeSuccess {
		t.Fatalf("outcome = %v (%v)", out.Kind, out.Err)
	}
	saved, err := PathFromURI(out.Output.String(KeyImageURI))
	if err != nil {
		t.Fatalf("output uri: %v", err)
	}
	if filepath.Base(saved) != "blurred-image-20240501-123000.000.png" {
		t.Errorf("saved name = %s", filepath.Base(saved))
	}

	want, _ := os.ReadFile(src)
	got, err := os.ReadFile(saved)
	if err != nil || string(got) != string(want) {
		t.Errorf("saved content differs from source (err %v)", err)
	}
	if _, err := os.Stat(saved + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file left behind")
	}
}
