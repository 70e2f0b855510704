// Package testutil provides testing utilities for workchain tests.
package testutil

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/disintegration/imaging"
)

// DefaultTimeout bounds every wait in this package.
const DefaultTimeout = 5 * time.Second

// WriteImage writes a w x h PNG with a hard vertical edge to dir/name and
// returns its path. Blurring it changes pixels near the edge, so tests can
// tell a blurred copy from the source.
func WriteImage(t *testing.T, dir, name string, w, h int) string {
	t.Helper()

	img := imaging.New(w, h, color.White)
	for y := 0; y < h; y++ {
		for x := 0; x < w/2; x++ {
			img.Set(x, y, color.Black)
		}
	}

	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create directory for %s: %v", name, err)
	}
	if err := imaging.Save(img, path); err != nil {
		t.Fatalf("failed to write image %s: %v", name, err)
	}
	return path
}

// OpenImage decodes the image at path.
func OpenImage(t *testing.T, path string) image.Image {
	t.Helper()

	img, err := imaging.Open(path)
	if err != nil {
		t.Fatalf("failed to open image %s: %v", path, err)
	}
	return img
}

// WriteFile creates path under dir with content, creating parents.
func WriteFile(t *testing.T, dir, path, content string) string {
	t.Helper()

	fullPath := filepath.Join(dir, path)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		t.Fatalf("failed to create directory for %s: %v", path, err)
	}
	if err := os.WriteFile(fullPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write file %s: %v", path, err)
	}
	return fullPath
}

// WaitFor polls cond until it returns true, failing the test after
// DefaultTimeout.
func WaitFor(t *testing.T, msg string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(DefaultTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", msg)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// Receive returns the next value from ch, failing the test if ch is closed or
// nothing arrives within DefaultTimeout.
func Receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()

	select {
	case v, ok := <-ch:
		if !ok {
			t.Fatal("channel closed unexpectedly")
		}
		return v
	case <-time.After(DefaultTimeout):
		t.Fatal("timed out waiting for a value")
	}
	var zero T
	return zero
}

// ReceiveUntil reads from ch until match returns true and returns that value.
func ReceiveUntil[T any](t *testing.T, ch <-chan T, match func(T) bool) T {
	t.Helper()

	deadline := time.After(DefaultTimeout)
	for {
		select {
		case v, ok := <-ch:
			if !ok {
				t.Fatal("channel closed before a matching value arrived")
			}
			if match(v) {
				return v
			}
		case <-deadline:
			t.Fatal("timed out waiting for a matching value")
		}
	}
}

// Drain reads ch until it is closed, returning everything received.
func Drain[T any](t *testing.T, ch <-chan T) []T {
	t.Helper()

	var out []T
	deadline := time.After(DefaultTimeout)
	for {
		select {
		case v, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, v)
		case <-deadline:
			t.Fatal("timed out waiting for channel to close")
		}
	}
}
