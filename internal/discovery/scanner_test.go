package discovery

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/quantmind-br/tialoc/internal/core"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

func newTestEngine(extraSkip []string) (*Engine, afero.Fs) {
	fs := afero.NewMemMapFs()
	logger := zerolog.New(io.Discard)
	return NewEngine(fs, &logger, core.TIAPortalV17(), extraSkip), fs
}

func touch(t *testing.T, fs afero.Fs, path string) {
	t.Helper()
	if err := afero.WriteFile(fs, path, []byte("stub"), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func mkdir(t *testing.T, fs afero.Fs, path string) {
	t.Helper()
	if err := fs.MkdirAll(path, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", path, err)
	}
}

func collect(t *testing.T, ch <-chan core.Candidate) []core.Candidate {
	t.Helper()
	var out []core.Candidate
	for cand := range ch {
		out = append(out, cand)
	}
	return out
}

const canonicalDir = "/scan/Program Files/Siemens/Automation/Portal V17/PublicAPI/V17"

func placeInstall(t *testing.T, fs afero.Fs, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		touch(t, fs, filepath.Join(dir, name))
	}
}

func TestScanFindsCanonicalInstall(t *testing.T) {
	t.Parallel()

	engine, fs := newTestEngine(nil)
	m := engine.Manifest
	placeInstall(t, fs, canonicalDir, m.RequiredFiles...)

	cands := collect(t, engine.Scan(context.Background(), []string{"/scan"}))

	if len(cands) != 1 {
		t.Fatalf("expected 1 candidate, got %d: %+v", len(cands), cands)
	}
	got := cands[0]
	if got.Folder != canonicalDir {
		t.Errorf("folder = %q, want %q", got.Folder, canonicalDir)
	}
	if got.Quality != core.QualityExact {
		t.Errorf("quality = %q, want %q", got.Quality, core.QualityExact)
	}
	if !got.IsValid() {
		t.Errorf("expected valid candidate, missing: %v", got.Missing)
	}
}

func TestScanEmitsEachDirectoryOnce(t *testing.T) {
	t.Parallel()

	// The canonical directory is hit by the fast probe and is also
	// reachable through the walk pass.
	engine, fs := newTestEngine(nil)
	placeInstall(t, fs, canonicalDir, engine.Manifest.RequiredFiles...)

	cands := collect(t, engine.Scan(context.Background(), []string{"/scan"}))

	count := 0
	for _, c := range cands {
		if c.Folder == canonicalDir {
			count++
		}
	}
	if count != 1 {
		t.Errorf("canonical directory emitted %d times, want 1", count)
	}
}

func TestScanEmitsPartialCandidates(t *testing.T) {
	t.Parallel()

	engine, fs := newTestEngine(nil)
	m := engine.Manifest
	dir := "/scan/Siemens/leftovers"
	touch(t, fs, filepath.Join(dir, m.RequiredFiles[1]))

	cands := collect(t, engine.Scan(context.Background(), []string{"/scan"}))

	if len(cands) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(cands))
	}
	got := cands[0]
	if got.IsValid() {
		t.Fatal("expected invalid candidate")
	}
	if len(got.Missing) != 2 {
		t.Errorf("missing = %v, want 2 entries", got.Missing)
	}
	if got.PrimaryPath != "" {
		t.Errorf("primary path = %q, want empty", got.PrimaryPath)
	}
}

func TestScanSkipsIrrelevantBranches(t *testing.T) {
	t.Parallel()

	engine, fs := newTestEngine(nil)
	m := engine.Manifest

	// Buried under names that neither match a keyword nor the allow list.
	hidden := "/scan/random/deep"
	placeInstall(t, fs, hidden, m.RequiredFiles...)

	// Same content under a keyword-named branch inside a generic parent.
	visible := "/scan/users/Siemens Things/deep"
	placeInstall(t, fs, visible, m.RequiredFiles...)

	cands := collect(t, engine.Scan(context.Background(), []string{"/scan"}))

	for _, c := range cands {
		if c.Folder == hidden {
			t.Errorf("pruned branch %q was scanned", hidden)
		}
	}
	found := false
	for _, c := range cands {
		if c.Folder == visible {
			found = true
		}
	}
	if !found {
		t.Errorf("keyword branch %q was not scanned; got %+v", visible, cands)
	}
}

func TestScanFastOnly(t *testing.T) {
	t.Parallel()

	engine, fs := newTestEngine(nil)
	m := engine.Manifest
	engine.FastOnly = true

	placeInstall(t, fs, canonicalDir, m.RequiredFiles...)
	placeInstall(t, fs, "/scan/Siemens/extra", m.RequiredFiles[1])

	cands := collect(t, engine.Scan(context.Background(), []string{"/scan"}))

	if len(cands) != 1 {
		t.Fatalf("fast-only scan found %d candidates, want 1", len(cands))
	}
	if cands[0].Folder != canonicalDir {
		t.Errorf("folder = %q, want %q", cands[0].Folder, canonicalDir)
	}
}

func TestScanCancellation(t *testing.T) {
	t.Parallel()

	engine, fs := newTestEngine(nil)
	m := engine.Manifest

	for _, dir := range []string{"/scan/Siemens/a", "/scan/Siemens/b", "/scan/Siemens/c"} {
		touch(t, fs, filepath.Join(dir, m.RequiredFiles[1]))
	}

	ctx, cancel := context.WithCancel(context.Background())
	ch := engine.Scan(ctx, []string{"/scan"})

	// Take one candidate, then cancel. The channel must still close.
	select {
	case _, ok := <-ch:
		if !ok {
			t.Fatal("channel closed before first candidate")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for first candidate")
	}
	cancel()

	done := make(chan struct{})
	go func() {
		for range ch {
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("channel did not close after cancellation")
	}
}

func TestShouldDescend(t *testing.T) {
	t.Parallel()

	engine, fs := newTestEngine([]string{"node_modules"})
	mkdir(t, fs, "/scan/plain")

	tests := []struct {
		name   string
		parent string
		child  string
		want   bool
	}{
		{"skip list", "/scan", "Windows", false},
		{"configured skip", "/scan/Siemens", "node_modules", false},
		{"tilde backup", "/scan/Siemens", "~old", false},
		{"keyword child under plain parent", "/scan/plain", "Siemens", true},
		{"allow list", "/scan/plain", "Program Files", true},
		{"keyword parent admits anything", "/scan/Siemens", "whatever", true},
		{"plain child under plain parent", "/scan/plain", "whatever", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := engine.shouldDescend(tt.parent, tt.child); got != tt.want {
				t.Errorf("shouldDescend(%q, %q) = %v, want %v", tt.parent, tt.child, got, tt.want)
			}
		})
	}
}

func TestWalkRootsCollapsesNestedRoots(t *testing.T) {
	t.Parallel()

	engine, fs := newTestEngine(nil)
	mkdir(t, fs, "/scan/Program Files/Siemens/Automation/Portal V17")
	mkdir(t, fs, "/scan/Portal V17")
	mkdir(t, fs, "/scan/unrelated")

	roots := engine.walkRoots("/scan")

	want := []string{
		filepath.Join("/scan", "Portal V17"),
		filepath.Join("/scan", "Program Files", "Siemens"),
	}
	if len(roots) != len(want) {
		t.Fatalf("walk roots = %v, want %v", roots, want)
	}
	for i := range want {
		if roots[i] != want[i] {
			t.Errorf("walk roots[%d] = %q, want %q", i, roots[i], want[i])
		}
	}
}

func TestScanSeparateInstallsBothEmitted(t *testing.T) {
	t.Parallel()

	engine, fs := newTestEngine(nil)
	m := engine.Manifest

	first := "/scan/Program Files/Siemens/Automation/Portal V17/PublicAPI/V17"
	second := "/scan/Program Files (x86)/Siemens/Automation/Portal V17/PublicAPI/V17"
	placeInstall(t, fs, first, m.RequiredFiles...)
	placeInstall(t, fs, second, m.RequiredFiles...)

	cands := collect(t, engine.Scan(context.Background(), []string{"/scan"}))

	if len(cands) != 2 {
		t.Fatalf("expected 2 candidates, got %d: %+v", len(cands), cands)
	}
}
