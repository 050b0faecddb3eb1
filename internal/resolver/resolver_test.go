package resolver

import (
	"errors"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/quantmind-br/tialoc/internal/assembly"
	"github.com/quantmind-br/tialoc/internal/core"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// stubReader maps paths to fixed identities; everything else reads as a
// native file.
type stubReader struct {
	identities map[string]core.ModuleIdentity
	reads      map[string]int
}

func newStubReader() *stubReader {
	return &stubReader{
		identities: make(map[string]core.ModuleIdentity),
		reads:      make(map[string]int),
	}
}

func (s *stubReader) add(path, name, culture string) {
	s.identities[path] = core.ModuleIdentity{Name: name, Culture: culture, Version: "17.0.0.0"}
}

func (s *stubReader) ReadIdentity(path string) (core.ModuleIdentity, error) {
	s.reads[path]++
	if ident, ok := s.identities[path]; ok {
		return ident, nil
	}
	return core.ModuleIdentity{}, assembly.ErrNotManaged
}

func testIndexer(reader IdentityReader) (*Indexer, afero.Fs) {
	fs := afero.NewMemMapFs()
	logger := zerolog.New(io.Discard)
	return NewIndexer(fs, &logger, reader, ".dll"), fs
}

func putFile(t *testing.T, fs afero.Fs, path string) {
	t.Helper()
	if err := afero.WriteFile(fs, path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestBuildFirstDirectoryWins(t *testing.T) {
	t.Parallel()

	reader := newStubReader()
	ix, fs := testIndexer(reader)

	primary := "/install/Core.dll"
	shadow := "/install/bin/Core.dll"
	putFile(t, fs, primary)
	putFile(t, fs, shadow)
	reader.add(primary, "Core", "")
	reader.add(shadow, "Core", "")

	idx := ix.Build([]string{"/install", "/install/bin"})

	d, ok := idx.Lookup("Core", "")
	if !ok {
		t.Fatal("Core not indexed")
	}
	if d.Path != primary {
		t.Errorf("path = %q, want first directory's %q", d.Path, primary)
	}
}

func TestBuildSkipsNativeAndForeignFiles(t *testing.T) {
	t.Parallel()

	reader := newStubReader()
	ix, fs := testIndexer(reader)

	managed := "/install/Core.dll"
	putFile(t, fs, managed)
	putFile(t, fs, "/install/native.dll")
	putFile(t, fs, "/install/readme.txt")
	reader.add(managed, "Core", "")

	idx := ix.Build([]string{"/install"})

	if idx.Len() != 1 {
		t.Errorf("index has %d entries, want 1: %+v", idx.Len(), idx.All())
	}
	if reader.reads["/install/readme.txt"] != 0 {
		t.Error("indexer read a file with a foreign extension")
	}
}

func TestBuildSynthesizesNeutralEntries(t *testing.T) {
	t.Parallel()

	reader := newStubReader()
	ix, fs := testIndexer(reader)

	enUS := "/install/en-US/Core.resources.dll"
	deDE := "/install/de-DE/Core.resources.dll"
	loneIT := "/install/it-IT/Hmi.resources.dll"
	frOnly1 := "/install/fr-FR/Split.resources.dll"
	frOnly2 := "/install/ru-RU/Split.resources.dll"
	for _, p := range []string{enUS, deDE, loneIT, frOnly1, frOnly2} {
		putFile(t, fs, p)
	}
	reader.add(enUS, "Core.resources", "en-US")
	reader.add(deDE, "Core.resources", "de-DE")
	reader.add(loneIT, "Hmi.resources", "it-IT")
	reader.add(frOnly1, "Split.resources", "fr-FR")
	reader.add(frOnly2, "Split.resources", "ru-RU")

	idx := ix.Build([]string{
		"/install/en-US", "/install/de-DE", "/install/it-IT",
		"/install/fr-FR", "/install/ru-RU",
	})

	t.Run("en-US promoted", func(t *testing.T) {
		d, ok := idx.Lookup("Core.resources", "")
		if !ok || d.Path != enUS {
			t.Errorf("neutral lookup = %+v ok=%v, want en-US path", d, ok)
		}
	})
	t.Run("single locale promoted", func(t *testing.T) {
		d, ok := idx.Lookup("Hmi.resources", "")
		if !ok || d.Path != loneIT {
			t.Errorf("neutral lookup = %+v ok=%v, want lone it-IT path", d, ok)
		}
	})
	t.Run("ambiguous locales not promoted", func(t *testing.T) {
		if _, ok := idx.Lookup("Split.resources", ""); ok {
			t.Error("neutral entry synthesized from two competing locales")
		}
	})
}

func newTestHook() (*Hook, afero.Fs) {
	fs := afero.NewMemMapFs()
	logger := zerolog.New(io.Discard)
	return NewHook(fs, &logger), fs
}

func buildTestIndex(t *testing.T, fs afero.Fs, files map[string]core.ModuleIdentity) *Index {
	t.Helper()
	reader := newStubReader()
	dirs := make(map[string]struct{})
	for path, ident := range files {
		putFile(t, fs, path)
		reader.identities[path] = ident
		dirs[filepath.Dir(path)] = struct{}{}
	}
	logger := zerolog.New(io.Discard)
	ix := NewIndexer(fs, &logger, reader, ".dll")
	var dirList []string
	for d := range dirs {
		dirList = append(dirList, d)
	}
	return ix.Build(dirList)
}

func TestHookResolve(t *testing.T) {
	t.Parallel()

	hook, fs := newTestHook()

	if _, ok := hook.Resolve("Core", ""); ok {
		t.Error("uninstalled hook resolved a module")
	}

	idx := buildTestIndex(t, fs, map[string]core.ModuleIdentity{
		"/install/Core.dll":        {Name: "Core", Version: "17.0"},
		"/install/de/Core.res.dll": {Name: "Core.res", Culture: "de-DE"},
	})
	if err := hook.Install(idx); err != nil {
		t.Fatalf("install: %v", err)
	}

	t.Run("exact variant", func(t *testing.T) {
		path, ok := hook.Resolve("Core.res", "de-DE")
		if !ok || path != "/install/de/Core.res.dll" {
			t.Errorf("resolve = %q ok=%v", path, ok)
		}
	})
	t.Run("variant falls back to neutral", func(t *testing.T) {
		path, ok := hook.Resolve("Core", "ja-JP")
		if !ok || path != "/install/Core.dll" {
			t.Errorf("resolve = %q ok=%v", path, ok)
		}
	})
	t.Run("unknown module fails soft", func(t *testing.T) {
		if _, ok := hook.Resolve("Nope", ""); ok {
			t.Error("resolved a module that was never indexed")
		}
	})
	t.Run("deleted file fails soft", func(t *testing.T) {
		if err := fs.Remove("/install/Core.dll"); err != nil {
			t.Fatal(err)
		}
		if _, ok := hook.Resolve("Core", ""); ok {
			t.Error("resolved a file that no longer exists")
		}
	})
}

func TestHookInstallIdempotentAndHotSwap(t *testing.T) {
	t.Parallel()

	hook, fs := newTestHook()

	if err := hook.Install(nil); !errors.Is(err, core.ErrResolverUnavailable) {
		t.Fatalf("install(nil) = %v, want ErrResolverUnavailable", err)
	}
	if hook.Installed() {
		t.Fatal("failed install left the hook active")
	}

	first := buildTestIndex(t, fs, map[string]core.ModuleIdentity{
		"/a/Core.dll": {Name: "Core"},
	})
	second := buildTestIndex(t, fs, map[string]core.ModuleIdentity{
		"/b/Core.dll": {Name: "Core"},
	})

	if err := hook.Install(first); err != nil {
		t.Fatal(err)
	}
	if !hook.Installed() {
		t.Fatal("hook not installed")
	}

	// A second install must refresh the index, not fail or double-install.
	if err := hook.Install(second); err != nil {
		t.Fatal(err)
	}
	if path, _ := hook.Resolve("Core", ""); path != "/b/Core.dll" {
		t.Errorf("after refresh resolve = %q, want /b/Core.dll", path)
	}

	hook.Swap(first)
	if path, _ := hook.Resolve("Core", ""); path != "/a/Core.dll" {
		t.Errorf("after swap resolve = %q, want /a/Core.dll", path)
	}
}

func TestHookConcurrentResolveDuringSwap(t *testing.T) {
	t.Parallel()

	hook, fs := newTestHook()
	first := buildTestIndex(t, fs, map[string]core.ModuleIdentity{
		"/a/Core.dll": {Name: "Core"},
	})
	second := buildTestIndex(t, fs, map[string]core.ModuleIdentity{
		"/b/Core.dll": {Name: "Core"},
	})
	if err := hook.Install(first); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	stop := time.After(50 * time.Millisecond)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				hook.Swap(first)
				hook.Swap(second)
			}
		}
	}()

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				path, ok := hook.Resolve("Core", "")
				if !ok {
					t.Error("resolve failed during swap")
					return
				}
				if path != "/a/Core.dll" && path != "/b/Core.dll" {
					t.Errorf("resolve returned %q", path)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestCachedReader(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	reader := newStubReader()
	path := "/install/Core.dll"
	putFile(t, fs, path)
	reader.add(path, "Core", "")

	cached, err := NewCachedReader(fs, reader, 16)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		if _, err := cached.ReadIdentity(path); err != nil {
			t.Fatal(err)
		}
	}
	if reader.reads[path] != 1 {
		t.Errorf("inner reader called %d times, want 1", reader.reads[path])
	}

	// Touching the file invalidates the entry.
	later := time.Now().Add(time.Hour)
	if err := fs.Chtimes(path, later, later); err != nil {
		t.Fatal(err)
	}
	if _, err := cached.ReadIdentity(path); err != nil {
		t.Fatal(err)
	}
	if reader.reads[path] != 2 {
		t.Errorf("inner reader called %d times after touch, want 2", reader.reads[path])
	}
}
