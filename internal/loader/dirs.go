// Package loader orchestrates a load attempt: it expands a chosen
// installation directory into the full module search set, prepares the
// process environment, refreshes the resolver and loads the primary module
// together with its declared dependents.
package loader

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/quantmind-br/tialoc/internal/core"
	"github.com/spf13/afero"
)

// DefaultRoot returns the conventional install location used when no hint
// directory is given.
func DefaultRoot(m *core.Manifest) string {
	pf := os.Getenv("ProgramW6432")
	if pf == "" {
		pf = os.Getenv("ProgramFiles")
	}
	if pf == "" {
		pf = `C:\Program Files`
	}
	return filepath.Join(pf, filepath.FromSlash(m.DefaultInstall))
}

// DeriveSearchDirs expands chosenRoot into the ordered search set: the root
// itself, its public-API container, the product root, the product's bin and
// bin64 folders, the public-API layouts nested inside those, any sibling
// public-API folder of the root (side-by-side versions), and every locale
// subfolder of the collected public-API directories. Directories that do
// not exist are dropped; the rest dedupe case-insensitively, first mention
// wins, so the root keeps the highest precedence.
func DeriveSearchDirs(fsys afero.Fs, m *core.Manifest, chosenRoot string) []string {
	publicDir := chosenRoot
	if info, err := fsys.Stat(chosenRoot); err != nil || !info.IsDir() {
		publicDir = filepath.Dir(chosenRoot)
	}
	publicRoot := parentOf(publicDir)
	productRoot := parentOf(publicRoot)

	binDir := filepath.Join(productRoot, "bin")
	bin64Dir := filepath.Join(productRoot, "bin64")
	versionName := filepath.Base(publicDir)

	binAPI := filepath.Join(binDir, m.APIName)
	binAPIVersion := filepath.Join(binAPI, versionName)
	bin64API := filepath.Join(bin64Dir, m.APIName)
	bin64APIVersion := filepath.Join(bin64API, versionName)

	candidates := []string{
		publicDir,
		publicRoot,
		productRoot,
		binDir,
		bin64Dir,
		binAPI,
		binAPIVersion,
		bin64API,
		bin64APIVersion,
	}

	// Side-by-side versions live as siblings of the public directory.
	var siblings []string
	if entries, err := afero.ReadDir(fsys, publicRoot); err == nil {
		publicKey := core.PathKey(publicDir)
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			sibling := filepath.Join(publicRoot, entry.Name())
			if core.PathKey(sibling) == publicKey {
				continue
			}
			if !strings.Contains(strings.ToLower(entry.Name()), m.APIMarker) {
				continue
			}
			versioned := filepath.Join(sibling, versionName)
			candidates = append(candidates, sibling, versioned)
			siblings = append(siblings, sibling, versioned)
		}
	}

	cultureRoots := []string{
		publicDir,
		publicRoot,
		binAPI,
		binAPIVersion,
		bin64API,
		bin64APIVersion,
	}
	cultureRoots = append(cultureRoots, siblings...)

	for _, base := range cultureRoots {
		for _, locale := range m.Locales {
			candidates = append(candidates, filepath.Join(base, locale))
		}
	}

	return dedupeDirs(fsys, candidates)
}

// parentOf is filepath.Dir with a self guard at the root.
func parentOf(dir string) string {
	parent := filepath.Dir(dir)
	if parent == dir {
		return dir
	}
	return parent
}

// dedupeDirs keeps existing directories only, first mention of each
// resolved identity wins, order preserved.
func dedupeDirs(fsys afero.Fs, dirs []string) []string {
	seen := make(map[string]struct{}, len(dirs))
	out := make([]string, 0, len(dirs))
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		info, err := fsys.Stat(dir)
		if err != nil || !info.IsDir() {
			continue
		}
		resolved := dir
		if abs, err := filepath.Abs(resolved); err == nil {
			resolved = abs
		}
		if _, real := fsys.(*afero.OsFs); real {
			if r, err := filepath.EvalSymlinks(resolved); err == nil {
				resolved = r
			}
		}
		key := core.PathKey(resolved)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, resolved)
	}
	return out
}
