// Package discovery locates installations of the managed runtime on local
// disks. A scan runs two passes per root: a fast probe of the conventional
// install locations, then a pruned walk of the likely install bases. Every
// directory holding at least one required module file is emitted exactly
// once, even when only part of the set is present.
package discovery

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/quantmind-br/tialoc/internal/core"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// Engine drives the two-pass scan.
type Engine struct {
	Fs        afero.Fs
	Logger    *zerolog.Logger
	Manifest  *core.Manifest
	Validator *Validator

	// FastOnly restricts the scan to the probe pass.
	FastOnly bool

	skipNames  map[string]struct{}
	allowNames map[string]struct{}
}

// NewEngine creates a scan engine for the given manifest. extraSkip extends
// the manifest's skip list with user-configured directory names.
func NewEngine(fsys afero.Fs, logger *zerolog.Logger, m *core.Manifest, extraSkip []string) *Engine {
	e := &Engine{
		Fs:         fsys,
		Logger:     logger,
		Manifest:   m,
		Validator:  NewValidator(fsys, logger, m),
		skipNames:  make(map[string]struct{}, len(m.SkipDirs)+len(extraSkip)),
		allowNames: make(map[string]struct{}, len(m.AlwaysAllow)),
	}
	for _, name := range m.SkipDirs {
		e.skipNames[strings.ToLower(name)] = struct{}{}
	}
	for _, name := range extraSkip {
		e.skipNames[strings.ToLower(name)] = struct{}{}
	}
	for _, name := range m.AlwaysAllow {
		e.allowNames[strings.ToLower(name)] = struct{}{}
	}
	return e
}

// Scan walks the given roots on a dedicated goroutine and streams candidates
// over the returned channel. The channel closes when the scan finishes or
// ctx is canceled; candidates already emitted are never retracted. Partial
// candidates (some required files missing) are emitted too, so callers can
// report what was seen where.
func (e *Engine) Scan(ctx context.Context, roots []string) <-chan core.Candidate {
	out := make(chan core.Candidate)
	go func() {
		defer close(out)

		seenDirs := make(map[string]struct{})
		seenPrimary := make(map[string]struct{})
		emitted := 0

		emit := func(folder string) bool {
			cand, ok := e.tryEmit(folder, seenDirs, seenPrimary)
			if !ok {
				return true
			}
			select {
			case out <- cand:
				emitted++
				return true
			case <-ctx.Done():
				return false
			}
		}

		e.Logger.Debug().Strs("roots", roots).Bool("fast_only", e.FastOnly).Msg("scan started")

		for _, root := range roots {
			for _, probe := range e.Manifest.FastProbes {
				if ctx.Err() != nil {
					return
				}
				if !emit(filepath.Join(root, filepath.FromSlash(probe))) {
					return
				}
			}
		}

		if !e.FastOnly {
			for _, root := range roots {
				if ctx.Err() != nil {
					return
				}
				walkRoots := e.walkRoots(root)
				if len(walkRoots) == 0 {
					walkRoots = []string{root}
				}
				e.Logger.Debug().Str("root", root).Int("walk_roots", len(walkRoots)).Msg("walk pass")
				for _, wr := range walkRoots {
					if !e.walk(ctx, wr, emit) {
						return
					}
				}
			}
		}

		e.Logger.Debug().Int("candidates", emitted).Msg("scan finished")
	}()
	return out
}

// tryEmit evaluates one directory. A directory produces a candidate when it
// holds at least one required file, has not been emitted before, and its
// primary file has not already been claimed by an earlier candidate.
func (e *Engine) tryEmit(folder string, seenDirs, seenPrimary map[string]struct{}) (core.Candidate, bool) {
	key := e.resolveKey(folder)
	if key == "" {
		return core.Candidate{}, false
	}
	if _, dup := seenDirs[key]; dup {
		return core.Candidate{}, false
	}

	cand := e.Validator.Validate(folder)
	if len(cand.Missing) == len(e.Manifest.RequiredFiles) {
		return core.Candidate{}, false
	}

	if cand.PrimaryPath != "" {
		pk := e.resolveKey(cand.PrimaryPath)
		if _, dup := seenPrimary[pk]; dup {
			return core.Candidate{}, false
		}
		seenPrimary[pk] = struct{}{}
	}
	seenDirs[key] = struct{}{}

	e.Logger.Debug().
		Str("folder", folder).
		Str("quality", string(cand.Quality)).
		Int("missing", len(cand.Missing)).
		Msg("candidate emitted")
	return cand, true
}

// walk visits root and its admissible subtree depth-first, calling emit for
// every directory visited. Returns false when the scan was canceled.
func (e *Engine) walk(ctx context.Context, root string, emit func(string) bool) bool {
	stack := []string{root}
	for len(stack) > 0 {
		if ctx.Err() != nil {
			return false
		}
		dir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if !emit(dir) {
			return false
		}

		entries, err := afero.ReadDir(e.Fs, dir)
		if err != nil {
			e.Logger.Debug().Err(err).Str("dir", dir).Msg("walk: directory unreadable")
			continue
		}
		for i := len(entries) - 1; i >= 0; i-- {
			entry := entries[i]
			if !entry.IsDir() {
				continue
			}
			if !e.shouldDescend(dir, entry.Name()) {
				continue
			}
			stack = append(stack, filepath.Join(dir, entry.Name()))
		}
	}
	return true
}

// shouldDescend is the pruning predicate. It sees only the parent path and
// the child's name, so admission is monotonic: a child whose own path
// carries a keyword is entered even when its parent was only reached through
// the generic allow list. Symlinked directories are never followed.
func (e *Engine) shouldDescend(parent, childName string) bool {
	lower := strings.ToLower(childName)
	if _, skip := e.skipNames[lower]; skip {
		return false
	}
	if strings.HasPrefix(lower, "~") {
		return false
	}
	child := filepath.Join(parent, childName)
	if e.isSymlink(child) {
		return false
	}
	if e.Manifest.HasKeyword(child) {
		return true
	}
	if _, allow := e.allowNames[lower]; allow {
		return true
	}
	return e.Manifest.HasKeyword(parent)
}

// walkRoots derives the walk entry points for one scan root: the
// conventional install bases that exist, plus keyword-named children of the
// generic container directories. Roots nested inside another root are
// collapsed into the ancestor so the walk never covers a subtree twice.
func (e *Engine) walkRoots(root string) []string {
	roots := make(map[string]string)

	add := func(path string) {
		info, err := e.Fs.Stat(path)
		if err != nil || !info.IsDir() {
			return
		}
		key := e.resolveKey(path)
		if key == "" {
			return
		}
		for existing := range roots {
			if strings.HasPrefix(key, existing+"/") {
				return
			}
			if strings.HasPrefix(existing, key+"/") {
				delete(roots, existing)
			}
		}
		roots[key] = path
	}

	for _, guess := range e.Manifest.RootGuesses {
		add(filepath.Join(root, filepath.FromSlash(guess)))
	}

	for _, container := range e.Manifest.Containers {
		parent := root
		if container != "" {
			parent = filepath.Join(root, container)
		}
		entries, err := afero.ReadDir(e.Fs, parent)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			lower := strings.ToLower(entry.Name())
			for _, token := range e.Manifest.RootKeywords {
				if strings.Contains(lower, token) {
					add(filepath.Join(parent, entry.Name()))
					break
				}
			}
		}
	}

	keys := make([]string, 0, len(roots))
	for k := range roots {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ordered := make([]string, 0, len(keys))
	for _, k := range keys {
		ordered = append(ordered, roots[k])
	}
	return ordered
}

// resolveKey canonicalizes a path for dedup purposes. Symlinks are resolved
// only on the real filesystem; in-memory filesystems have none.
func (e *Engine) resolveKey(path string) string {
	p := path
	if abs, err := filepath.Abs(p); err == nil {
		p = abs
	}
	if _, real := e.Fs.(*afero.OsFs); real {
		if resolved, err := filepath.EvalSymlinks(p); err == nil {
			p = resolved
		}
	}
	return core.PathKey(p)
}

func (e *Engine) isSymlink(path string) bool {
	lst, ok := e.Fs.(afero.Lstater)
	if !ok {
		return false
	}
	info, usedLstat, err := lst.LstatIfPossible(path)
	if err != nil || !usedLstat {
		return false
	}
	return info.Mode()&os.ModeSymlink != 0
}
