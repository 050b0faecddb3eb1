package core

import (
	"errors"
	"fmt"
	"strings"
)

// ErrResolverUnavailable means the module-resolution hook could not be
// installed; nothing downstream of it can succeed, so load attempts fail fast.
var ErrResolverUnavailable = errors.New("module resolver unavailable")

// ErrNoCandidate means discovery produced nothing usable, even after the
// multi-directory fallback.
var ErrNoCandidate = errors.New("no usable installation candidate")

// AmbiguousSelectionError is returned when the top-ranked candidates tie and
// auto-selection would have to guess between equally plausible installations.
type AmbiguousSelectionError struct {
	Candidates []Candidate // the tied head of the ranking, best first
}

func (e *AmbiguousSelectionError) Error() string {
	folders := make([]string, 0, len(e.Candidates))
	for _, c := range e.Candidates {
		folders = append(folders, c.Folder)
	}
	return fmt.Sprintf("ambiguous selection between %d candidates: %s",
		len(e.Candidates), strings.Join(folders, "; "))
}

// ModuleLoadError records a single module failing to load. It is fatal to the
// attempt only when Primary is set.
type ModuleLoadError struct {
	Module  string
	Path    string
	Primary bool
	Err     error
}

func (e *ModuleLoadError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("load %s from %s: %v", e.Module, e.Path, e.Err)
	}
	return fmt.Sprintf("load %s: %v", e.Module, e.Err)
}

func (e *ModuleLoadError) Unwrap() error { return e.Err }
