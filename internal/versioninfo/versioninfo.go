// Package versioninfo extracts a module file's version string. The native
// version resource is preferred where the platform exposes it; managed
// metadata is the portable fallback. Absence of a version is a normal
// outcome, not an exceptional one.
package versioninfo

import (
	"github.com/quantmind-br/tialoc/internal/assembly"
	"github.com/spf13/afero"
)

// Read returns the best available version string for the file at path.
func Read(fsys afero.Fs, path string) (string, error) {
	if v := Native(fsys, path); v != "" {
		return v, nil
	}
	id, err := assembly.Read(fsys, path)
	if err != nil {
		return "", err
	}
	return id.Version, nil
}

// Native returns the platform version resource value, or "" where the
// platform exposes none. Callers that already parse the managed metadata
// use this to avoid reading the file twice.
func Native(fsys afero.Fs, path string) string {
	v, err := platformVersion(fsys, path)
	if err != nil {
		return ""
	}
	return v
}
