//go:build !windows

package versioninfo

import "github.com/spf13/afero"

// platformVersion is a no-op off Windows; Read falls back to managed
// metadata.
func platformVersion(afero.Fs, string) (string, error) {
	return "", nil
}
