//go:build !windows

package discovery

import "github.com/spf13/afero"

// FixedRoots returns the filesystem root. Drive letters only exist on
// Windows; elsewhere the single root covers everything, and configuration
// can narrow it down.
func FixedRoots(_ afero.Fs) []string {
	return []string{"/"}
}
