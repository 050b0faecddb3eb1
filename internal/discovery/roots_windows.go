//go:build windows

package discovery

import "github.com/spf13/afero"

// FixedRoots enumerates the drive roots C: through Z: that exist. Removable
// media is included; a drive that disappears mid-scan just yields walk
// errors, which the scanner tolerates.
func FixedRoots(fsys afero.Fs) []string {
	var roots []string
	for letter := 'C'; letter <= 'Z'; letter++ {
		root := string(letter) + `:\`
		if info, err := fsys.Stat(root); err == nil && info.IsDir() {
			roots = append(roots, root)
		}
	}
	return roots
}
