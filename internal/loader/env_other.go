//go:build !windows

package loader

import "github.com/rs/zerolog"

// registerNativeDir is a no-op outside Windows; PATH is the only search
// mechanism there.
func registerNativeDir(_ *zerolog.Logger, _ string) {}
