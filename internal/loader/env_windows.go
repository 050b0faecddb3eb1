//go:build windows

package loader

import (
	"unsafe"

	"github.com/rs/zerolog"
	"golang.org/x/sys/windows"
)

var (
	kernel32            = windows.NewLazySystemDLL("kernel32.dll")
	procAddDllDirectory = kernel32.NewProc("AddDllDirectory")
)

// registerNativeDir adds dir to the loader's DLL search path for the
// lifetime of the process. Failure only costs a fallback path, so it is
// logged and swallowed.
func registerNativeDir(logger *zerolog.Logger, dir string) {
	p, err := windows.UTF16PtrFromString(dir)
	if err != nil {
		logger.Debug().Err(err).Str("dir", dir).Msg("AddDllDirectory: bad path")
		return
	}
	cookie, _, callErr := procAddDllDirectory.Call(uintptr(unsafe.Pointer(p)))
	if cookie == 0 {
		logger.Debug().Err(callErr).Str("dir", dir).Msg("AddDllDirectory failed")
	}
}
