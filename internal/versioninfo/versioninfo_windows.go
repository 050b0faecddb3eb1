//go:build windows

package versioninfo

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/spf13/afero"
	"golang.org/x/sys/windows"
)

type vsFixedFileInfo struct {
	Signature        uint32
	StrucVersion     uint32
	FileVersionMS    uint32
	FileVersionLS    uint32
	ProductVersionMS uint32
	ProductVersionLS uint32
	FileFlagsMask    uint32
	FileFlags        uint32
	FileOS           uint32
	FileType         uint32
	FileSubtype      uint32
	FileDateMS       uint32
	FileDateLS       uint32
}

// platformVersion reads the PE version resource through the Win32 version
// APIs. Only the real filesystem can be asked; virtual filesystems fall
// through to the managed-metadata path in Read.
func platformVersion(fsys afero.Fs, path string) (string, error) {
	if _, ok := fsys.(*afero.OsFs); !ok {
		return "", nil
	}

	size, err := windows.GetFileVersionInfoSize(path, nil)
	if err != nil {
		return "", fmt.Errorf("version info size: %w", err)
	}
	if size == 0 {
		return "", errors.New("empty version info block")
	}

	buf := make([]byte, size)
	if err := windows.GetFileVersionInfo(path, 0, size, unsafe.Pointer(&buf[0])); err != nil {
		return "", fmt.Errorf("version info: %w", err)
	}

	var fixed *vsFixedFileInfo
	var fixedLen uint32
	if err := windows.VerQueryValue(unsafe.Pointer(&buf[0]), `\`, unsafe.Pointer(&fixed), &fixedLen); err != nil {
		return "", fmt.Errorf("query version root: %w", err)
	}
	if fixed == nil || fixedLen == 0 || fixed.Signature != 0xFEEF04BD {
		return "", errors.New("fixed file info missing")
	}

	return fmt.Sprintf("%d.%d.%d.%d",
		fixed.FileVersionMS>>16, fixed.FileVersionMS&0xFFFF,
		fixed.FileVersionLS>>16, fixed.FileVersionLS&0xFFFF), nil
}
