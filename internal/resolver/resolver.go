package resolver

import (
	"sync/atomic"

	"github.com/quantmind-br/tialoc/internal/core"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// Hook is the process-wide resolution callback. It has two states,
// uninstalled and installed; install happens at most once, while the
// backing index can be hot-swapped at any time so a rescan can correct a
// bad index without restarting the process. The read path is lock-free:
// the host's loader may call Resolve from any thread while a scan runs.
type Hook struct {
	Fs     afero.Fs
	Logger *zerolog.Logger

	installed atomic.Bool
	index     atomic.Pointer[Index]
}

func NewHook(fsys afero.Fs, logger *zerolog.Logger) *Hook {
	return &Hook{Fs: fsys, Logger: logger}
}

// Install activates the hook with the given index. The first call performs
// the transition; later calls only refresh the backing index, never
// install a second competing hook.
func (h *Hook) Install(idx *Index) error {
	if idx == nil {
		return core.ErrResolverUnavailable
	}
	h.index.Store(idx)
	if h.installed.CompareAndSwap(false, true) {
		h.Logger.Debug().Int("entries", idx.Len()).Msg("resolver hook installed")
	} else {
		h.Logger.Debug().Int("entries", idx.Len()).Msg("resolver index refreshed")
	}
	return nil
}

// Installed reports whether the hook is active.
func (h *Hook) Installed() bool { return h.installed.Load() }

// Swap replaces the backing index on an installed hook.
func (h *Hook) Swap(idx *Index) {
	if idx != nil {
		h.index.Store(idx)
	}
}

// Resolve answers one module request. The requested variant is tried
// first, then the neutral entry. A miss returns ok=false so the host's own
// load error propagates; the hook never fails harder than that.
func (h *Hook) Resolve(name, variant string) (string, bool) {
	if !h.installed.Load() {
		return "", false
	}
	idx := h.index.Load()
	if idx == nil {
		return "", false
	}

	d, ok := idx.Lookup(name, variant)
	if !ok && variant != "" {
		d, ok = idx.Lookup(name, "")
	}
	if !ok {
		return "", false
	}
	if info, err := h.Fs.Stat(d.Path); err != nil || info.IsDir() {
		h.Logger.Debug().Str("module", name).Str("path", d.Path).Msg("resolve: indexed file gone")
		return "", false
	}
	return d.Path, true
}
