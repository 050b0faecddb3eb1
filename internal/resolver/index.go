// Package resolver maintains the module lookup table and the process-wide
// resolution hook. The index maps (name, variant) to an absolute file path;
// the hook answers the runtime's module requests from whatever goroutine
// they arrive on, without locks on the read path.
package resolver

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/quantmind-br/tialoc/internal/assembly"
	"github.com/quantmind-br/tialoc/internal/core"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// Descriptor is one indexed module file.
type Descriptor struct {
	Name    string // logical module name as embedded in the file
	Variant string // locale qualifier, "" for neutral
	Path    string
	Version string
}

type indexKey struct {
	name    string
	variant string
}

func keyOf(name, variant string) indexKey {
	return indexKey{name: strings.ToLower(name), variant: strings.ToLower(variant)}
}

// Index is an immutable (name, variant) -> descriptor table built over an
// ordered list of search directories.
type Index struct {
	entries map[indexKey]Descriptor
	dirs    []string
}

// Lookup returns the descriptor for (name, variant). Matching is
// case-insensitive on both parts.
func (idx *Index) Lookup(name, variant string) (Descriptor, bool) {
	d, ok := idx.entries[keyOf(name, variant)]
	return d, ok
}

// Dirs returns the search directories the index was built over, in order.
func (idx *Index) Dirs() []string { return idx.dirs }

// Len returns the number of (name, variant) entries, synthesized neutral
// aliases included.
func (idx *Index) Len() int { return len(idx.entries) }

// All returns every entry sorted by name then variant.
func (idx *Index) All() []Descriptor {
	out := make([]Descriptor, 0, len(idx.entries))
	for _, d := range idx.entries {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Variant < out[j].Variant
	})
	return out
}

// IdentityReader extracts the managed identity from a module file.
type IdentityReader interface {
	ReadIdentity(path string) (core.ModuleIdentity, error)
}

// FileReader reads identities straight from the filesystem.
type FileReader struct {
	Fs afero.Fs
}

func (r FileReader) ReadIdentity(path string) (core.ModuleIdentity, error) {
	return assembly.Read(r.Fs, path)
}

// Indexer builds resolution indexes.
type Indexer struct {
	Fs     afero.Fs
	Logger *zerolog.Logger
	Reader IdentityReader
	Ext    string // expected module file extension, e.g. ".dll"
}

func NewIndexer(fsys afero.Fs, logger *zerolog.Logger, reader IdentityReader, ext string) *Indexer {
	return &Indexer{Fs: fsys, Logger: logger, Reader: reader, Ext: ext}
}

// Build scans each directory non-recursively, in the given order, and maps
// every readable module identity to its path. On a (name, variant)
// collision the earlier directory wins: directory order already encodes
// precedence, the primary install directory is always listed before the
// bin and locale fallbacks. Files without managed identity are skipped;
// they cannot be resolved by name anyway.
func (ix *Indexer) Build(dirs []string) *Index {
	idx := &Index{
		entries: make(map[indexKey]Descriptor),
		dirs:    append([]string(nil), dirs...),
	}
	variants := make(map[string][]indexKey)

	for _, dir := range dirs {
		entries, err := afero.ReadDir(ix.Fs, dir)
		if err != nil {
			ix.Logger.Debug().Err(err).Str("dir", dir).Msg("index: directory unreadable")
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ix.Ext) {
				continue
			}
			path := filepath.Join(dir, entry.Name())
			ident, err := ix.Reader.ReadIdentity(path)
			if err != nil {
				ix.Logger.Debug().Err(err).Str("file", path).Msg("index: no managed identity")
				continue
			}
			key := keyOf(ident.Name, ident.Culture)
			if prev, taken := idx.entries[key]; taken {
				ix.Logger.Debug().
					Str("file", path).
					Str("kept", prev.Path).
					Msg("index: duplicate identity, first directory wins")
				continue
			}
			idx.entries[key] = Descriptor{
				Name:    ident.Name,
				Variant: ident.Culture,
				Path:    path,
				Version: ident.Version,
			}
			variants[key.name] = append(variants[key.name], key)
		}
	}

	ix.synthesizeNeutrals(idx, variants)

	ix.Logger.Debug().Int("entries", idx.Len()).Int("dirs", len(dirs)).Msg("index built")
	return idx
}

// synthesizeNeutrals promotes a localized entry to also answer neutral
// lookups for any name that has no neutral entry of its own: the en-US
// variant when present, otherwise a lone single variant. Satellite-only
// modules stay resolvable that way.
func (ix *Indexer) synthesizeNeutrals(idx *Index, variants map[string][]indexKey) {
	for name, keys := range variants {
		neutral := indexKey{name: name, variant: ""}
		if _, ok := idx.entries[neutral]; ok {
			continue
		}
		if d, ok := idx.entries[indexKey{name: name, variant: "en-us"}]; ok {
			idx.entries[neutral] = d
			continue
		}
		if len(keys) == 1 {
			idx.entries[neutral] = idx.entries[keys[0]]
		}
	}
}
