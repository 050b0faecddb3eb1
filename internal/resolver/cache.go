package resolver

import (
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/quantmind-br/tialoc/internal/core"
	"github.com/spf13/afero"
)

type cacheKey struct {
	path  string
	size  int64
	mtime int64
}

// CachedReader memoizes successful identity reads, keyed by path, size and
// modification time. Index rebuilds walk the same directories repeatedly;
// an unchanged file never needs a second metadata parse.
type CachedReader struct {
	fs    afero.Fs
	inner IdentityReader
	cache *lru.Cache[cacheKey, core.ModuleIdentity]
}

// NewCachedReader wraps inner with an LRU of the given capacity.
func NewCachedReader(fsys afero.Fs, inner IdentityReader, capacity int) (*CachedReader, error) {
	cache, err := lru.New[cacheKey, core.ModuleIdentity](capacity)
	if err != nil {
		return nil, err
	}
	return &CachedReader{fs: fsys, inner: inner, cache: cache}, nil
}

func (r *CachedReader) ReadIdentity(path string) (core.ModuleIdentity, error) {
	info, err := r.fs.Stat(path)
	if err != nil {
		return core.ModuleIdentity{}, err
	}
	key := cacheKey{path: core.PathKey(path), size: info.Size(), mtime: info.ModTime().UnixNano()}

	if ident, ok := r.cache.Get(key); ok {
		return ident, nil
	}
	ident, err := r.inner.ReadIdentity(path)
	if err != nil {
		return core.ModuleIdentity{}, err
	}
	r.cache.Add(key, ident)
	return ident, nil
}
