package discovery

import (
	"path/filepath"
	"strings"

	"github.com/quantmind-br/tialoc/internal/assembly"
	"github.com/quantmind-br/tialoc/internal/core"
	"github.com/quantmind-br/tialoc/internal/versioninfo"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// Validator checks a directory against the required-file manifest.
type Validator struct {
	Fs       afero.Fs
	Logger   *zerolog.Logger
	Manifest *core.Manifest
}

func NewValidator(fsys afero.Fs, logger *zerolog.Logger, m *core.Manifest) *Validator {
	return &Validator{Fs: fsys, Logger: logger, Manifest: m}
}

// Validate evaluates one directory. Requirements are checked directly under
// folder, without recursion. Version and identity metadata are read
// best-effort from the primary file; their absence never invalidates a
// candidate, it only costs ranking bonuses later.
func (v *Validator) Validate(folder string) core.Candidate {
	cand := core.Candidate{
		Folder:        folder,
		RequiredFiles: make(map[string]string, len(v.Manifest.RequiredFiles)),
		Quality:       core.QualityHeuristic,
	}

	for _, name := range v.Manifest.RequiredFiles {
		path := filepath.Join(folder, name)
		info, err := v.Fs.Stat(path)
		if err != nil || info.IsDir() {
			cand.RequiredFiles[name] = ""
			cand.Missing = append(cand.Missing, name)
			continue
		}
		cand.RequiredFiles[name] = path
	}

	primary := cand.RequiredFiles[v.Manifest.Primary()]
	if primary == "" {
		return cand
	}

	cand.PrimaryPath = primary
	cand.Quality = AssessQuality(v.Manifest, primary)
	if info, err := v.Fs.Stat(primary); err == nil {
		cand.LastModified = info.ModTime()
	}

	cand.Version = versioninfo.Native(v.Fs, primary)
	if ident, err := assembly.Read(v.Fs, primary); err == nil {
		cand.Token = ident.Token
		if cand.Version == "" {
			cand.Version = ident.Version
		}
	} else {
		v.Logger.Debug().Err(err).Str("file", primary).Msg("managed identity unavailable")
	}
	return cand
}

// AssessQuality grades how strongly the primary file's path corroborates the
// installation. The file name alone is a weak signal: stray backup copies
// are common, so the surrounding path segments carry most of the weight.
func AssessQuality(m *core.Manifest, primaryPath string) core.Quality {
	segs := strings.Split(core.PathKey(primaryPath), "/")

	hasAPI := false
	hasVersion := false
	for _, seg := range segs {
		if strings.Contains(seg, m.APIMarker) {
			hasAPI = true
		}
		if strings.Contains(seg, m.VersionMarker) {
			hasVersion = true
		}
	}
	exactName := segs[len(segs)-1] == strings.ToLower(m.Primary())

	switch {
	case hasAPI && hasVersion && exactName:
		return core.QualityExact
	case hasVersion:
		return core.QualityPathMatch
	case hasAPI:
		return core.QualityPartial
	default:
		return core.QualityHeuristic
	}
}
