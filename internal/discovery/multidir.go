package discovery

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/quantmind-br/tialoc/internal/core"
)

// Occurrence weights for assembling a cross-directory candidate. Staying
// inside one product installation beats everything except version match,
// so a mixed pick across installs only happens when nothing else fits.
const (
	occSameRoot       = 9
	occProductToken   = 7
	occAPIMarker      = 6
	occCurrentVersion = 10
	occModuleHint     = 2

	occQualityExact     = 20
	occQualityPathMatch = 12
	occQualityPartial   = 6
)

// occOlderVersions aligns with Manifest.OlderMarkers, strongest first.
var occOlderVersions = []int{6, 3}

// CollectOccurrences gathers every distinct path each required file was
// seen at across all candidates, in first-seen order.
func CollectOccurrences(m *core.Manifest, cands []core.Candidate) map[string][]string {
	seen := make(map[string]map[string]struct{}, len(m.RequiredFiles))
	out := make(map[string][]string, len(m.RequiredFiles))
	for _, c := range cands {
		for _, name := range m.RequiredFiles {
			p := c.RequiredFiles[name]
			if p == "" {
				continue
			}
			key := core.PathKey(p)
			if seen[name] == nil {
				seen[name] = make(map[string]struct{})
			}
			if _, dup := seen[name][key]; dup {
				continue
			}
			seen[name][key] = struct{}{}
			out[name] = append(out[name], p)
		}
	}
	return out
}

// BuildMultiDir synthesizes a cross-directory candidate from the best
// occurrence of every required file seen during a scan. The primary file is
// picked first; the satellites then prefer paths under the same product
// root. Returns false when any required file was never seen at all or the
// assembled set no longer exists on disk.
func BuildMultiDir(v *Validator, cands []core.Candidate) (core.Candidate, bool) {
	m := v.Manifest
	occurrences := CollectOccurrences(m, cands)

	alive := make(map[string][]string, len(m.RequiredFiles))
	for _, name := range m.RequiredFiles {
		for _, p := range occurrences[name] {
			if info, err := v.Fs.Stat(p); err == nil && !info.IsDir() {
				alive[name] = append(alive[name], p)
			}
		}
		if len(alive[name]) == 0 {
			return core.Candidate{}, false
		}
	}

	primary := m.Primary()
	bestPrimary := v.pickOccurrence(primary, alive[primary], "")
	rootHint := productRoot(m, bestPrimary)

	cand := v.Validate(filepath.Dir(bestPrimary))
	if cand.PrimaryPath == "" {
		return core.Candidate{}, false
	}
	for _, name := range m.RequiredFiles[1:] {
		cand.RequiredFiles[name] = v.pickOccurrence(name, alive[name], rootHint)
	}
	cand.Missing = nil

	cand.MultiDir = true
	cand.Note = "multi-folder (auto)"
	v.Logger.Debug().
		Str("folder", cand.Folder).
		Str("root_hint", rootHint).
		Msg("assembled multi-directory candidate")
	return cand, true
}

// pickOccurrence selects the best-scoring occurrence of one required file;
// later modification times break score ties.
func (v *Validator) pickOccurrence(name string, paths []string, rootHint string) string {
	best := paths[0]
	bestScore := -1
	var bestTime time.Time
	for _, p := range paths {
		score := scoreOccurrence(v.Manifest, name, p, rootHint)
		var mt time.Time
		if info, err := v.Fs.Stat(p); err == nil {
			mt = info.ModTime()
		}
		if score > bestScore || (score == bestScore && mt.After(bestTime)) {
			best, bestScore, bestTime = p, score, mt
		}
	}
	return best
}

// scoreOccurrence rates one sighting of a required file. Primary sightings
// carry their full path quality; satellites get a small bonus when the path
// names the module they belong to.
func scoreOccurrence(m *core.Manifest, name, path, rootHint string) int {
	key := core.PathKey(path)
	score := 0

	if rootHint != "" && productRoot(m, path) == rootHint {
		score += occSameRoot
	}
	if strings.Contains(key, m.ProductToken) {
		score += occProductToken
	}
	if strings.Contains(key, m.APIMarker) {
		score += occAPIMarker
	}
	if strings.Contains(key, m.VersionMarker) {
		score += occCurrentVersion
	} else {
		for i, marker := range m.OlderMarkers {
			if strings.Contains(key, marker) {
				if i < len(occOlderVersions) {
					score += occOlderVersions[i]
				}
				break
			}
		}
	}

	if name == m.Primary() {
		switch AssessQuality(m, path) {
		case core.QualityExact:
			score += occQualityExact
		case core.QualityPathMatch:
			score += occQualityPathMatch
		case core.QualityPartial:
			score += occQualityPartial
		}
	} else if hint := moduleHint(name); hint != "" && strings.Contains(key, hint) {
		score += occModuleHint
	}
	return score
}

// productRoot returns the canonical path prefix up to the deepest segment
// containing the product token, or the file's parent directory when none
// does. Two paths under the same returned prefix belong to the same
// installation.
func productRoot(m *core.Manifest, path string) string {
	key := core.PathKey(path)
	segs := strings.Split(key, "/")
	for i := len(segs) - 1; i >= 0; i-- {
		if strings.Contains(segs[i], m.ProductToken) {
			return strings.Join(segs[:i+1], "/")
		}
	}
	if i := strings.LastIndex(key, "/"); i > 0 {
		return key[:i]
	}
	return key
}

// moduleHint extracts the distinguishing token from a module file name, the
// last dotted segment before the extension.
func moduleHint(name string) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	if i := strings.LastIndex(base, "."); i >= 0 {
		base = base[i+1:]
	}
	return strings.ToLower(base)
}
