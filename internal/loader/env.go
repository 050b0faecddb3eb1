package loader

import (
	"os"
	"strings"

	"github.com/quantmind-br/tialoc/internal/core"
	"github.com/rs/zerolog"
)

// PrepareEnv rewrites the process search path for the load attempt: entries
// matching the known conflict suffix are dropped, then the derived search
// directories are prepended ahead of everything already there, skipping
// ones already present. Each directory is also registered with the native
// library search mechanism on platforms that have one. Returns the final
// path entries, front first.
func PrepareEnv(logger *zerolog.Logger, m *core.Manifest, searchDirs []string) ([]string, error) {
	parts := splitPath(os.Getenv("PATH"))
	parts = stripConflicts(parts, m.ConflictSuffix)
	merged := mergePath(searchDirs, parts)

	if err := os.Setenv("PATH", strings.Join(merged, string(os.PathListSeparator))); err != nil {
		return nil, err
	}

	for _, dir := range searchDirs {
		registerNativeDir(logger, dir)
	}

	logger.Debug().
		Int("prepended", len(merged)-len(parts)).
		Int("total", len(merged)).
		Msg("search path prepared")
	return merged, nil
}

func splitPath(path string) []string {
	var out []string
	for _, p := range strings.Split(path, string(os.PathListSeparator)) {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out
}

// stripConflicts removes entries whose canonical form ends with the given
// suffix. Vendor tools are known to put an incompatible copy of the runtime
// there; having it on the path breaks module resolution.
func stripConflicts(entries []string, suffix string) []string {
	if suffix == "" {
		return entries
	}
	want := "/" + strings.ToLower(suffix)
	out := entries[:0:0]
	for _, entry := range entries {
		if strings.HasSuffix(core.PathKey(entry), want) {
			continue
		}
		out = append(out, entry)
	}
	return out
}

// mergePath prepends the directories not already present, keeping derived
// order in front of the existing entries.
func mergePath(prepend, existing []string) []string {
	present := make(map[string]struct{}, len(existing))
	for _, entry := range existing {
		present[core.PathKey(entry)] = struct{}{}
	}
	merged := make([]string, 0, len(prepend)+len(existing))
	for _, dir := range prepend {
		if _, dup := present[core.PathKey(dir)]; dup {
			continue
		}
		merged = append(merged, dir)
	}
	return append(merged, existing...)
}
