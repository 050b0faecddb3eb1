package loader

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/quantmind-br/tialoc/internal/assembly"
	"github.com/quantmind-br/tialoc/internal/core"
	"github.com/quantmind-br/tialoc/internal/resolver"
	"github.com/quantmind-br/tialoc/internal/versioninfo"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// pathHeadLen caps how much of the rewritten search path a report carries.
const pathHeadLen = 12

// Loader performs the final in-process load of one module file.
type Loader interface {
	Load(path string) error
}

// VerifyLoader is the default Loader. It confirms the file parses as a
// managed module without binding it into the process: the engine's job
// ends at a prepared environment plus a verified path set, the host
// runtime does the actual binding.
type VerifyLoader struct {
	Fs afero.Fs
}

func (l VerifyLoader) Load(path string) error {
	_, err := assembly.Read(l.Fs, path)
	return err
}

// Orchestrator runs complete load attempts against one resolver hook.
// Attempts are serialized; the hook's state is process-wide and two
// concurrent attempts would race on the search path.
type Orchestrator struct {
	Fs       afero.Fs
	Logger   *zerolog.Logger
	Manifest *core.Manifest
	Indexer  *resolver.Indexer
	Hook     *resolver.Hook
	Loader   Loader

	mu sync.Mutex
}

func NewOrchestrator(fsys afero.Fs, logger *zerolog.Logger, m *core.Manifest, ix *resolver.Indexer, hook *resolver.Hook, ld Loader) *Orchestrator {
	return &Orchestrator{
		Fs:       fsys,
		Logger:   logger,
		Manifest: m,
		Indexer:  ix,
		Hook:     hook,
		Loader:   ld,
	}
}

// Load runs one attempt against chosenRoot: derive the search set, prepare
// the environment, refresh the resolver, then load the primary module and
// the declared dependents in order. Dependent failures are recorded in the
// report without aborting the sequence; a primary failure or an
// uninstallable resolver fails the attempt. The report is returned in both
// cases and carries whatever diagnostics were gathered before the failure.
func (o *Orchestrator) Load(chosenRoot string) (*core.LoadReport, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	report := &core.LoadReport{
		Loaded: make(map[string]string),
		Failed: make(map[string]string),
	}

	dirs := DeriveSearchDirs(o.Fs, o.Manifest, chosenRoot)
	report.SearchDirs = dirs
	if len(dirs) == 0 {
		return report, fmt.Errorf("no usable search directories under %s: %w", chosenRoot, core.ErrNoCandidate)
	}

	pathEntries, err := PrepareEnv(o.Logger, o.Manifest, dirs)
	if err != nil {
		return report, fmt.Errorf("prepare environment: %w", err)
	}
	if len(pathEntries) > pathHeadLen {
		pathEntries = pathEntries[:pathHeadLen]
	}
	report.PathHead = pathEntries

	idx := o.Indexer.Build(dirs)
	if err := o.Hook.Install(idx); err != nil {
		return report, err
	}

	primaryName := o.moduleName(o.Manifest.Primary())
	primaryPath, ok := o.selectPath(idx, dirs, primaryName)
	if !ok {
		err := &core.ModuleLoadError{Module: primaryName, Primary: true, Err: core.ErrNoCandidate}
		report.Failed[primaryName] = err.Error()
		return report, err
	}
	if err := o.Loader.Load(primaryPath); err != nil {
		loadErr := &core.ModuleLoadError{Module: primaryName, Path: primaryPath, Primary: true, Err: err}
		report.Failed[primaryName] = loadErr.Error()
		return report, loadErr
	}
	report.PrimaryPath = primaryPath
	if v, err := versioninfo.Read(o.Fs, primaryPath); err == nil {
		report.PrimaryVersion = v
	}
	report.Loaded[primaryName] = primaryPath
	o.Logger.Info().Str("module", primaryName).Str("path", primaryPath).Msg("primary module loaded")

	for _, name := range o.Manifest.Dependents {
		path, ok := o.selectPath(idx, dirs, name)
		if !ok {
			report.Failed[name] = "not found in any search directory"
			o.Logger.Warn().Str("module", name).Msg("dependent module not found")
			continue
		}
		if err := o.Loader.Load(path); err != nil {
			loadErr := &core.ModuleLoadError{Module: name, Path: path, Err: err}
			report.Failed[name] = loadErr.Error()
			o.Logger.Warn().Err(err).Str("module", name).Msg("dependent module failed to load")
			continue
		}
		report.Loaded[name] = path
		o.Logger.Debug().Str("module", name).Str("path", path).Msg("dependent module loaded")
	}

	// Confirmation ping: touch the primary once more. Diagnostic only, a
	// failure here does not retract anything already loaded.
	report.PingOK = o.Loader.Load(primaryPath) == nil

	o.Logger.Info().
		Int("loaded", len(report.Loaded)).
		Int("failed", len(report.Failed)).
		Bool("ping_ok", report.PingOK).
		Msg("load attempt finished")
	return report, nil
}

// moduleName strips the module file extension off a required-file name.
func (o *Orchestrator) moduleName(fileName string) string {
	return strings.TrimSuffix(fileName, o.Manifest.ModuleExt)
}

// selectPath picks the file for a logical module name: the neutral index
// entry, then the en-US one, then a direct probe of each search directory.
// The index can miss a module that the directory probe still finds when
// identity extraction failed on an otherwise present file.
func (o *Orchestrator) selectPath(idx *resolver.Index, dirs []string, name string) (string, bool) {
	if d, ok := idx.Lookup(name, ""); ok && o.fileExists(d.Path) {
		return d.Path, true
	}
	if d, ok := idx.Lookup(name, "en-US"); ok && o.fileExists(d.Path) {
		return d.Path, true
	}
	fileName := name + o.Manifest.ModuleExt
	for _, dir := range dirs {
		probe := filepath.Join(dir, fileName)
		if o.fileExists(probe) {
			return probe, true
		}
	}
	return "", false
}

func (o *Orchestrator) fileExists(path string) bool {
	info, err := o.Fs.Stat(path)
	return err == nil && !info.IsDir()
}
