package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/quantmind-br/tialoc/internal/config"
	"github.com/quantmind-br/tialoc/internal/core"
	"github.com/quantmind-br/tialoc/internal/profile"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeInstallation lays out a complete installation under root and returns
// the module folder.
func writeInstallation(t *testing.T, root string) string {
	t.Helper()

	install := filepath.Join(root, "Siemens", "Automation", "Portal V17", "PublicAPI", "V17")
	require.NoError(t, os.MkdirAll(install, 0755))
	for _, name := range core.TIAPortalV17().RequiredFiles {
		require.NoError(t, os.WriteFile(filepath.Join(install, name), []byte("MZ"), 0644))
	}
	return install
}

func TestNewScanCmd(t *testing.T) {
	t.Parallel()
	logger := zerolog.New(io.Discard)
	cmd := NewScanCmd(&config.Config{}, &logger)

	assert.NotNil(t, cmd)
	assert.Equal(t, "scan", cmd.Use)
	for _, flag := range []string{"json", "fast", "root", "all", "save", "non-interactive"} {
		assert.NotNil(t, cmd.Flags().Lookup(flag), flag)
	}
}

func TestScanCmd_JSONFindsInstallation(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	install := writeInstallation(t, dir)
	logger := zerolog.New(io.Discard)
	cfg := &config.Config{Paths: config.PathsConfig{DataDir: filepath.Join(dir, "data")}}

	cmd := NewScanCmd(cfg, &logger)
	cmd.SetArgs([]string{"--json", "--root", dir})
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(io.Discard)

	require.NoError(t, cmd.Execute())

	var report struct {
		Roots      []string         `json:"roots"`
		Candidates []core.Candidate `json:"candidates"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &report))

	assert.Equal(t, []string{dir}, report.Roots)
	require.NotEmpty(t, report.Candidates)
	best := report.Candidates[0]
	assert.True(t, strings.HasSuffix(best.Folder, filepath.Join("PublicAPI", "V17")), best.Folder)
	assert.Equal(t, core.QualityExact, best.Quality)
	assert.True(t, best.IsValid())
	assert.Equal(t, filepath.Join(install, "Siemens.Engineering.dll"), best.PrimaryPath)

	// The scan also leaves a report behind for support bundles.
	_, err := os.Stat(filepath.Join(dir, "data", "last_scan.json"))
	assert.NoError(t, err)
}

func TestScanCmd_JSONNothingFound(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	logger := zerolog.New(io.Discard)
	cfg := &config.Config{Paths: config.PathsConfig{DataDir: filepath.Join(dir, "data")}}

	cmd := NewScanCmd(cfg, &logger)
	cmd.SetArgs([]string{"--json", "--root", dir})
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(io.Discard)

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, core.ExitNoInstall, ExitCode(err))

	var report struct {
		Candidates []core.Candidate `json:"candidates"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &report))
	assert.Empty(t, report.Candidates)
}

func TestScanCmd_SaveWritesProfile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	install := writeInstallation(t, dir)
	logger := zerolog.New(io.Discard)
	cfg := &config.Config{Paths: config.PathsConfig{
		DataDir: filepath.Join(dir, "data"),
		DBFile:  filepath.Join(dir, "data", "profiles.db"),
	}}

	cmd := NewScanCmd(cfg, &logger)
	cmd.SetArgs([]string{"--json", "--save", "--root", dir})
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(io.Discard)

	require.NoError(t, cmd.Execute())

	ctx := context.Background()
	store, err := profile.Open(ctx, cfg.Paths.DBFile)
	require.NoError(t, err)
	defer store.Close()

	p, err := store.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, install, p.Folder)
	assert.Equal(t, string(core.QualityExact), p.Quality)
}

func TestScanCmd_FastOnlyMissesDeepInstall(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeInstallation(t, dir)
	logger := zerolog.New(io.Discard)
	cfg := &config.Config{Paths: config.PathsConfig{DataDir: filepath.Join(dir, "data")}}

	// The fixture does not sit at a conventional probe location, so the
	// probe-only pass cannot see it.
	cmd := NewScanCmd(cfg, &logger)
	cmd.SetArgs([]string{"--json", "--fast", "--root", dir})
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(io.Discard)

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, core.ExitNoInstall, ExitCode(err))
}
