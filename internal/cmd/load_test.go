package cmd

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/quantmind-br/tialoc/internal/config"
	"github.com/quantmind-br/tialoc/internal/core"
	"github.com/quantmind-br/tialoc/internal/profile"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoadCmd(t *testing.T) {
	t.Parallel()
	logger := zerolog.New(io.Discard)
	cmd := NewLoadCmd(&config.Config{}, &logger)

	assert.NotNil(t, cmd)
	assert.Equal(t, "load [folder]", cmd.Use)
	for _, flag := range []string{"folder", "no-profile", "non-interactive", "no-save", "json", "fast", "root"} {
		assert.NotNil(t, cmd.Flags().Lookup(flag), flag)
	}
}

// installCandidate builds the candidate the validator would produce for a
// fixture written by writeInstallation.
func installCandidate(install string) core.Candidate {
	m := core.TIAPortalV17()
	files := make(map[string]string, len(m.RequiredFiles))
	for _, name := range m.RequiredFiles {
		files[name] = filepath.Join(install, name)
	}
	return core.Candidate{
		Folder:        install,
		RequiredFiles: files,
		PrimaryPath:   files[m.Primary()],
		Version:       "17.0.0.0",
		Quality:       core.QualityExact,
	}
}

func TestPickInstallation_ExplicitFolder(t *testing.T) {
	t.Parallel()
	logger := zerolog.New(io.Discard)
	ctx := context.Background()
	fsys := afero.NewOsFs()
	m := core.TIAPortalV17()
	install := writeInstallation(t, t.TempDir())
	cfg := &config.Config{}

	c, err := pickInstallation(ctx, cfg, &logger, m, fsys, pickOptions{Folder: install})
	require.NoError(t, err)
	assert.Equal(t, install, c.Folder)
	assert.Equal(t, core.QualityExact, c.Quality)
	assert.True(t, c.IsValid())
}

func TestPickInstallation_ExplicitFolderIncomplete(t *testing.T) {
	t.Parallel()
	logger := zerolog.New(io.Discard)
	ctx := context.Background()
	fsys := afero.NewOsFs()
	m := core.TIAPortalV17()
	cfg := &config.Config{}

	_, err := pickInstallation(ctx, cfg, &logger, m, fsys, pickOptions{Folder: t.TempDir()})
	assert.ErrorIs(t, err, core.ErrNoCandidate)
}

func TestSavedCandidate(t *testing.T) {
	t.Parallel()
	logger := zerolog.New(io.Discard)
	ctx := context.Background()
	fsys := afero.NewOsFs()

	t.Run("empty store yields nil", func(t *testing.T) {
		t.Parallel()
		cfg := &config.Config{Paths: config.PathsConfig{DBFile: filepath.Join(t.TempDir(), "profiles.db")}}

		assert.Nil(t, savedCandidate(ctx, cfg, &logger, fsys))
	})

	t.Run("fresh profile is reused", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		install := writeInstallation(t, dir)
		cfg := &config.Config{Paths: config.PathsConfig{DBFile: filepath.Join(dir, "profiles.db")}}

		store, err := profile.Open(ctx, cfg.Paths.DBFile)
		require.NoError(t, err)
		require.NoError(t, store.Save(ctx, profile.FromCandidate(installCandidate(install))))
		require.NoError(t, store.Close())

		got := savedCandidate(ctx, cfg, &logger, fsys)
		require.NotNil(t, got)
		assert.Equal(t, install, got.Folder)
		assert.True(t, got.IsValid())
		assert.Equal(t, core.QualityExact, got.Quality)
	})

	t.Run("stale profile forces rescan", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		install := writeInstallation(t, dir)
		cfg := &config.Config{Paths: config.PathsConfig{DBFile: filepath.Join(dir, "profiles.db")}}

		store, err := profile.Open(ctx, cfg.Paths.DBFile)
		require.NoError(t, err)
		require.NoError(t, store.Save(ctx, profile.FromCandidate(installCandidate(install))))
		require.NoError(t, store.Close())

		require.NoError(t, os.Remove(filepath.Join(install, "Siemens.Engineering.Hmi.dll")))

		assert.Nil(t, savedCandidate(ctx, cfg, &logger, fsys))
	})
}

func TestSaveProfile_RoundTrip(t *testing.T) {
	t.Parallel()
	logger := zerolog.New(io.Discard)
	ctx := context.Background()
	dir := t.TempDir()
	install := writeInstallation(t, dir)
	cfg := &config.Config{Paths: config.PathsConfig{DBFile: filepath.Join(dir, "profiles.db")}}

	assert.True(t, saveProfile(ctx, cfg, &logger, installCandidate(install)))

	store, err := profile.Open(ctx, cfg.Paths.DBFile)
	require.NoError(t, err)
	defer store.Close()

	p, err := store.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, install, p.Folder)
	assert.Equal(t, "17.0.0.0", p.Version)
}
