package profile

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/quantmind-br/tialoc/internal/core"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "profiles.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleCandidate(folder string) core.Candidate {
	return core.Candidate{
		Folder: folder,
		RequiredFiles: map[string]string{
			"Siemens.Engineering.dll":     folder + "/Siemens.Engineering.dll",
			"Siemens.Engineering.Hmi.dll": "/elsewhere/Siemens.Engineering.Hmi.dll",
		},
		PrimaryPath: folder + "/Siemens.Engineering.dll",
		Version:     "17.0.0.0",
		Token:       "d29ec89cac4301dd",
		Quality:     core.QualityExact,
		MultiDir:    true,
		Note:        "multi-folder (auto)",
	}
}

func TestSaveAndCurrent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.Current(ctx); !errors.Is(err, ErrNoProfile) {
		t.Fatalf("empty store Current = %v, want ErrNoProfile", err)
	}

	p := FromCandidate(sampleCandidate("/c/portal/PublicAPI/V17"))
	if err := s.Save(ctx, p); err != nil {
		t.Fatalf("save: %v", err)
	}
	if p.ID == 0 {
		t.Error("save did not assign an ID")
	}
	if p.SavedAt.IsZero() {
		t.Error("save did not stamp SavedAt")
	}

	got, err := s.Current(ctx)
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if got.Folder != p.Folder || got.PrimaryPath != p.PrimaryPath {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if got.Quality != string(core.QualityExact) {
		t.Errorf("quality = %q", got.Quality)
	}
	if got.Version != "17.0.0.0" || got.Token != "d29ec89cac4301dd" {
		t.Errorf("identity fields lost: version %q token %q", got.Version, got.Token)
	}
	if !got.MultiDir {
		t.Error("multi-dir flag lost")
	}
	if got.Files["Siemens.Engineering.Hmi.dll"] != "/elsewhere/Siemens.Engineering.Hmi.dll" {
		t.Errorf("files map lost: %v", got.Files)
	}
	if !got.LastVerified.IsZero() {
		t.Errorf("fresh profile already verified: %v", got.LastVerified)
	}
}

func TestHistoryNewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, folder := range []string{"/a", "/b", "/c"} {
		if err := s.Save(ctx, FromCandidate(sampleCandidate(folder))); err != nil {
			t.Fatal(err)
		}
	}

	all, err := s.History(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("history has %d entries, want 3", len(all))
	}
	if all[0].Folder != "/c" || all[2].Folder != "/a" {
		t.Errorf("history order: %s, %s, %s", all[0].Folder, all[1].Folder, all[2].Folder)
	}

	limited, err := s.History(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 2 {
		t.Errorf("limited history has %d entries, want 2", len(limited))
	}
}

func TestTouch(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	p := FromCandidate(sampleCandidate("/c/portal"))
	if err := s.Save(ctx, p); err != nil {
		t.Fatal(err)
	}

	if err := s.Touch(ctx, p.ID); err != nil {
		t.Fatalf("touch: %v", err)
	}
	got, err := s.Current(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got.LastVerified.IsZero() {
		t.Error("touch did not record verification time")
	}

	if err := s.Touch(ctx, p.ID+100); !errors.Is(err, ErrNoProfile) {
		t.Errorf("touch on missing row = %v, want ErrNoProfile", err)
	}
}

func TestClear(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Save(ctx, FromCandidate(sampleCandidate("/c/portal"))); err != nil {
		t.Fatal(err)
	}
	if err := s.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, err := s.Current(ctx); !errors.Is(err, ErrNoProfile) {
		t.Errorf("after clear Current = %v, want ErrNoProfile", err)
	}
}

func TestCandidateRoundTrip(t *testing.T) {
	orig := sampleCandidate("/c/portal/PublicAPI/V17")
	got := FromCandidate(orig).Candidate()

	if got.Folder != orig.Folder || got.PrimaryPath != orig.PrimaryPath {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if got.Quality != orig.Quality {
		t.Errorf("quality = %q, want %q", got.Quality, orig.Quality)
	}
	if got.Version != orig.Version || got.Token != orig.Token {
		t.Errorf("identity fields lost: %+v", got)
	}
	if !got.MultiDir || got.Note != orig.Note {
		t.Errorf("multi-dir fields lost: %+v", got)
	}
	if got.RequiredFiles["Siemens.Engineering.Hmi.dll"] != "/elsewhere/Siemens.Engineering.Hmi.dll" {
		t.Errorf("files map lost: %v", got.RequiredFiles)
	}
	if !got.IsValid() {
		t.Error("reconstructed candidate should have no missing files")
	}
}
