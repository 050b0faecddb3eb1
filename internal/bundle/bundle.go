// Package bundle produces tar.xz support bundles for diagnosing discovery
// and load failures. A bundle collects the rotating log tail, the saved
// profile, and the most recent scan and load reports into a single archive
// that can be attached to a support ticket.
package bundle

import (
	"archive/tar"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/ulikunitz/xz"
)

// Entry is one file captured into a support bundle. Either Source names a
// file on disk or Data holds inline content, never both.
type Entry struct {
	Name   string // path inside the archive
	Source string // file to read, skipped with a warning when missing
	Data   []byte // inline content
}

// Builder writes support bundles.
type Builder struct {
	Fs  afero.Fs
	Log *zerolog.Logger
}

// NewBuilder creates a bundle builder.
func NewBuilder(fsys afero.Fs, logger *zerolog.Logger) *Builder {
	return &Builder{Fs: fsys, Log: logger}
}

// Write creates a tar.xz archive at destPath containing every entry. Entries
// whose source file is missing are skipped so a partial environment still
// yields a usable bundle. The optional progress writer receives the raw bytes
// as they are archived.
func (b *Builder) Write(destPath string, entries []Entry, progress io.Writer) error {
	f, err := b.Fs.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create bundle: %w", err)
	}
	defer f.Close()

	xzw, err := xz.NewWriter(f)
	if err != nil {
		return fmt.Errorf("failed to create xz writer: %w", err)
	}

	tw := tar.NewWriter(xzw)

	for _, entry := range entries {
		if err := b.add(tw, entry, progress); err != nil {
			return err
		}
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("failed to finalize archive: %w", err)
	}
	if err := xzw.Close(); err != nil {
		return fmt.Errorf("failed to finalize compression: %w", err)
	}
	return f.Close()
}

func (b *Builder) add(tw *tar.Writer, entry Entry, progress io.Writer) error {
	if entry.Data != nil {
		hdr := &tar.Header{
			Name:     entry.Name,
			Mode:     0644,
			Size:     int64(len(entry.Data)),
			ModTime:  time.Now(),
			Typeflag: tar.TypeReg,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return fmt.Errorf("failed to write header for %s: %w", entry.Name, err)
		}
		if _, err := tw.Write(entry.Data); err != nil {
			return fmt.Errorf("failed to write %s: %w", entry.Name, err)
		}
		if progress != nil {
			progress.Write(entry.Data)
		}
		return nil
	}

	info, err := b.Fs.Stat(entry.Source)
	if err != nil {
		b.Log.Warn().Str("source", entry.Source).Msg("bundle source missing, skipping")
		return nil
	}

	src, err := b.Fs.Open(entry.Source)
	if err != nil {
		b.Log.Warn().Err(err).Str("source", entry.Source).Msg("bundle source unreadable, skipping")
		return nil
	}
	defer src.Close()

	hdr := &tar.Header{
		Name:     entry.Name,
		Mode:     0644,
		Size:     info.Size(),
		ModTime:  info.ModTime(),
		Typeflag: tar.TypeReg,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("failed to write header for %s: %w", entry.Name, err)
	}

	var reader io.Reader = src
	if progress != nil {
		reader = io.TeeReader(src, progress)
	}
	if _, err := io.Copy(tw, reader); err != nil {
		return fmt.Errorf("failed to copy %s: %w", entry.Name, err)
	}

	return nil
}

// TotalSize sums the byte size of all entries for sizing a progress bar.
// Missing sources count as zero.
func (b *Builder) TotalSize(entries []Entry) int64 {
	var total int64
	for _, entry := range entries {
		if entry.Data != nil {
			total += int64(len(entry.Data))
			continue
		}
		if info, err := b.Fs.Stat(entry.Source); err == nil {
			total += info.Size()
		}
	}
	return total
}

// DefaultName returns the timestamped archive name used when the caller does
// not pick one.
func DefaultName(now time.Time) string {
	return fmt.Sprintf("tialoc-bundle-%s.tar.xz", now.Format("20060102-150405"))
}

// TailBytes reads at most max bytes from the end of a file. Log files grow
// past what a ticket needs, so bundles carry only the recent tail.
func TailBytes(fsys afero.Fs, path string, max int64) ([]byte, error) {
	info, err := fsys.Stat(path)
	if err != nil {
		return nil, err
	}

	f, err := fsys.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if info.Size() > max {
		if _, err := f.Seek(info.Size()-max, io.SeekStart); err != nil {
			return nil, fmt.Errorf("failed to seek log tail: %w", err)
		}
	}

	return io.ReadAll(f)
}
