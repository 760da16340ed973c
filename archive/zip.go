package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
)

// DefaultCompressionLevel lets the compressor pick its own default.
const DefaultCompressionLevel = flate.DefaultCompression

// ErrInvalidCompressionLevel is returned for levels outside -1..9.
var ErrInvalidCompressionLevel = errors.New("invalid compression level")

// ValidateCompressionLevel accepts DefaultCompressionLevel and 0..9.
func ValidateCompressionLevel(level int) error {
	if level < DefaultCompressionLevel || level > flate.BestCompression {
		return fmt.Errorf("%w: %d (want %d..%d)", ErrInvalidCompressionLevel, level, flate.NoCompression, flate.BestCompression)
	}
	return nil
}

// Write streams a zip archive of entries into w, one entry at a time in
// the given order. File contents are deflated at level; nothing beyond the
// compressor window is held in memory, so a slow w blocks the writer.
func Write(ctx context.Context, w io.Writer, entries []Entry, level int) error {
	if err := ValidateCompressionLevel(level); err != nil {
		return err
	}

	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, level)
	})

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if e.IsDir() {
			if _, err := zw.CreateHeader(&zip.FileHeader{
				Name:   dirName(e.DestinationPath),
				Method: zip.Store,
			}); err != nil {
				return fmt.Errorf("zip create %s: %w", e.DestinationPath, err)
			}
			continue
		}
		if err := addFile(zw, e); err != nil {
			return err
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("close zip: %w", err)
	}
	return nil
}

func addFile(zw *zip.Writer, e Entry) error {
	f, err := os.Open(e.SourcePath)
	if err != nil {
		return fmt.Errorf("open %s: %w", e.SourcePath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", e.SourcePath, err)
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("zip header %s: %w", e.DestinationPath, err)
	}
	hdr.Name = e.DestinationPath
	hdr.Method = zip.Deflate

	fw, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("zip create %s: %w", e.DestinationPath, err)
	}
	if _, err := io.Copy(fw, f); err != nil {
		return fmt.Errorf("zip write %s: %w", e.DestinationPath, err)
	}
	return nil
}
