package archive

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
)

// Zip record signatures and header flags.
const (
	localFileHeaderSignature  = 0x04034b50
	centralDirectorySignature = 0x02014b50
	endOfCentralDirSignature  = 0x06054b50
	zip64EndSignature         = 0x06064b50
	dataDescriptorSignature   = 0x08074b50

	flagEncrypted      = 0x1
	flagDataDescriptor = 0x8

	zip64ExtraID = 0x0001
	uint32max    = 0xffffffff
)

var (
	ErrFormat      = errors.New("archive: not a valid zip stream")
	ErrChecksum    = errors.New("archive: checksum error")
	ErrUnsafePath  = errors.New("archive: entry path escapes destination")
	ErrUnsupported = errors.New("archive: unsupported zip entry")
)

// ExtractStats summarises an extraction.
type ExtractStats struct {
	Files       int
	Directories int
	Bytes       int64
}

// Extract reads a zip archive sequentially from r and writes its entries
// under dest, which is created if needed. Entries are written as their
// bytes arrive; the archive never has to be resident in memory or on disk.
// The central directory is not consulted: it only marks the end of the
// entries, and the remaining bytes of r are drained.
func Extract(ctx context.Context, r io.Reader, dest string) (ExtractStats, error) {
	var stats ExtractStats

	absDest, err := filepath.Abs(dest)
	if err != nil {
		return stats, fmt.Errorf("resolve destination: %w", err)
	}
	if err := os.MkdirAll(absDest, 0o755); err != nil {
		return stats, fmt.Errorf("create destination: %w", err)
	}

	br := &countingByteReader{r: bufio.NewReaderSize(r, 64<<10)}
	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		sig, err := readUint32(br)
		if err != nil {
			return stats, fmt.Errorf("%w: reading record signature: %v", ErrFormat, err)
		}
		switch sig {
		case localFileHeaderSignature:
			if err := extractEntry(br, absDest, &stats); err != nil {
				return stats, err
			}
		case centralDirectorySignature, endOfCentralDirSignature, zip64EndSignature:
			if _, err := io.Copy(io.Discard, br); err != nil {
				return stats, fmt.Errorf("drain archive trailer: %w", err)
			}
			return stats, nil
		default:
			return stats, fmt.Errorf("%w: unexpected signature 0x%08x", ErrFormat, sig)
		}
	}
}

type localHeader struct {
	flags            uint16
	method           uint16
	crc32            uint32
	compressedSize   uint64
	uncompressedSize uint64
	name             string
}

func readLocalHeader(br *countingByteReader) (localHeader, error) {
	var buf [26]byte
	if _, err := io.ReadFull(br, buf[:]); err != nil {
		return localHeader{}, fmt.Errorf("%w: short local header: %v", ErrFormat, err)
	}
	le := binary.LittleEndian
	h := localHeader{
		flags:            le.Uint16(buf[2:4]),
		method:           le.Uint16(buf[4:6]),
		crc32:            le.Uint32(buf[10:14]),
		compressedSize:   uint64(le.Uint32(buf[14:18])),
		uncompressedSize: uint64(le.Uint32(buf[18:22])),
	}
	nameLen := int(le.Uint16(buf[22:24]))
	extraLen := int(le.Uint16(buf[24:26]))

	rest := make([]byte, nameLen+extraLen)
	if _, err := io.ReadFull(br, rest); err != nil {
		return localHeader{}, fmt.Errorf("%w: short entry name: %v", ErrFormat, err)
	}
	h.name = string(rest[:nameLen])

	if h.compressedSize == uint32max || h.uncompressedSize == uint32max {
		parseZip64Extra(&h, rest[nameLen:])
	}
	return h, nil
}

// parseZip64Extra replaces saturated 32-bit sizes with their 64-bit
// values from the zip64 extended information field.
func parseZip64Extra(h *localHeader, extra []byte) {
	le := binary.LittleEndian
	for len(extra) >= 4 {
		id := le.Uint16(extra[0:2])
		size := int(le.Uint16(extra[2:4]))
		extra = extra[4:]
		if size > len(extra) {
			return
		}
		field := extra[:size]
		extra = extra[size:]
		if id != zip64ExtraID {
			continue
		}
		if h.uncompressedSize == uint32max && len(field) >= 8 {
			h.uncompressedSize = le.Uint64(field[:8])
			field = field[8:]
		}
		if h.compressedSize == uint32max && len(field) >= 8 {
			h.compressedSize = le.Uint64(field[:8])
		}
		return
	}
}

func extractEntry(br *countingByteReader, dest string, stats *ExtractStats) error {
	h, err := readLocalHeader(br)
	if err != nil {
		return err
	}
	if h.flags&flagEncrypted != 0 {
		return fmt.Errorf("%w: %s is encrypted", ErrUnsupported, h.name)
	}
	target, err := safeJoin(dest, h.name)
	if err != nil {
		return err
	}
	isDir := strings.HasSuffix(h.name, "/")
	hasDescriptor := h.flags&flagDataDescriptor != 0

	var out io.Writer = io.Discard
	if isDir {
		if err := os.MkdirAll(target, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", h.name, err)
		}
		stats.Directories++
	} else {
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("create parent of %s: %w", h.name, err)
		}
		f, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("create %s: %w", h.name, err)
		}
		defer f.Close()
		out = f
	}

	start := br.n
	body, err := entryBody(br, h, isDir, hasDescriptor)
	if err != nil {
		return err
	}
	hasher := crc32.NewIEEE()
	written, err := io.Copy(io.MultiWriter(out, hasher), body)
	if cerr := body.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("%w: extracting %s: %v", ErrFormat, h.name, err)
	}

	if hasDescriptor {
		compressed := uint64(br.n - start)
		if err := readDataDescriptor(br, &h, compressed, uint64(written)); err != nil {
			return fmt.Errorf("%s: %w", h.name, err)
		}
	}
	if hasher.Sum32() != h.crc32 {
		return fmt.Errorf("%w: %s", ErrChecksum, h.name)
	}
	if uint64(written) != h.uncompressedSize {
		return fmt.Errorf("%w: %s: size %d, header says %d", ErrFormat, h.name, written, h.uncompressedSize)
	}

	if f, ok := out.(*os.File); ok {
		if err := f.Close(); err != nil {
			return fmt.Errorf("close %s: %w", h.name, err)
		}
		stats.Files++
		stats.Bytes += written
	}
	return nil
}

// entryBody returns a reader over the decompressed entry data that stops
// exactly at the end of the entry's compressed bytes.
func entryBody(br *countingByteReader, h localHeader, isDir, hasDescriptor bool) (io.ReadCloser, error) {
	switch h.method {
	case zip.Store:
		if hasDescriptor {
			if isDir {
				return io.NopCloser(strings.NewReader("")), nil
			}
			return io.NopCloser(&storedDescriptorReader{br: br}), nil
		}
		return io.NopCloser(io.LimitReader(br, int64(h.compressedSize))), nil
	case zip.Deflate:
		if hasDescriptor {
			// br is an io.ByteReader, so the decompressor consumes no byte
			// past the end of the deflate stream.
			return flate.NewReader(br), nil
		}
		limited := io.LimitReader(br, int64(h.compressedSize))
		return &drainCloser{ReadCloser: flate.NewReader(limited), rest: limited}, nil
	default:
		return nil, fmt.Errorf("%w: %s uses compression method %d", ErrUnsupported, h.name, h.method)
	}
}

// readDataDescriptor reads the trailer that follows streamed entries.
// The signature is optional; the field width is 64 bits when either size
// overflowed 32 bits.
func readDataDescriptor(br *countingByteReader, h *localHeader, compressed, uncompressed uint64) error {
	first, err := readUint32(br)
	if err != nil {
		return fmt.Errorf("%w: short data descriptor: %v", ErrFormat, err)
	}
	if first == dataDescriptorSignature {
		if first, err = readUint32(br); err != nil {
			return fmt.Errorf("%w: short data descriptor: %v", ErrFormat, err)
		}
	}
	h.crc32 = first

	zip64 := compressed >= uint32max || uncompressed >= uint32max
	if zip64 {
		var buf [16]byte
		if _, err := io.ReadFull(br, buf[:]); err != nil {
			return fmt.Errorf("%w: short data descriptor: %v", ErrFormat, err)
		}
		h.compressedSize = binary.LittleEndian.Uint64(buf[0:8])
		h.uncompressedSize = binary.LittleEndian.Uint64(buf[8:16])
	} else {
		var buf [8]byte
		if _, err := io.ReadFull(br, buf[:]); err != nil {
			return fmt.Errorf("%w: short data descriptor: %v", ErrFormat, err)
		}
		h.compressedSize = uint64(binary.LittleEndian.Uint32(buf[0:4]))
		h.uncompressedSize = uint64(binary.LittleEndian.Uint32(buf[4:8]))
	}
	if h.compressedSize != compressed {
		return fmt.Errorf("%w: compressed size %d, descriptor says %d", ErrFormat, compressed, h.compressedSize)
	}
	return nil
}

// safeJoin resolves an entry name below dest, refusing absolute paths and
// any name that climbs out of dest.
func safeJoin(dest, name string) (string, error) {
	clean := strings.TrimSuffix(strings.ReplaceAll(name, `\`, "/"), "/")
	if clean == "" || !filepath.IsLocal(filepath.FromSlash(clean)) {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, name)
	}
	return filepath.Join(dest, filepath.FromSlash(clean)), nil
}

func readUint32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

// countingByteReader counts consumed bytes and keeps io.ByteReader
// available to the decompressor.
type countingByteReader struct {
	r *bufio.Reader
	n int64
}

func (c *countingByteReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func (c *countingByteReader) ReadByte() (byte, error) {
	b, err := c.r.ReadByte()
	if err == nil {
		c.n++
	}
	return b, err
}

// drainCloser discards whatever the decompressor left unread in a
// size-delimited entry so the next header starts at the right offset.
type drainCloser struct {
	io.ReadCloser
	rest io.Reader
}

func (d *drainCloser) Close() error {
	err := d.ReadCloser.Close()
	if _, derr := io.Copy(io.Discard, d.rest); err == nil {
		err = derr
	}
	return err
}

// storedDescriptorReader returns the data of a stored entry whose size is
// only given in the trailing data descriptor. It stops in front of the
// first descriptor signature whose CRC and size match the bytes returned
// so far, leaving the descriptor for readDataDescriptor.
type storedDescriptorReader struct {
	br   *countingByteReader
	sum  uint32
	n    uint64
	done bool
}

// descriptorLookahead covers a signed zip64 data descriptor.
const descriptorLookahead = 24

func (s *storedDescriptorReader) Read(p []byte) (int, error) {
	if s.done {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}
	want := min(len(p)+descriptorLookahead, s.br.r.Size())
	buf, err := s.br.r.Peek(want)
	if len(buf) < descriptorLookahead {
		if err == nil || err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return 0, err
	}

	limit := min(len(buf)-descriptorLookahead+1, len(p))
	for i := 0; i < limit; i++ {
		if binary.LittleEndian.Uint32(buf[i:]) != dataDescriptorSignature {
			continue
		}
		if s.matches(buf[:i], buf[i+4:]) {
			s.done = true
			return s.consume(p[:i])
		}
	}
	return s.consume(p[:limit])
}

// matches reports whether desc, the bytes after a descriptor signature,
// describes the entry if it ended after data.
func (s *storedDescriptorReader) matches(data, desc []byte) bool {
	le := binary.LittleEndian
	if le.Uint32(desc[0:4]) != crc32.Update(s.sum, crc32.IEEETable, data) {
		return false
	}
	size := s.n + uint64(len(data))
	if size >= uint32max {
		return le.Uint64(desc[4:12]) == size && le.Uint64(desc[12:20]) == size
	}
	return uint64(le.Uint32(desc[4:8])) == size && uint64(le.Uint32(desc[8:12])) == size
}

func (s *storedDescriptorReader) consume(p []byte) (int, error) {
	n, err := io.ReadFull(s.br, p)
	s.sum = crc32.Update(s.sum, crc32.IEEETable, p[:n])
	s.n += uint64(n)
	if err != nil {
		return n, err
	}
	if s.done && n == 0 {
		return 0, io.EOF
	}
	return n, nil
}
