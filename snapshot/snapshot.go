package snapshot

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

var (
	containerMagic = [4]byte{'K', 'S', 'C', '1'}
	dirMagic       = [4]byte{'K', 'S', 'D', '1'}
	footerMagic    = [4]byte{'K', 'S', 'F', '1'}

	formatVersion = uint16(1)
)

// Section types of the collection snapshot blobs.
const (
	// SectionGraph holds the serialized proximity graph, vectors included.
	SectionGraph SectionType = 1
	// SectionDocuments holds the codec-marshaled document table keyed by
	// external identifier.
	SectionDocuments SectionType = 2
	// SectionTombstones holds the serialized tombstone bitmap.
	SectionTombstones SectionType = 3
)

// SectionType identifies the payload stored in a container section.
type SectionType uint16

// ErrSectionNotFound is returned when a container has no section of the
// requested type.
var ErrSectionNotFound = errors.New("snapshot: section not found")

type sectionEntry struct {
	Type     SectionType
	Checksum uint32 // CRC32 of the stored (possibly compressed) payload
	Offset   uint64
	Len      uint64
}

// WriterOptions represents the options for writing a container.
type WriterOptions struct {
	// CodecName records which codec produced codec-marshaled sections, so a
	// reader can refuse a snapshot it cannot decode.
	CodecName string

	// Compression is applied to every section payload.
	Compression Compression
}

// Writer writes a sectioned snapshot container:
//
//  1. header (magic/version/compression/codec name)
//  2. section payloads, each checksummed and optionally compressed
//  3. directory (type/checksum/offset/length per section)
//  4. footer (directory offset/length)
//
// The trailing directory keeps writing single-pass: payload sizes are only
// known after compression.
type Writer struct {
	cw      *countingWriter
	opts    WriterOptions
	entries []sectionEntry
	started bool
	closed  bool
}

// NewWriter creates a container writer on top of w.
func NewWriter(w io.Writer, optFns ...func(o *WriterOptions)) *Writer {
	opts := WriterOptions{}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Writer{
		cw:   &countingWriter{w: w},
		opts: opts,
	}
}

// WriteSection buffers the payload produced by fn, compresses and checksums
// it, and appends it as a section. Section types must be unique within a
// container.
func (w *Writer) WriteSection(t SectionType, fn func(w io.Writer) error) error {
	var buf bytes.Buffer
	if err := fn(&buf); err != nil {
		return err
	}

	return w.AddSection(t, buf.Bytes())
}

// AddSection compresses and checksums data and appends it as a section.
func (w *Writer) AddSection(t SectionType, data []byte) error {
	if w.closed {
		return errors.New("snapshot: writer closed")
	}

	for _, e := range w.entries {
		if e.Type == t {
			return fmt.Errorf("snapshot: duplicate section type %d", t)
		}
	}

	if err := w.writeHeader(); err != nil {
		return err
	}

	stored, err := compressBlock(data, w.opts.Compression)
	if err != nil {
		return err
	}

	offset := uint64(w.cw.n)

	chw := NewChecksumWriter(w.cw)
	if _, err := chw.Write(stored); err != nil {
		return err
	}

	w.entries = append(w.entries, sectionEntry{
		Type:     t,
		Checksum: chw.Sum(),
		Offset:   offset,
		Len:      uint64(len(stored)),
	})

	return nil
}

// Close writes the directory and footer. The container is unreadable until
// Close returns successfully.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}

	if err := w.writeHeader(); err != nil {
		return err
	}

	dirOffset := uint64(w.cw.n)

	if err := w.writeDirectory(); err != nil {
		return err
	}

	dirLen := uint64(w.cw.n) - dirOffset

	if err := w.writeFooter(dirOffset, dirLen); err != nil {
		return err
	}

	w.closed = true

	return nil
}

func (w *Writer) writeHeader() error {
	if w.started {
		return nil
	}

	if len(w.opts.CodecName) > 0xFFFF {
		return fmt.Errorf("snapshot: codec name too long: %d", len(w.opts.CodecName))
	}

	// Header (16 bytes + codec name)
	// [0:4]   magic
	// [4:6]   version
	// [6:7]   compression
	// [7:8]   reserved
	// [8:10]  codec name len
	// [10:16] reserved
	var hdr [16]byte
	copy(hdr[0:4], containerMagic[:])
	binary.LittleEndian.PutUint16(hdr[4:6], formatVersion)
	hdr[6] = byte(w.opts.Compression)
	binary.LittleEndian.PutUint16(hdr[8:10], uint16(len(w.opts.CodecName)))

	if _, err := w.cw.Write(hdr[:]); err != nil {
		return err
	}

	if len(w.opts.CodecName) > 0 {
		if _, err := w.cw.Write([]byte(w.opts.CodecName)); err != nil {
			return err
		}
	}

	w.started = true

	return nil
}

func (w *Writer) writeDirectory() error {
	// Directory header (12 bytes)
	// [0:4]  magic
	// [4:6]  version
	// [6:8]  reserved
	// [8:12] entry count
	var hdr [12]byte
	copy(hdr[0:4], dirMagic[:])
	binary.LittleEndian.PutUint16(hdr[4:6], formatVersion)
	binary.LittleEndian.PutUint32(hdr[8:12], uint32(len(w.entries)))

	if _, err := w.cw.Write(hdr[:]); err != nil {
		return err
	}

	// Each entry is 32 bytes
	// [0:2]   type
	// [2:4]   reserved
	// [4:8]   checksum (CRC32)
	// [8:16]  offset
	// [16:24] length
	// [24:32] reserved
	for _, e := range w.entries {
		var b [32]byte
		binary.LittleEndian.PutUint16(b[0:2], uint16(e.Type))
		binary.LittleEndian.PutUint32(b[4:8], e.Checksum)
		binary.LittleEndian.PutUint64(b[8:16], e.Offset)
		binary.LittleEndian.PutUint64(b[16:24], e.Len)

		if _, err := w.cw.Write(b[:]); err != nil {
			return err
		}
	}

	return nil
}

func (w *Writer) writeFooter(dirOffset, dirLen uint64) error {
	// Footer is 24 bytes
	// [0:4]   magic
	// [4:6]   version
	// [6:8]   reserved
	// [8:16]  directory offset
	// [16:24] directory length
	var b [24]byte
	copy(b[0:4], footerMagic[:])
	binary.LittleEndian.PutUint16(b[4:6], formatVersion)
	binary.LittleEndian.PutUint64(b[8:16], dirOffset)
	binary.LittleEndian.PutUint64(b[16:24], dirLen)

	_, err := w.cw.Write(b[:])

	return err
}

// Reader reads a sectioned snapshot container. It needs random access
// (io.ReadSeeker) to locate the footer and directory before parsing sections
// by offset.
type Reader struct {
	r           io.ReadSeeker
	codecName   string
	compression Compression
	sections    map[SectionType]sectionEntry
}

// NewReader parses the container header, footer and directory from r.
func NewReader(r io.ReadSeeker) (*Reader, error) {
	if r == nil {
		return nil, errors.New("snapshot: reader is nil")
	}

	sr := &Reader{r: r, sections: make(map[SectionType]sectionEntry)}

	if err := sr.parse(); err != nil {
		return nil, err
	}

	return sr, nil
}

// CodecName returns the codec name recorded in the container header.
func (r *Reader) CodecName() string {
	return r.codecName
}

// Compression returns the compression recorded in the container header.
func (r *Reader) Compression() Compression {
	return r.compression
}

// Has returns true if the container holds a section of the given type.
func (r *Reader) Has(t SectionType) bool {
	_, ok := r.sections[t]
	return ok
}

// Section returns the decompressed payload of the given section after
// verifying its checksum.
func (r *Reader) Section(t SectionType) ([]byte, error) {
	e, ok := r.sections[t]
	if !ok {
		return nil, fmt.Errorf("%w: type %d", ErrSectionNotFound, t)
	}

	if _, err := r.r.Seek(int64(e.Offset), io.SeekStart); err != nil {
		return nil, err
	}

	stored := make([]byte, e.Len)

	cr := NewChecksumReader(r.r)
	if _, err := io.ReadFull(cr, stored); err != nil {
		return nil, fmt.Errorf("snapshot: read section %d: %w", t, err)
	}

	if err := cr.Verify(e.Checksum); err != nil {
		return nil, err
	}

	return decompressBlock(stored, r.compression)
}

func (r *Reader) parse() error {
	if _, err := r.r.Seek(0, io.SeekStart); err != nil {
		return err
	}

	var hdr [16]byte
	if _, err := io.ReadFull(r.r, hdr[:]); err != nil {
		return fmt.Errorf("snapshot: read header: %w", err)
	}

	if [4]byte(hdr[0:4]) != containerMagic {
		return errors.New("snapshot: unsupported format: bad magic")
	}

	if ver := binary.LittleEndian.Uint16(hdr[4:6]); ver != formatVersion {
		return fmt.Errorf("snapshot: unsupported format version: %d", ver)
	}

	r.compression = Compression(hdr[6])

	nameLen := int(binary.LittleEndian.Uint16(hdr[8:10]))
	if nameLen > 0 {
		name := make([]byte, nameLen)
		if _, err := io.ReadFull(r.r, name); err != nil {
			return err
		}

		r.codecName = string(name)
	}

	// Footer (last 24 bytes)
	end, err := r.r.Seek(0, io.SeekEnd)
	if err != nil {
		return err
	}

	if end < 24 {
		return errors.New("snapshot: truncated container")
	}

	if _, err := r.r.Seek(end-24, io.SeekStart); err != nil {
		return err
	}

	var foot [24]byte
	if _, err := io.ReadFull(r.r, foot[:]); err != nil {
		return err
	}

	if [4]byte(foot[0:4]) != footerMagic {
		return errors.New("snapshot: unsupported format: missing footer")
	}

	if ver := binary.LittleEndian.Uint16(foot[4:6]); ver != formatVersion {
		return fmt.Errorf("snapshot: unsupported footer version: %d", ver)
	}

	const maxInt64u = uint64(^uint64(0) >> 1)

	dirOffset := binary.LittleEndian.Uint64(foot[8:16])
	dirLen := binary.LittleEndian.Uint64(foot[16:24])
	dataEnd := uint64(end - 24)

	if dirOffset > maxInt64u || dirLen > maxInt64u {
		return errors.New("snapshot: invalid directory offsets")
	}

	if dirLen < 12 || dirOffset > dataEnd || dirLen > dataEnd-dirOffset {
		return errors.New("snapshot: invalid directory range")
	}

	if _, err := r.r.Seek(int64(dirOffset), io.SeekStart); err != nil {
		return err
	}

	var dirHdr [12]byte
	if _, err := io.ReadFull(r.r, dirHdr[:]); err != nil {
		return err
	}

	if [4]byte(dirHdr[0:4]) != dirMagic {
		return errors.New("snapshot: invalid directory: bad magic")
	}

	count := int(binary.LittleEndian.Uint32(dirHdr[8:12]))
	if uint64(count)*32 != dirLen-12 {
		return errors.New("snapshot: invalid directory: size mismatch")
	}

	for i := 0; i < count; i++ {
		var b [32]byte
		if _, err := io.ReadFull(r.r, b[:]); err != nil {
			return err
		}

		e := sectionEntry{
			Type:     SectionType(binary.LittleEndian.Uint16(b[0:2])),
			Checksum: binary.LittleEndian.Uint32(b[4:8]),
			Offset:   binary.LittleEndian.Uint64(b[8:16]),
			Len:      binary.LittleEndian.Uint64(b[16:24]),
		}

		if e.Offset > dataEnd || e.Len > dataEnd-e.Offset {
			return fmt.Errorf("snapshot: invalid section range for type %d", e.Type)
		}

		r.sections[e.Type] = e
	}

	return nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)

	return n, err
}
