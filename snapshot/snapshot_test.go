package snapshot

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func buildContainer(t *testing.T, compression Compression) []byte {
	t.Helper()

	var buf bytes.Buffer

	w := NewWriter(&buf, func(o *WriterOptions) {
		o.CodecName = "json"
		o.Compression = compression
	})

	require.NoError(t, w.AddSection(SectionGraph, []byte(strings.Repeat("graph-payload ", 64))))
	require.NoError(t, w.WriteSection(SectionDocuments, func(sw io.Writer) error {
		_, err := sw.Write([]byte(`{"doc-1":{"slot":0}}`))
		return err
	}))
	require.NoError(t, w.AddSection(SectionTombstones, []byte{0x3a, 0x30, 0x00, 0x00}))
	require.NoError(t, w.Close())

	return buf.Bytes()
}

func TestRoundTrip(t *testing.T) {
	for _, compression := range []Compression{CompressionNone, CompressionLZ4, CompressionZSTD} {
		t.Run(compression.String(), func(t *testing.T) {
			data := buildContainer(t, compression)

			r, err := NewReader(bytes.NewReader(data))
			require.NoError(t, err)

			require.Equal(t, "json", r.CodecName())
			require.Equal(t, compression, r.Compression())

			require.True(t, r.Has(SectionGraph))
			require.True(t, r.Has(SectionDocuments))
			require.True(t, r.Has(SectionTombstones))
			require.False(t, r.Has(SectionType(99)))

			graph, err := r.Section(SectionGraph)
			require.NoError(t, err)
			require.Equal(t, []byte(strings.Repeat("graph-payload ", 64)), graph)

			docs, err := r.Section(SectionDocuments)
			require.NoError(t, err)
			require.Equal(t, []byte(`{"doc-1":{"slot":0}}`), docs)

			tombstones, err := r.Section(SectionTombstones)
			require.NoError(t, err)
			require.Equal(t, []byte{0x3a, 0x30, 0x00, 0x00}, tombstones)
		})
	}
}

func TestEmptyContainer(t *testing.T) {
	var buf bytes.Buffer

	w := NewWriter(&buf)
	require.NoError(t, w.Close())

	r, err := NewReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)

	require.Empty(t, r.CodecName())
	require.False(t, r.Has(SectionGraph))

	_, err = r.Section(SectionGraph)
	require.ErrorIs(t, err, ErrSectionNotFound)
}

func TestDuplicateSection(t *testing.T) {
	w := NewWriter(&bytes.Buffer{})

	require.NoError(t, w.AddSection(SectionGraph, []byte("a")))

	err := w.AddSection(SectionGraph, []byte("b"))
	require.ErrorContains(t, err, "duplicate section")
}

func TestWriterClosed(t *testing.T) {
	w := NewWriter(&bytes.Buffer{})

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	err := w.AddSection(SectionGraph, []byte("late"))
	require.ErrorContains(t, err, "writer closed")
}

func TestWriteSectionError(t *testing.T) {
	w := NewWriter(&bytes.Buffer{})

	wantErr := errors.New("marshal failed")

	err := w.WriteSection(SectionDocuments, func(io.Writer) error {
		return wantErr
	})
	require.ErrorIs(t, err, wantErr)
}

func TestChecksumMismatch(t *testing.T) {
	data := buildContainer(t, CompressionNone)

	// Flip a byte inside the first section payload, which starts right after
	// the 16-byte header and the codec name.
	corrupted := make([]byte, len(data))
	copy(corrupted, data)
	corrupted[16+len("json")+2] ^= 0xFF

	r, err := NewReader(bytes.NewReader(corrupted))
	require.NoError(t, err)

	_, err = r.Section(SectionGraph)

	var mismatchErr *ChecksumMismatchError

	require.ErrorAs(t, err, &mismatchErr)
	require.NotEqual(t, mismatchErr.Expected, mismatchErr.Actual)
}

func TestBadMagic(t *testing.T) {
	data := buildContainer(t, CompressionNone)

	corrupted := make([]byte, len(data))
	copy(corrupted, data)
	copy(corrupted[0:4], "XXXX")

	_, err := NewReader(bytes.NewReader(corrupted))
	require.ErrorContains(t, err, "bad magic")
}

func TestMissingFooter(t *testing.T) {
	data := buildContainer(t, CompressionNone)

	_, err := NewReader(bytes.NewReader(data[:len(data)-24]))
	require.Error(t, err)
}

func TestTruncated(t *testing.T) {
	data := buildContainer(t, CompressionNone)

	_, err := NewReader(bytes.NewReader(data[:len(data)/2]))
	require.Error(t, err)

	_, err = NewReader(bytes.NewReader(data[:10]))
	require.Error(t, err)
}

func TestCorruptDirectory(t *testing.T) {
	data := buildContainer(t, CompressionNone)

	// The directory (12-byte header plus three 32-byte entries) sits right
	// before the 24-byte footer.
	corrupted := make([]byte, len(data))
	copy(corrupted, data)
	corrupted[len(corrupted)-24-108] ^= 0xFF

	_, err := NewReader(bytes.NewReader(corrupted))
	require.ErrorContains(t, err, "invalid directory")
}
