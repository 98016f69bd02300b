package engine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/korpus/blobstore"
	"github.com/hupe1980/korpus/codec"
	"github.com/hupe1980/korpus/hnsw"
	"github.com/hupe1980/korpus/metadata"
	"github.com/hupe1980/korpus/resource"
	"github.com/hupe1980/korpus/snapshot"
)

// SnapshotKeys names the blobs one collection snapshot is written to. The
// three parts are separate blobs so a catalog can reference and garbage
// collect them individually.
type SnapshotKeys struct {
	// Graph holds the serialized proximity graph, vectors included.
	Graph string
	// Documents holds the id/slot/metadata/text table.
	Documents string
	// Tombstones holds the serialized tombstone bitmap.
	Tombstones string
}

// SnapshotOptions represents the options for writing a snapshot.
type SnapshotOptions struct {
	// Codec marshals the document table. Defaults to codec.Default; the
	// codec name is recorded in every container so Load can refuse a
	// snapshot it cannot decode.
	Codec codec.Codec

	// Compression is applied to every container section.
	Compression snapshot.Compression

	// Controller, when set, rate limits snapshot writes. Defaults to the
	// engine's controller.
	Controller *resource.Controller
}

// snapshotDocument is one row of the persisted document table. Only live
// documents appear; tombstoned slots are covered by the bitmap.
type snapshotDocument struct {
	ID       string            `json:"id"`
	Slot     uint32            `json:"slot"`
	Metadata metadata.Document `json:"metadata,omitempty"`
	Text     string            `json:"text,omitempty"`
}

// Persist writes a consistent snapshot of the collection to the named
// blobs. In-flight operations drain first, so the snapshot never observes a
// half-applied batch. The blobs become meaningful only once the caller
// commits a catalog generation referencing them; a failed Persist leaves at
// most orphaned blobs behind, never a torn snapshot.
func (e *Engine) Persist(ctx context.Context, store blobstore.BlobStore, keys SnapshotKeys, optFns ...func(o *SnapshotOptions)) error {
	opts := SnapshotOptions{
		Codec:      codec.Default,
		Controller: e.ctrl,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if keys.Graph == "" || keys.Documents == "" || keys.Tombstones == "" {
		return fmt.Errorf("%w: incomplete snapshot keys", ErrInvalidArgument)
	}

	if err := e.gate.seal(); err != nil {
		return err
	}
	defer e.gate.unseal()

	if err := ctx.Err(); err != nil {
		return err
	}

	if err := e.writeSnapshotBlob(ctx, store, keys.Graph, opts, func(w *snapshot.Writer) error {
		return w.WriteSection(snapshot.SectionGraph, e.graph.Save)
	}); err != nil {
		return fmt.Errorf("engine: persist graph: %w", err)
	}

	table, err := e.documentTable(opts.Codec)
	if err != nil {
		return fmt.Errorf("engine: persist documents: %w", err)
	}

	if err := e.writeSnapshotBlob(ctx, store, keys.Documents, opts, func(w *snapshot.Writer) error {
		return w.AddSection(snapshot.SectionDocuments, table)
	}); err != nil {
		return fmt.Errorf("engine: persist documents: %w", err)
	}

	tombs, err := e.graph.TombstoneBitmap().ToBytes()
	if err != nil {
		return fmt.Errorf("engine: persist tombstones: %w", err)
	}

	if err := e.writeSnapshotBlob(ctx, store, keys.Tombstones, opts, func(w *snapshot.Writer) error {
		return w.AddSection(snapshot.SectionTombstones, tombs)
	}); err != nil {
		return fmt.Errorf("engine: persist tombstones: %w", err)
	}

	return nil
}

// documentTable marshals the live document rows sorted by slot, so equal
// states produce byte-identical tables. Caller must hold the seal.
func (e *Engine) documentTable(cdc codec.Codec) ([]byte, error) {
	e.mu.RLock()

	rows := make([]snapshotDocument, 0, e.ids.Len())
	for id, slot := range e.ids.All() {
		row := snapshotDocument{ID: id, Slot: slot, Text: e.texts[slot]}
		if m, ok := e.meta.Get(slot); ok {
			row.Metadata = m
		}

		rows = append(rows, row)
	}

	e.mu.RUnlock()

	sort.Slice(rows, func(i, j int) bool { return rows[i].Slot < rows[j].Slot })

	return cdc.Marshal(rows)
}

// writeSnapshotBlob streams one container to the store. An error after
// Create may still commit a truncated blob on some backends; that is fine,
// nothing references it until the catalog does.
func (e *Engine) writeSnapshotBlob(ctx context.Context, store blobstore.BlobStore, name string, opts SnapshotOptions, build func(w *snapshot.Writer) error) error {
	wb, err := store.Create(ctx, name)
	if err != nil {
		return err
	}

	sink := opts.Controller.LimitWriter(ctx, wb)

	sw := snapshot.NewWriter(sink, func(o *snapshot.WriterOptions) {
		o.CodecName = opts.Codec.Name()
		o.Compression = opts.Compression
	})

	if err := build(sw); err != nil {
		_ = wb.Close()
		return err
	}

	if err := sw.Close(); err != nil {
		_ = wb.Close()
		return err
	}

	return wb.Close()
}

// Load restores a collection from the blobs written by Persist. The graph
// stream fixes the dimension and build parameters; cfg supplies the metric,
// dedupe and compaction settings, and must agree with the snapshot on
// dimension. The keyword index is rebuilt from the stored texts.
func Load(ctx context.Context, store blobstore.BlobStore, keys SnapshotKeys, cfg Config, optFns ...func(o *Options)) (*Engine, error) {
	e, err := New(cfg, optFns...)
	if err != nil {
		return nil, err
	}

	graphData, _, err := readSnapshotSection(ctx, store, keys.Graph, snapshot.SectionGraph, e.ctrl)
	if err != nil {
		return nil, fmt.Errorf("engine: load graph: %w", err)
	}

	g, err := hnsw.Load(bytes.NewReader(graphData), func(o *hnsw.Options) {
		o.Distance = e.dist
		if cfg.Seed != 0 {
			o.Seed = cfg.Seed
		}
	})
	if err != nil {
		return nil, fmt.Errorf("engine: load graph: %w", err)
	}

	if g.Dimension() != e.cfg.Dimension {
		return nil, fmt.Errorf("%w: snapshot dimension %d does not match configured %d", ErrInvalidArgument, g.Dimension(), e.cfg.Dimension)
	}

	e.graph = g

	docData, codecName, err := readSnapshotSection(ctx, store, keys.Documents, snapshot.SectionDocuments, e.ctrl)
	if err != nil {
		return nil, fmt.Errorf("engine: load documents: %w", err)
	}

	cdc, ok := codec.ByName(codecName)
	if !ok {
		return nil, fmt.Errorf("engine: load documents: unknown codec %q", codecName)
	}

	var rows []snapshotDocument
	if err := cdc.Unmarshal(docData, &rows); err != nil {
		return nil, fmt.Errorf("engine: load documents: %w", err)
	}

	for _, row := range rows {
		if err := e.ids.Restore(row.ID, row.Slot); err != nil {
			return nil, fmt.Errorf("engine: load documents: restore %q: %w", row.ID, err)
		}

		if len(row.Metadata) > 0 {
			e.meta.Set(row.Slot, row.Metadata)
		}

		if row.Text != "" {
			if err := e.text.Add(row.ID, row.Text); err != nil {
				return nil, fmt.Errorf("engine: load documents: index %q: %w", row.ID, err)
			}

			e.texts[row.Slot] = row.Text
		}
	}

	tombData, _, err := readSnapshotSection(ctx, store, keys.Tombstones, snapshot.SectionTombstones, e.ctrl)
	if err != nil {
		return nil, fmt.Errorf("engine: load tombstones: %w", err)
	}

	tombs := roaring.New()
	if _, err := tombs.ReadFrom(bytes.NewReader(tombData)); err != nil {
		return nil, fmt.Errorf("engine: load tombstones: %w", err)
	}

	for it := tombs.Iterator(); it.HasNext(); {
		e.graph.MarkDeleted(it.Next())
	}

	// Tombstoned slots stay occupied in the graph until compaction, so the
	// allocator must not hand them out again.
	if !tombs.IsEmpty() {
		e.ids.SetNext(tombs.Maximum() + 1)
	}

	return e, nil
}

// readSnapshotSection opens a snapshot blob and extracts one section.
// Mappable blobs are parsed in place; everything else is streamed into
// memory first, since the container directory sits at the tail. The stream
// waits on the controller's IO budget; mapped reads cost no IO and bypass
// it.
func readSnapshotSection(ctx context.Context, store blobstore.BlobStore, name string, t snapshot.SectionType, ctrl *resource.Controller) ([]byte, string, error) {
	b, err := store.Open(ctx, name)
	if err != nil {
		return nil, "", err
	}
	defer b.Close()

	var rs io.ReadSeeker
	if mb, ok := b.(blobstore.Mappable); ok {
		data, err := mb.Bytes()
		if err != nil {
			return nil, "", err
		}

		rs = bytes.NewReader(data)
	} else {
		rc, err := b.ReadRange(ctx, 0, b.Size())
		if err != nil {
			return nil, "", err
		}

		data := make([]byte, b.Size())
		if _, err := io.ReadFull(ctrl.LimitReader(ctx, rc), data); err != nil {
			_ = rc.Close()
			return nil, "", err
		}

		if err := rc.Close(); err != nil {
			return nil, "", err
		}

		rs = bytes.NewReader(data)
	}

	r, err := snapshot.NewReader(rs)
	if err != nil {
		return nil, "", err
	}

	data, err := r.Section(t)
	if err != nil {
		return nil, "", err
	}

	return data, r.CodecName(), nil
}
