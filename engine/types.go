package engine

import (
	"time"

	"github.com/hupe1980/korpus/metadata"
)

// Document is one record handed to or returned by a collection.
type Document struct {
	// ID is the external identifier, unique within the collection.
	ID string

	// Vector is the embedding; its length must equal the collection
	// dimension.
	Vector []float32

	// Text optionally carries the raw document text. Non-empty text is fed
	// to the keyword index and returned with query results.
	Text string

	// Metadata optionally carries structured attributes for filtering.
	Metadata metadata.Document
}

// ResultEntry is one fused query result. Entries are ephemeral; they are
// assembled per query and never persisted.
type ResultEntry struct {
	// ID is the external identifier of the matched document.
	ID string

	// Score is the fused reciprocal-rank score. Higher is better.
	Score float64

	// Distance is the metric distance of the vector match. It is only
	// meaningful when VectorRank is non-zero.
	Distance float32

	// VectorRank is the 1-based position in the vector candidate list, zero
	// when the entry was found by keyword search alone.
	VectorRank int

	// TextRank is the 1-based position in the keyword candidate list, zero
	// when the entry was found by vector search alone.
	TextRank int

	// Metadata holds the stored attributes of the document.
	Metadata metadata.Document

	// Text holds the stored raw text of the document.
	Text string
}

// BatchResult reports the per-document outcome of one ingestion batch.
// Duplicates and failures are outcomes, not call errors: the batch call
// succeeds as long as its input validated.
type BatchResult struct {
	// Succeeded lists the ids committed to the collection, in input order.
	Succeeded []string

	// Duplicates lists the ids suppressed by near-duplicate detection.
	Duplicates []string

	// Failed lists the ids that could not be committed, with reasons.
	Failed []FailedDocument
}

// FailedDocument names one document of a batch that was not committed.
type FailedDocument struct {
	ID     string
	Reason string
}

// CompactionStats reports the effect of one compaction pass.
type CompactionStats struct {
	// Live is the number of documents carried into the rebuilt graph.
	Live int

	// Reclaimed is the number of tombstoned slots dropped.
	Reclaimed int

	// Duration is the wall-clock time the collection was sealed.
	Duration time.Duration
}
