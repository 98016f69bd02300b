// Package snapshot implements the sectioned container format used to persist
// collection state as blobs.
//
// A container holds typed sections (graph, documents, tombstones), each
// individually compressed and protected by a CRC32 checksum. The directory is
// written after the payloads so a container can be produced in a single pass,
// and a footer locates the directory for readers.
//
// Writing:
//
//	w := snapshot.NewWriter(f, func(o *snapshot.WriterOptions) {
//		o.CodecName = "json"
//		o.Compression = snapshot.CompressionZSTD
//	})
//
//	if err := w.WriteSection(snapshot.SectionGraph, graph.Save); err != nil {
//		return err
//	}
//
//	if err := w.Close(); err != nil {
//		return err
//	}
//
// Reading:
//
//	r, err := snapshot.NewReader(f)
//	if err != nil {
//		return err
//	}
//
//	data, err := r.Section(snapshot.SectionGraph)
package snapshot
