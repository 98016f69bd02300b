package benchmark_test

import (
	"context"
	"testing"

	"github.com/hupe1980/korpus"
	"github.com/hupe1980/korpus/blobstore"
	"github.com/hupe1980/korpus/distance"
	"github.com/hupe1980/korpus/snapshot"
)

// ============================================================================
// Persistence Benchmarks
// ============================================================================

// BenchmarkSave measures snapshotting a populated database per compression
// codec. Superseded generations are pruned outside the timed region so the
// store stays bounded.
func BenchmarkSave(b *testing.B) {
	compressions := []snapshot.Compression{
		snapshot.CompressionNone,
		snapshot.CompressionLZ4,
		snapshot.CompressionZSTD,
	}

	for _, comp := range compressions {
		b.Run(comp.String(), func(b *testing.B) {
			db := newBenchDB(b,
				korpus.WithBlobStore(blobstore.NewMemoryStore()),
				korpus.WithCompression(comp),
			)

			ctx := context.Background()
			col, err := db.CreateCollection(ctx, "bench", korpus.CollectionConfig{
				Dimension: dimSmall,
				Metric:    distance.MetricL2,
			})
			if err != nil {
				b.Fatal(err)
			}

			loadVectors(b, col, sizeSmall, dimSmall)

			b.ReportAllocs()
			b.ResetTimer()

			for i := 0; i < b.N; i++ {
				if err := db.Save(ctx); err != nil {
					b.Fatal(err)
				}

				b.StopTimer()
				if _, err := db.Prune(ctx, 1); err != nil {
					b.Fatal(err)
				}
				b.StartTimer()
			}
		})
	}
}

// BenchmarkOpen measures recovering a database from its latest snapshot.
func BenchmarkOpen(b *testing.B) {
	sizes := []int{sizeSmall, sizeMedium}

	for _, size := range sizes {
		b.Run(formatCount(size), func(b *testing.B) {
			store := blobstore.NewMemoryStore()
			ctx := context.Background()

			db, err := korpus.New(korpus.WithBlobStore(store))
			if err != nil {
				b.Fatal(err)
			}

			col, err := db.CreateCollection(ctx, "bench", korpus.CollectionConfig{
				Dimension: dimSmall,
				Metric:    distance.MetricL2,
			})
			if err != nil {
				b.Fatal(err)
			}

			loadVectors(b, col, size, dimSmall)

			if err := db.Save(ctx); err != nil {
				b.Fatal(err)
			}
			if err := db.Close(); err != nil {
				b.Fatal(err)
			}

			b.ReportAllocs()
			b.ResetTimer()

			for i := 0; i < b.N; i++ {
				db, err := korpus.Open(ctx, korpus.WithBlobStore(store))
				if err != nil {
					b.Fatal(err)
				}
				if err := db.Close(); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkCompact measures rebuilding a graph that is half tombstones.
func BenchmarkCompact(b *testing.B) {
	ctx := context.Background()

	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		b.StopTimer()
		col := newBenchCollection(b, dimSmall)
		loadVectors(b, col, sizeSmall, dimSmall)

		ids := make([]string, 0, sizeSmall/2)
		for j := 0; j < sizeSmall; j += 2 {
			ids = append(ids, benchID(j))
		}
		if _, err := col.Delete(ctx, ids...); err != nil {
			b.Fatal(err)
		}
		b.StartTimer()

		if _, err := col.Compact(ctx); err != nil {
			b.Fatal(err)
		}
	}
}
