// Package s3 implements blobstore.BlobStore on Amazon S3.
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket",
//	    s3.WithPrefix("search/"),
//	    s3.WithRegion("us-east-1"),
//	)
//
// Pass the store wherever a blobstore.BlobStore is accepted, typically
// wrapped in a caching layer for read-heavy query serving.
//
// # Features
//
//   - Range reads for partial snapshot fetches
//   - Multipart uploads with CRC32C checksums for large snapshots
//   - Automatic pagination for listing
//   - Configurable prefix for multi-tenant isolation
//
// For deployments with concurrent writers, DDBCommitStore adds
// compare-and-swap commits via DynamoDB; ExpressStore targets S3
// Express One Zone directory buckets and gets the same guarantee from
// conditional writes.
package s3
