package s3

import (
	"bytes"
	"context"
	"encoding/base64"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/hupe1980/korpus/internal/hash"
)

// UploadConfig configures how snapshot blobs are uploaded.
type UploadConfig struct {
	// PartSize is the part size for multipart uploads. Defaults to 8MB;
	// snapshot blobs tend to be large, so parts bigger than the SDK's
	// 5MB minimum cut down on round trips.
	PartSize int64

	// Concurrency is the number of parts uploaded in parallel.
	Concurrency int

	// EnableChecksum enables CRC32C integrity validation on uploads.
	EnableChecksum bool

	// LeavePartsOnError keeps the parts of a failed multipart upload
	// around instead of aborting it.
	LeavePartsOnError bool
}

// DefaultUploadConfig returns the default upload settings.
func DefaultUploadConfig() UploadConfig {
	return UploadConfig{
		PartSize:       8 << 20,
		Concurrency:    5,
		EnableChecksum: true,
	}
}

func newUploader(client Client, cfg UploadConfig) *manager.Uploader {
	return manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = cfg.PartSize
		u.Concurrency = cfg.Concurrency
		u.LeavePartsOnError = cfg.LeavePartsOnError
	})
}

// crc32cBase64 renders a CRC32C sum in the base64 big-endian form the
// S3 checksum headers expect.
func crc32cBase64(data []byte) string {
	sum := hash.CRC32C(data)
	return base64.StdEncoding.EncodeToString([]byte{
		byte(sum >> 24), byte(sum >> 16), byte(sum >> 8), byte(sum),
	})
}

// multipartWriter implements blobstore.WritableBlob by piping writes
// into a background multipart upload. The object only becomes visible
// once Close returns nil.
type multipartWriter struct {
	pw *io.PipeWriter
	pr *io.PipeReader

	result chan error

	mu     sync.Mutex
	closed bool
	err    error
}

func newMultipartWriter(
	ctx context.Context,
	uploader *manager.Uploader,
	bucket, key string,
	withChecksum bool,
) *multipartWriter {
	pr, pw := io.Pipe()
	w := &multipartWriter{
		pw:     pw,
		pr:     pr,
		result: make(chan error, 1),
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   pr,
	}
	if withChecksum {
		input.ChecksumAlgorithm = types.ChecksumAlgorithmCrc32c
	}

	go func() {
		_, err := uploader.Upload(ctx, input)
		// Unblock any writer stuck on the pipe, then report the outcome.
		_ = pr.CloseWithError(err)
		w.result <- err
	}()

	return w
}

func (w *multipartWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	closed := w.closed
	w.mu.Unlock()
	if closed {
		return 0, io.ErrClosedPipe
	}
	return w.pw.Write(p)
}

// Close signals EOF to the uploader and waits for the upload to finish.
func (w *multipartWriter) Close() error {
	return w.finish(nil)
}

// Abort fails the pipe, which makes the background upload error out;
// the manager then aborts the multipart upload unless LeavePartsOnError
// is set.
func (w *multipartWriter) Abort() error {
	_ = w.finish(context.Canceled)
	return nil
}

func (w *multipartWriter) finish(cause error) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return w.err
	}
	w.closed = true

	if cause != nil {
		_ = w.pw.CloseWithError(cause)
	} else if err := w.pw.Close(); err != nil {
		w.err = err
		return err
	}

	w.err = <-w.result
	return w.err
}

// Sync is a no-op: data is only committed on Close.
func (w *multipartWriter) Sync() error { return nil }

// putWithChecksum uploads a small blob in a single request with CRC32C
// integrity validation.
func putWithChecksum(ctx context.Context, client Client, bucket, key string, data []byte) error {
	_, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:         aws.String(bucket),
		Key:            aws.String(key),
		Body:           bytes.NewReader(data),
		ContentLength:  aws.Int64(int64(len(data))),
		ChecksumCRC32C: aws.String(crc32cBase64(data)),
	})
	return err
}
