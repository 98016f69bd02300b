package resource

import (
	"context"
	"io"
)

// LimitWriter wraps w so every write waits on the controller's IO budget
// first. With a nil controller or no IO limit configured, w is returned
// unchanged.
func (c *Controller) LimitWriter(ctx context.Context, w io.Writer) io.Writer {
	if c == nil || c.ioLimiter == nil {
		return w
	}

	return &limitedWriter{w: w, c: c, ctx: ctx}
}

// LimitReader wraps r so every read waits on the controller's IO budget
// first. With a nil controller or no IO limit configured, r is returned
// unchanged.
func (c *Controller) LimitReader(ctx context.Context, r io.Reader) io.Reader {
	if c == nil || c.ioLimiter == nil {
		return r
	}

	return &limitedReader{r: r, c: c, ctx: ctx}
}

type limitedWriter struct {
	w   io.Writer
	c   *Controller
	ctx context.Context
}

// Write charges and writes in burst-sized chunks, so a buffer larger than
// the per-second budget paces across multiple refills instead of failing.
func (w *limitedWriter) Write(p []byte) (int, error) {
	burst := w.c.ioBurst()

	var written int
	for written < len(p) {
		chunk := p[written:]
		if burst > 0 && len(chunk) > burst {
			chunk = chunk[:burst]
		}

		if err := w.c.AcquireIO(w.ctx, len(chunk)); err != nil {
			return written, err
		}

		n, err := w.w.Write(chunk)
		written += n
		if err != nil {
			return written, err
		}
	}

	return written, nil
}

type limitedReader struct {
	r   io.Reader
	c   *Controller
	ctx context.Context
}

func (r *limitedReader) Read(p []byte) (int, error) {
	// The read size is unknown up front; charge the slice handed down,
	// capped at the burst so large buffers pace instead of erroring.
	// Short reads are fine, io.ReadFull and friends loop.
	if burst := r.c.ioBurst(); burst > 0 && len(p) > burst {
		p = p[:burst]
	}

	if err := r.c.AcquireIO(r.ctx, len(p)); err != nil {
		return 0, err
	}

	return r.r.Read(p)
}
