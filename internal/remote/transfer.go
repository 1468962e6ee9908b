package remote

import (
	"context"
	"io"
)

// ctxCheckInterval is how many reads pass between context checks.
const ctxCheckInterval = 64

// transferReader counts bytes read from a transfer, enforces a size limit
// and stops when the context is cancelled.
type transferReader struct {
	ctx   context.Context
	r     io.Reader
	limit int64
	read  int64
	calls int
}

func newTransferReader(ctx context.Context, r io.Reader, limit int64) *transferReader {
	return &transferReader{ctx: ctx, r: r, limit: limit}
}

func (t *transferReader) Read(p []byte) (int, error) {
	t.calls++
	if t.calls%ctxCheckInterval == 0 {
		if err := t.ctx.Err(); err != nil {
			return 0, err
		}
	}

	n, err := t.r.Read(p)
	t.read += int64(n)
	if t.limit > 0 && t.read > t.limit {
		return n, ErrFileTooLarge
	}
	return n, err
}
