package filewarden

import (
	"context"
	"fmt"
	"io"
)

// SizeLimitReader restricts the number of bytes read and returns an error
// if the limit is exceeded. Unlike io.LimitReader it fails loudly instead
// of truncating silently, which matters when the limit is a security
// boundary rather than a convenience.
type SizeLimitReader struct {
	R     io.Reader
	Limit int64
	N     int64
}

func (l *SizeLimitReader) Read(p []byte) (n int, err error) {
	n, err = l.R.Read(p)
	l.N += int64(n)
	if l.N > l.Limit {
		return n, fmt.Errorf("file size exceeds limit of %d bytes", l.Limit)
	}
	return n, err
}

// ReadAllLimited reads a stored file into memory, failing if it exceeds
// limit bytes. A limit of zero reads without bound.
func ReadAllLimited(ctx context.Context, fs FileReader, path string, limit int64) ([]byte, error) {
	rc, err := fs.Read(ctx, path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var r io.Reader = rc
	if limit > 0 {
		r = &SizeLimitReader{R: rc, Limit: limit}
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &PathError{Op: "read", Path: path, Err: err}
	}
	return data, nil
}
