// Package upload moves a validated file into durable storage exactly
// once per generated code.
package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/tomliptrot/handwriting-app/internal/domain/code"
	"github.com/tomliptrot/handwriting-app/internal/domain/session"
	"github.com/tomliptrot/handwriting-app/internal/storage"
)

// ErrTransport indicates a network or backend failure. The caller does
// not retry; the same code stays current so the next user action can
// re-attempt.
var ErrTransport = errors.New("upload transport failed")

// ProgressFunc receives fractional upload progress, 0-100.
type ProgressFunc func(percent int)

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithProgress installs a progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(p *Pipeline) { p.progress = fn }
}

// Pipeline computes the destination key and pushes bytes through the
// configured transport: a direct store in trusted contexts, or the
// intermediary upload function in production.
type Pipeline struct {
	store    storage.Writer
	prefix   string
	progress ProgressFunc
	logger   *slog.Logger
}

// New creates an upload pipeline writing under the given key prefix.
func New(store storage.Writer, prefix string, logger *slog.Logger, opts ...Option) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{store: store, prefix: prefix, logger: logger}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Upload stores the file under images/<worker>/<code>.jpg and returns
// the key. The leading code marker is stripped from the filename.
func (p *Pipeline) Upload(ctx context.Context, file session.File, sess session.Session) (string, error) {
	key := p.prefix + sess.WorkerID + "/" + code.Filename(sess.CurrentCode)

	metadata := map[string]string{
		storage.MetaWorkerID:        sess.WorkerID,
		storage.MetaSessionID:       sess.SessionID,
		storage.MetaOriginalCode:    sess.CurrentCode,
		storage.MetaUploadTimestamp: time.Now().UTC().Format(time.RFC3339),
	}

	size := int64(len(file.Data))
	body := p.newProgressReader(bytes.NewReader(file.Data), size)

	p.report(0)
	if err := p.store.Put(ctx, key, body, size, file.ContentType, metadata); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTransport, err)
	}
	p.report(100)

	p.logger.Info("image uploaded",
		"key", key,
		"session_id", sess.SessionID,
		"bytes", size)
	return key, nil
}

func (p *Pipeline) report(percent int) {
	if p.progress != nil {
		p.progress(percent)
	}
}

func (p *Pipeline) newProgressReader(r io.Reader, total int64) io.Reader {
	if p.progress == nil || total <= 0 {
		return r
	}
	return &progressReader{r: r, total: total, report: p.progress}
}

// progressReader reports percent complete as bytes are consumed by the
// transport, at whatever chunk size the transport reads with.
type progressReader struct {
	r      io.Reader
	total  int64
	read   int64
	report ProgressFunc
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.r.Read(p)
	if n > 0 {
		pr.read += int64(n)
		pr.report(int(pr.read * 100 / pr.total))
	}
	return n, err
}
