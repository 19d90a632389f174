// Package snapshot archives fetched page bodies to blob storage so
// reviewers can inspect exactly what a discovery pass saw.
package snapshot

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/entityscope/urlcurator/internal/hash/sha256"
)

// BlobStore persists one object and returns its URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Archiver writes page snapshots under <prefix>/<run_id>/<sha256>.html.
type Archiver struct {
	store  BlobStore
	hasher *sha256.Hasher
	prefix string
	logger *zap.Logger
}

// New creates an Archiver. A nil store disables archiving.
func New(store BlobStore, prefix string, logger *zap.Logger) *Archiver {
	return &Archiver{
		store:  store,
		hasher: sha256.New(),
		prefix: strings.Trim(prefix, "/"),
		logger: logger,
	}
}

// Enabled reports whether a backing store is configured.
func (a *Archiver) Enabled() bool {
	return a != nil && a.store != nil
}

// Save archives one page body and returns its URI. Failures are logged and
// swallowed so archival never affects a run outcome.
func (a *Archiver) Save(ctx context.Context, runID, pageURL string, body []byte) string {
	if !a.Enabled() || len(body) == 0 {
		return ""
	}
	digest, err := a.hasher.Hash(body)
	if err != nil {
		a.logger.Warn("snapshot hash failed", zap.String("url", pageURL), zap.Error(err))
		return ""
	}
	objectPath := path.Join(a.prefix, runID, fmt.Sprintf("%s.html", digest))
	uri, err := a.store.PutObject(ctx, objectPath, "text/html; charset=utf-8", strings.NewReader(string(body)))
	if err != nil {
		a.logger.Warn("snapshot archive failed",
			zap.String("url", pageURL),
			zap.String("object", objectPath),
			zap.Error(err),
		)
		return ""
	}
	return uri
}
