// Package storage archives rendered job pages and hosts the job/profile
// store implementations in its subpackages.
package storage

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/code-by-fh/ai-job-analyzer/internal/pipeline"
)

// PageArchiver writes rendered detail pages to a blob store.
type PageArchiver struct {
	blobs  pipeline.BlobStore
	prefix string
	clock  pipeline.Clock
}

// NewPageArchiver returns nil when blobs is nil so callers can skip archiving.
func NewPageArchiver(blobs pipeline.BlobStore, prefix string, clock pipeline.Clock) *PageArchiver {
	if blobs == nil {
		return nil
	}
	if clock == nil {
		clock = pipeline.SystemClock{}
	}
	return &PageArchiver{blobs: blobs, prefix: strings.Trim(prefix, "/"), clock: clock}
}

// ObjectPath lays pages out as <prefix>/<host>/<yyyy-mm-dd>/<jobID>.html.
func (a *PageArchiver) ObjectPath(jobID, pageURL string, at time.Time) string {
	host := strings.ToLower(pipeline.Host(pageURL))
	if host == "" || strings.ContainsAny(host, "/ ") {
		host = "unknown"
	}
	return path.Join(a.prefix, host, at.UTC().Format("2006-01-02"), jobID+".html")
}

// Archive stores page under jobID and returns the blob URI.
func (a *PageArchiver) Archive(ctx context.Context, jobID string, page pipeline.Page) (string, error) {
	if a == nil {
		return "", nil
	}
	p := a.ObjectPath(jobID, page.URL, a.clock.Now())
	uri, err := a.blobs.PutObject(ctx, p, "text/html; charset=utf-8", strings.NewReader(page.HTML))
	if err != nil {
		return "", fmt.Errorf("archive page %s: %w", page.URL, err)
	}
	return uri, nil
}
