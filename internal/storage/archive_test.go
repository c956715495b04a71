package storage

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-by-fh/ai-job-analyzer/internal/pipeline"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type recordingBlobs struct {
	path, contentType, body string
	err                     error
}

func (r *recordingBlobs) PutObject(_ context.Context, p, contentType string, body io.Reader) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	data, _ := io.ReadAll(body)
	r.path, r.contentType, r.body = p, contentType, string(data)
	return "memory://" + p, nil
}

func TestArchiveWritesDatedPath(t *testing.T) {
	t.Parallel()

	blobs := &recordingBlobs{}
	a := NewPageArchiver(blobs, "/pages/", fixedClock{time.Date(2024, 3, 9, 23, 0, 0, 0, time.UTC)})
	uri, err := a.Archive(context.Background(), "job-1", pipeline.Page{URL: "https://Example.com/jobs/1", HTML: "<html></html>"})
	require.NoError(t, err)
	assert.Equal(t, "pages/example.com/2024-03-09/job-1.html", blobs.path)
	assert.Equal(t, "memory://pages/example.com/2024-03-09/job-1.html", uri)
	assert.Equal(t, "text/html; charset=utf-8", blobs.contentType)
	assert.Equal(t, "<html></html>", blobs.body)
}

func TestArchiveNilIsNoop(t *testing.T) {
	t.Parallel()

	a := NewPageArchiver(nil, "pages", nil)
	assert.Nil(t, a)
	uri, err := a.Archive(context.Background(), "job-1", pipeline.Page{})
	require.NoError(t, err)
	assert.Empty(t, uri)
}

func TestArchivePropagatesErrors(t *testing.T) {
	t.Parallel()

	a := NewPageArchiver(&recordingBlobs{err: errors.New("quota")}, "", nil)
	_, err := a.Archive(context.Background(), "job-1", pipeline.Page{URL: "not a url"})
	require.Error(t, err)
	assert.Equal(t, "unknown/2024-01-01/x.html", NewPageArchiver(&recordingBlobs{}, "", nil).ObjectPath("x", "", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
}
