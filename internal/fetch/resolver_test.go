package fetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/printmanager/internal/docerr"
)

type fakeS3 struct {
	calls  atomic.Int32
	bucket string
	key    string
	body   []byte
}

func (f *fakeS3) Download(_ context.Context, w io.WriterAt, in *s3.GetObjectInput, _ ...func(*manager.Downloader)) (int64, error) {
	f.calls.Add(1)
	f.bucket, f.key = *in.Bucket, *in.Key
	n, err := w.WriteAt(f.body, 0)
	return int64(n), err
}

func newResolver(t *testing.T, s3 S3Downloader) *Resolver {
	t.Helper()
	r, err := NewResolver(Options{SpoolDir: t.TempDir(), S3: s3, DefaultBucket: "docs"})
	require.NoError(t, err)
	return r
}

func TestResolve_LocalReferences(t *testing.T) {
	r := newResolver(t, nil)
	ctx := context.Background()

	p, err := r.Resolve(ctx, "/srv/in/a.pdf")
	require.NoError(t, err)
	assert.Equal(t, "/srv/in/a.pdf", p)

	p, err = r.Resolve(ctx, "file:///srv/in/b.pdf#page=2")
	require.NoError(t, err)
	assert.Equal(t, "/srv/in/b.pdf", p)

	_, err = r.Resolve(ctx, "  ")
	assert.True(t, errors.Is(err, docerr.ErrInvalidInput))

	_, err = r.Resolve(ctx, "ftp://host/a.pdf")
	assert.True(t, errors.Is(err, docerr.ErrInvalidInput))
}

func TestResolve_HTTPDownloadsOnce(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		hits.Add(1)
		time.Sleep(20 * time.Millisecond)
		_, _ = w.Write([]byte("%PDF-1.4\n"))
	}))
	defer srv.Close()

	r := newResolver(t, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	paths := make([]string, 5)
	for i := range paths {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := r.Resolve(ctx, srv.URL+"/files/Report.PDF")
			assert.NoError(t, err)
			paths[i] = p
		}(i)
	}
	wg.Wait()
	p, err := r.Resolve(ctx, srv.URL+"/files/Report.PDF")
	require.NoError(t, err)

	assert.Equal(t, int32(1), hits.Load())
	for _, q := range paths {
		assert.Equal(t, p, q)
	}
	assert.Equal(t, ".pdf", filepath.Ext(p))
	b, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4\n", string(b))
}

func TestResolve_HTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path == "/missing.pdf" {
			http.NotFound(w, req)
			return
		}
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	r := newResolver(t, nil)
	_, err := r.Resolve(context.Background(), srv.URL+"/missing.pdf")
	assert.True(t, errors.Is(err, docerr.ErrNotFound))

	_, err = r.Resolve(context.Background(), srv.URL+"/broken.pdf")
	assert.Error(t, err)

	entries, _ := os.ReadDir(r.SpoolDir())
	assert.Empty(t, entries, "failed downloads leave nothing behind")
}

func TestResolve_S3(t *testing.T) {
	fake := &fakeS3{body: []byte("%PDF-1.7\n")}
	r := newResolver(t, fake)
	ctx := context.Background()

	p, err := r.Resolve(ctx, "s3://invoices/2024/a.pdf")
	require.NoError(t, err)
	assert.Equal(t, "invoices", fake.bucket)
	assert.Equal(t, "2024/a.pdf", fake.key)

	_, err = r.Resolve(ctx, "s3://invoices/2024/a.pdf")
	require.NoError(t, err)
	assert.Equal(t, int32(1), fake.calls.Load())

	b, _ := os.ReadFile(p)
	assert.Equal(t, "%PDF-1.7\n", string(b))

	_, err = r.Resolve(ctx, "s3:///b.pdf")
	require.NoError(t, err)
	assert.Equal(t, "docs", fake.bucket)

	_, err = r.Resolve(ctx, "s3://nokey")
	assert.True(t, errors.Is(err, docerr.ErrInvalidInput))
}

func TestResolve_S3NotConfigured(t *testing.T) {
	r := newResolver(t, nil)
	_, err := r.Resolve(context.Background(), "s3://b/k.pdf")
	assert.True(t, errors.Is(err, docerr.ErrInvalidInput))
}

func TestCleanup(t *testing.T) {
	r := newResolver(t, nil)
	old := filepath.Join(r.SpoolDir(), "old.pdf")
	fresh := filepath.Join(r.SpoolDir(), "fresh.pdf")
	require.NoError(t, os.WriteFile(old, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(fresh, []byte("x"), 0o644))
	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))

	assert.Equal(t, 1, r.Cleanup(24*time.Hour))
	_, err := os.Stat(old)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(fresh)
	assert.NoError(t, err)
}
