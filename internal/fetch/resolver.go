package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/local/printmanager/internal/docerr"
)

// S3Downloader is satisfied by *manager.Downloader.
type S3Downloader interface {
	Download(ctx context.Context, w io.WriterAt, input *s3.GetObjectInput, opts ...func(*manager.Downloader)) (int64, error)
}

type Options struct {
	// SpoolDir holds downloaded documents. Defaults to <tmp>/printmanager-spool.
	SpoolDir   string
	HTTPClient *http.Client
	// S3 is optional; s3:// references fail without it.
	S3            S3Downloader
	DefaultBucket string
}

// Resolver turns a document reference into a local file path. Supported
// forms are plain paths, file://path, http(s)://url and s3://bucket/key.
// A remote reference is downloaded once and the spooled copy reused.
type Resolver struct {
	spool  string
	http   *http.Client
	s3     S3Downloader
	bucket string
	group  singleflight.Group
}

func NewResolver(opts Options) (*Resolver, error) {
	if opts.SpoolDir == "" {
		opts.SpoolDir = filepath.Join(os.TempDir(), "printmanager-spool")
	}
	if err := os.MkdirAll(opts.SpoolDir, 0o755); err != nil {
		return nil, fmt.Errorf("create spool dir: %w", err)
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Resolver{spool: opts.SpoolDir, http: opts.HTTPClient, s3: opts.S3, bucket: opts.DefaultBucket}, nil
}

// SpoolDir returns the directory downloads are written to.
func (r *Resolver) SpoolDir() string { return r.spool }

// Resolve returns a local path for ref. Local paths are returned as given,
// without checking that they exist.
func (r *Resolver) Resolve(ctx context.Context, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("%w: empty document reference", docerr.ErrInvalidInput)
	}
	// optional #page fragment
	if i := strings.Index(ref, "#"); i >= 0 {
		ref = ref[:i]
	}

	switch {
	case strings.HasPrefix(ref, "file://"):
		return strings.TrimPrefix(ref, "file://"), nil
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return r.spooled(ctx, ref, r.downloadHTTP)
	case strings.HasPrefix(ref, "s3://"):
		return r.spooled(ctx, ref, r.downloadS3)
	case strings.Contains(ref, "://"):
		return "", fmt.Errorf("%w: unsupported reference %q", docerr.ErrInvalidInput, ref)
	default:
		return ref, nil
	}
}

type downloadFunc func(ctx context.Context, ref string, f *os.File) error

func (r *Resolver) spoolPath(ref string) string {
	ext := strings.ToLower(path.Ext(refPath(ref)))
	if len(ext) > 8 {
		ext = ""
	}
	return filepath.Join(r.spool, fmt.Sprintf("%016x%s", xxhash.Sum64String(ref), ext))
}

func (r *Resolver) spooled(ctx context.Context, ref string, download downloadFunc) (string, error) {
	dst := r.spoolPath(ref)
	v, err, shared := r.group.Do(dst, func() (interface{}, error) {
		if fi, err := os.Stat(dst); err == nil && fi.Size() > 0 {
			return dst, nil
		}
		start := time.Now()
		tmp, err := os.CreateTemp(r.spool, ".part-*")
		if err != nil {
			return "", err
		}
		defer os.Remove(tmp.Name())

		if err := download(ctx, ref, tmp); err != nil {
			tmp.Close()
			return "", err
		}
		if err := tmp.Close(); err != nil {
			return "", err
		}
		if err := os.Rename(tmp.Name(), dst); err != nil {
			return "", err
		}
		log.Info().Str("ref", ref).Str("file", filepath.Base(dst)).Dur("duration", time.Since(start)).Msg("document spooled")
		return dst, nil
	})
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", ref, err)
	}
	if shared {
		log.Debug().Str("ref", ref).Msg("joined in-progress download")
	}
	return v.(string), nil
}

func (r *Resolver) downloadHTTP(ctx context.Context, ref string, f *os.File) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", docerr.ErrInvalidInput, err)
	}
	resp, err := r.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: http %d", docerr.ErrNotFound, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("http %d", resp.StatusCode)
	}
	_, err = io.Copy(f, resp.Body)
	return err
}

func (r *Resolver) downloadS3(ctx context.Context, ref string, f *os.File) error {
	if r.s3 == nil {
		return fmt.Errorf("%w: s3 is not configured", docerr.ErrInvalidInput)
	}
	bucket, key, err := splitS3(ref, r.bucket)
	if err != nil {
		return err
	}
	n, err := r.s3.Download(ctx, f, &s3.GetObjectInput{Bucket: &bucket, Key: &key})
	if err != nil {
		return err
	}
	log.Debug().Str("bucket", bucket).Str("key", key).Int64("bytes", n).Msg("downloaded s3 object")
	return nil
}

// splitS3 parses s3://bucket/key. s3:///key uses the default bucket.
func splitS3(ref, defaultBucket string) (bucket, key string, err error) {
	p := strings.TrimPrefix(ref, "s3://")
	slash := strings.Index(p, "/")
	if slash < 0 {
		return "", "", fmt.Errorf("%w: invalid s3 url %s", docerr.ErrInvalidInput, ref)
	}
	bucket, key = p[:slash], p[slash+1:]
	if bucket == "" {
		bucket = defaultBucket
	}
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("%w: invalid s3 url %s", docerr.ErrInvalidInput, ref)
	}
	return bucket, key, nil
}

func refPath(ref string) string {
	if u, err := url.Parse(ref); err == nil {
		return u.Path
	}
	return ref
}
