package statuscheck

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// RedisPinger models the minimal Redis capability we need for status checks.
type RedisPinger interface {
	Ping(ctx context.Context) error
}

// ToolLocator finds the ink coverage tool.
type ToolLocator interface {
	Find() (string, error)
}

// BucketHeader is satisfied by *s3.Client.
type BucketHeader interface {
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, opts ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// Checker aggregates health checks for external dependencies.
type Checker struct {
	tool     ToolLocator
	redis    RedisPinger
	s3       BucketHeader
	s3Bucket string
}

// Options configures the Checker. Nil dependencies are reported as disabled.
type Options struct {
	Tool     ToolLocator
	Redis    RedisPinger
	S3       BucketHeader
	S3Bucket string
}

// Status represents the readiness of a subsystem.
type Status struct {
	OK       bool   `json:"ok"`
	Disabled bool   `json:"disabled,omitempty"`
	Message  string `json:"message"`
}

// Summary bundles all subsystem statuses.
type Summary struct {
	Ghostscript Status `json:"ghostscript"`
	Redis       Status `json:"redis"`
	S3          Status `json:"s3"`
}

// New creates a new Checker with the provided options.
func New(opts Options) *Checker {
	return &Checker{tool: opts.Tool, redis: opts.Redis, s3: opts.S3, s3Bucket: opts.S3Bucket}
}

// Summary returns the current status snapshot.
func (c *Checker) Summary(ctx context.Context) Summary {
	return Summary{
		Ghostscript: c.checkGhostscript(),
		Redis:       c.checkRedis(ctx),
		S3:          c.checkS3(ctx),
	}
}

func (c *Checker) checkGhostscript() Status {
	if c.tool == nil {
		return Status{OK: false, Message: "locator unavailable"}
	}
	p, err := c.tool.Find()
	if err != nil {
		// color info degrades to unknown; pricing still works
		return Status{OK: false, Message: "Binary not found"}
	}
	return Status{OK: true, Message: fmt.Sprintf("Available at %s", p)}
}

func (c *Checker) checkRedis(ctx context.Context) Status {
	if c.redis == nil {
		return Status{Disabled: true, Message: "Not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.redis.Ping(ctx); err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	return Status{OK: true, Message: "Connected"}
}

func (c *Checker) checkS3(ctx context.Context) Status {
	if c.s3 == nil {
		return Status{Disabled: true, Message: "Not configured"}
	}
	if c.s3Bucket == "" {
		return Status{OK: true, Message: "Client ready; no default bucket"}
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := c.s3.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: &c.s3Bucket}); err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	return Status{OK: true, Message: "Connected"}
}

func trimError(err error) string {
	if err == nil {
		return ""
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	msg := err.Error()
	if len(msg) > 120 {
		return msg[:120]
	}
	return msg
}
