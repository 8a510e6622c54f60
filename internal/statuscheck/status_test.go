package statuscheck

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
)

type toolFunc func() (string, error)

func (f toolFunc) Find() (string, error) { return f() }

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type bucket struct{ err error }

func (b bucket) HeadBucket(context.Context, *s3.HeadBucketInput, ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, b.err
}

func TestSummary_AllHealthy(t *testing.T) {
	c := New(Options{
		Tool:     toolFunc(func() (string, error) { return "/usr/bin/gs", nil }),
		Redis:    pinger{},
		S3:       bucket{},
		S3Bucket: "docs",
	})
	s := c.Summary(context.Background())
	assert.True(t, s.Ghostscript.OK)
	assert.Contains(t, s.Ghostscript.Message, "/usr/bin/gs")
	assert.True(t, s.Redis.OK)
	assert.True(t, s.S3.OK)
}

func TestSummary_Degraded(t *testing.T) {
	c := New(Options{
		Tool:     toolFunc(func() (string, error) { return "", errors.New("nope") }),
		Redis:    pinger{err: context.DeadlineExceeded},
		S3:       bucket{err: errors.New(strings.Repeat("x", 300))},
		S3Bucket: "docs",
	})
	s := c.Summary(context.Background())
	assert.False(t, s.Ghostscript.OK)
	assert.False(t, s.Redis.OK)
	assert.Equal(t, "timeout", s.Redis.Message)
	assert.False(t, s.S3.OK)
	assert.Len(t, s.S3.Message, 120)
}

func TestSummary_Disabled(t *testing.T) {
	s := New(Options{}).Summary(context.Background())
	assert.False(t, s.Ghostscript.OK)
	assert.True(t, s.Redis.Disabled)
	assert.True(t, s.S3.Disabled)
}
