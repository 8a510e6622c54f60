package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/local/printmanager/internal/docmeta"
	"github.com/local/printmanager/internal/inkcov"
)

// ReportStore keeps color reports across restarts so an unchanged document is
// never handed to Ghostscript twice.
type ReportStore struct {
	client *redis.Client
	keyNS  string
	ttl    time.Duration
}

func NewReportStore(redisURL string, ttl time.Duration) (*ReportStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	c := redis.NewClient(opt)
	if err := c.Ping(context.Background()).Err(); err != nil {
		_ = c.Close()
		return nil, err
	}
	return &ReportStore{client: c, keyNS: "doc", ttl: ttl}, nil
}

func (s *ReportStore) key(k docmeta.Key) string { return fmt.Sprintf("%s:%s:inkcov", s.keyNS, k) }

func (s *ReportStore) Save(ctx context.Context, k docmeta.Key, rep inkcov.Report) error {
	color, _ := json.Marshal(rep.ColorPages)
	mono, _ := json.Marshal(rep.MonoPages)
	m := map[string]interface{}{
		"total_pages": rep.TotalPages,
		"color_pages": string(color),
		"mono_pages":  string(mono),
		"fallback":    strconv.FormatBool(rep.Fallback),
		"saved_at":    time.Now().UTC().Format(time.RFC3339Nano),
	}
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, s.key(k), m)
		if s.ttl > 0 {
			p.Expire(ctx, s.key(k), s.ttl)
		}
		return nil
	})
	return err
}

// Load returns ok=false when nothing usable is stored for k.
func (s *ReportStore) Load(ctx context.Context, k docmeta.Key) (inkcov.Report, bool, error) {
	res, err := s.client.HGetAll(ctx, s.key(k)).Result()
	if err != nil {
		return inkcov.Report{}, false, err
	}
	if len(res) == 0 {
		return inkcov.Report{}, false, nil
	}

	var rep inkcov.Report
	rep.TotalPages, err = strconv.Atoi(res["total_pages"])
	if err != nil {
		return inkcov.Report{}, false, fmt.Errorf("stored report %s: total_pages: %w", k, err)
	}
	if err := json.Unmarshal([]byte(res["color_pages"]), &rep.ColorPages); err != nil {
		return inkcov.Report{}, false, fmt.Errorf("stored report %s: color_pages: %w", k, err)
	}
	if err := json.Unmarshal([]byte(res["mono_pages"]), &rep.MonoPages); err != nil {
		return inkcov.Report{}, false, fmt.Errorf("stored report %s: mono_pages: %w", k, err)
	}
	rep.Fallback, _ = strconv.ParseBool(res["fallback"])
	if err := rep.Validate(); err != nil {
		return inkcov.Report{}, false, fmt.Errorf("stored report %s: %w", k, err)
	}
	return rep, true, nil
}

func (s *ReportStore) Delete(ctx context.Context, k docmeta.Key) error {
	return s.client.Del(ctx, s.key(k)).Err()
}

// Ping is used by the status endpoint.
func (s *ReportStore) Ping(ctx context.Context) error { return s.client.Ping(ctx).Err() }

func (s *ReportStore) Close() error { return s.client.Close() }
