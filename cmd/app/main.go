package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/printmanager/internal/api"
	"github.com/local/printmanager/internal/cache"
	"github.com/local/printmanager/internal/colorclass"
	cfgpkg "github.com/local/printmanager/internal/config"
	"github.com/local/printmanager/internal/dispatcher"
	"github.com/local/printmanager/internal/docmeta"
	"github.com/local/printmanager/internal/fetch"
	logpkg "github.com/local/printmanager/internal/logger"
	"github.com/local/printmanager/internal/metrics"
	"github.com/local/printmanager/internal/pricing"
	"github.com/local/printmanager/internal/statuscheck"
	"github.com/local/printmanager/internal/store"
)

func main() {
	cfg := cfgpkg.FromEnv()

	// Init logging
	_ = logpkg.Init(logpkg.Options{
		Level:        cfg.Logging.Level,
		Pretty:       cfg.Logging.Pretty,
		File:         cfg.Logging.File,
		MaxSizeMB:    cfg.Logging.MaxSizeMB,
		MaxBackups:   cfg.Logging.MaxBackups,
		MaxAgeDays:   cfg.Logging.MaxAgeDays,
		Compress:     cfg.Logging.Compress,
		Service:      "printmanager",
		SendToAxiom:  cfg.Axiom.Send && cfg.Axiom.APIKey != "",
		AxiomAPIKey:  cfg.Axiom.APIKey,
		AxiomOrgID:   cfg.Axiom.OrgID,
		AxiomDataset: cfg.Axiom.Dataset,
		AxiomFlush:   cfg.Axiom.FlushInterval,
	})
	defer logpkg.Close()
	metrics.Init()

	table, err := pricing.LoadTable(cfg.Pricing.TableFile)
	if err != nil {
		log.Fatal().Err(err).Str("file", cfg.Pricing.TableFile).Msg("failed to load rate table")
	}

	// Optional report store
	var reports cache.ReportStore
	var redisPing statuscheck.RedisPinger
	if cfg.Store.RedisURL != "" {
		rs, err := store.NewReportStore(cfg.Store.RedisURL, cfg.Store.TTL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer rs.Close()
		reports, redisPing = rs, rs
	}

	// Optional S3 for s3:// references
	fetchOpts := fetch.Options{
		SpoolDir:      cfg.Fetch.SpoolDir,
		HTTPClient:    &http.Client{Timeout: cfg.Fetch.HTTPTimeout},
		DefaultBucket: cfg.Fetch.S3Bucket,
	}
	var bucketHead statuscheck.BucketHeader
	if cfg.Fetch.S3Bucket != "" || cfg.Fetch.S3Endpoint != "" {
		cli, err := fetch.NewS3Client(context.Background(), fetch.S3Options{
			Region:    cfg.Fetch.S3Region,
			Endpoint:  cfg.Fetch.S3Endpoint,
			AccessKey: cfg.Fetch.S3AccessKey,
			SecretKey: cfg.Fetch.S3SecretKey,
		})
		if err != nil {
			log.Warn().Err(err).Msg("s3 unavailable; s3:// references will fail")
		} else {
			fetchOpts.S3 = fetch.NewS3Downloader(cli)
			bucketHead = cli
		}
	}
	resolver, err := fetch.NewResolver(fetchOpts)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init document spool")
	}

	locator := colorclass.NewLocator(cfg.Ghostscript.Candidates, cfg.Ghostscript.Binary)
	if p, err := locator.Find(); err != nil {
		log.Warn().Err(err).Msg("ghostscript not found; color info will stay unknown and quotes assume monochrome")
	} else {
		log.Info().Str("path", p).Msg("ghostscript ready")
	}
	reader := docmeta.NewReader()
	classifier := colorclass.New(colorclass.Options{
		Locator:  locator,
		Pages:    reader,
		Timeout:  cfg.Ghostscript.Timeout,
		MaxProcs: cfg.Ghostscript.MaxProcs,
	})

	pool := dispatcher.New(dispatcher.Config{Concurrency: cfg.Worker.Concurrency, QueueSize: cfg.Worker.QueueSize})
	pool.Start()

	docs := cache.New(cache.Options{Reader: reader, Analyzer: classifier, Pool: pool, Store: reports})
	docs.Subscribe(func(d cache.DocumentMetadata) {
		if d.Color.State == cache.ColorKnown || d.Color.State == cache.ColorFailed {
			log.Debug().Str("key", string(d.Key)).Str("state", d.Color.State.String()).
				Int("color_pages", d.ColorPageCount()).Int("mono_pages", d.MonoPageCount()).Msg("color info updated")
		}
	})

	mux := http.NewServeMux()
	api.New(api.Dependencies{
		Cache:     docs,
		Estimator: pricing.NewEstimator(table),
		Resolver:  resolver,
		Status:    statuscheck.New(statuscheck.Options{Tool: locator, Redis: redisPing, S3: bucketHead, S3Bucket: cfg.Fetch.S3Bucket}),
		UploadDir: cfg.UploadDir,
	}).RegisterRoutes(mux)

	// Spool janitor
	janitorStop := make(chan struct{})
	go func() {
		jl := logpkg.With("spool")
		t := time.NewTicker(time.Hour)
		defer t.Stop()
		for {
			select {
			case <-janitorStop:
				return
			case <-t.C:
				n := resolver.Cleanup(cfg.Fetch.MaxAge)
				jl.Debug().Int("removed", n).Dur("max_age", cfg.Fetch.MaxAge).Msg("spool sweep done")
			}
		}
	}()

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: mux}

	go func() {
		log.Info().Msgf("HTTP server listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	close(janitorStop)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	if err := pool.Stop(ctx); err != nil {
		log.Warn().Err(err).Msg("analyses still running at shutdown")
	}
	fmt.Println("shutdown complete")
}
