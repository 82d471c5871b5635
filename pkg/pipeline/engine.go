// Package pipeline runs a bundle end to end: resolve the source, unpack,
// diagnose, repair and repack.
package pipeline

import (
	"fmt"
	"os"
	"time"

	"github.com/fulmenhq/draftfix/internal/schema"
	"github.com/fulmenhq/draftfix/pkg/bundle"
	"github.com/fulmenhq/draftfix/pkg/config"
	"github.com/fulmenhq/draftfix/pkg/diagnose"
	"github.com/fulmenhq/draftfix/pkg/fetch"
	"github.com/fulmenhq/draftfix/pkg/logger"
	"github.com/fulmenhq/draftfix/pkg/placeholder"
	"github.com/fulmenhq/draftfix/pkg/platform"
	"github.com/fulmenhq/draftfix/pkg/repair"
)

// Observer receives run telemetry. Implementations must be safe for
// concurrent use when batches run with more than one job.
type Observer interface {
	repair.Observer
	FindingObserved(kind diagnose.Kind)
	RunFinished(status string, elapsed time.Duration)
}

type noopObserver struct{}

func (noopObserver) ActionFinished(repair.ActionKind, repair.Outcome, time.Duration) {}
func (noopObserver) FindingObserved(diagnose.Kind)                                  {}
func (noopObserver) RunFinished(string, time.Duration)                              {}

// Option configures an Engine.
type Option func(*Engine)

// WithFetcher replaces the configured fetchers for both sources and assets.
func WithFetcher(f fetch.Fetcher) Option {
	return func(e *Engine) {
		e.sources = f
		e.assets = f
	}
}

// WithPlaceholder sets the generator used for assets with no remote locator.
func WithPlaceholder(g placeholder.Generator) Option {
	return func(e *Engine) {
		e.placeholder = g
	}
}

// WithLogger sets the base logger; runs log through children of it.
func WithLogger(l *logger.Logger) Option {
	return func(e *Engine) {
		e.log = l
	}
}

// WithObserver sets the telemetry sink.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		e.observer = o
	}
}

// WithClock fixes the time source for synthesized ids and timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithIdentities sets the platform identity generator.
func WithIdentities(g platform.Generator) Option {
	return func(e *Engine) {
		e.identities = g
	}
}

// Engine holds everything shared by runs. Runs share no mutable bundle state.
type Engine struct {
	cfg         config.Config
	sources     fetch.Fetcher
	assets      fetch.Fetcher
	placeholder placeholder.Generator
	validator   bundle.ShapeValidator
	log         *logger.Logger
	observer    Observer
	now         func() time.Time
	identities  platform.Generator

	// ownedCache is a cache dir created by New and removed by Close.
	ownedCache string
}

// New validates cfg and builds an Engine. The config is copied.
func New(cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	c := *cfg
	if err := c.Validate(); err != nil {
		return nil, err
	}

	validator, err := schema.NewManifestValidator()
	if err != nil {
		return nil, fmt.Errorf("load manifest schemas: %w", err)
	}

	e := &Engine{
		cfg:       c,
		validator: validator,
		log:       logger.Default(),
		observer:  noopObserver{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.sources == nil {
		if err := e.buildFetchers(); err != nil {
			e.Close()
			return nil, err
		}
	}
	if e.placeholder == nil && c.Placeholder.Enabled {
		g, err := placeholder.NewFFmpeg(c.Placeholder.FFmpegPath, c.Placeholder.Duration)
		if err != nil {
			e.Close()
			return nil, fmt.Errorf("placeholder: %w", err)
		}
		e.placeholder = g
	}
	return e, nil
}

// buildFetchers wires the routers from config. Sources skip the asset cache.
func (e *Engine) buildFetchers() error {
	c := e.cfg.Fetch
	http := fetch.NewHTTPFetcher(fetch.HTTPOptions{
		UserAgent:   c.UserAgent,
		MaxBytes:    c.MaxBytes,
		HostHeaders: c.HeadersFor,
	})
	remote := fetch.Fetcher(fetch.NewRetrying(http, c.Retries, c.Backoff))

	var s3 fetch.Fetcher
	if e.cfg.S3.Endpoint != "" {
		f, err := fetch.NewS3Fetcher(fetch.S3Options{
			Endpoint:  e.cfg.S3.Endpoint,
			Region:    e.cfg.S3.Region,
			AccessKey: e.cfg.S3.AccessKey,
			SecretKey: e.cfg.S3.SecretKey,
			UseSSL:    e.cfg.S3.UseSSL,
			MaxBytes:  c.MaxBytes,
		})
		if err != nil {
			return err
		}
		s3 = fetch.NewRetrying(f, c.Retries, c.Backoff)
	}

	file := fetch.FileFetcher{MaxBytes: c.MaxBytes}
	sources := fetch.NewRouter().
		Handle(fetch.SchemeFile, file).
		Handle("http", remote).
		Handle("https", remote)
	if s3 != nil {
		sources.Handle("s3", s3)
	}
	e.sources = sources

	assetRemote, assetS3 := remote, s3
	if c.CacheEntries > 0 {
		dir := c.CacheDir
		if dir == "" {
			tmp, err := os.MkdirTemp(e.cfg.WorkDir, "draftfix-cache-*")
			if err != nil {
				return fmt.Errorf("create fetch cache: %w", err)
			}
			dir, e.ownedCache = tmp, tmp
		}
		cached, err := fetch.NewCaching(remote, dir, c.CacheEntries)
		if err != nil {
			return err
		}
		assetRemote = cached
		if s3 != nil {
			cachedS3, err := fetch.NewCaching(s3, dir, c.CacheEntries)
			if err != nil {
				return err
			}
			assetS3 = cachedS3
		}
	}
	// Assets only ever come from remote hosts; the file route is for sources.
	assets := fetch.NewRouter().
		Handle("http", assetRemote).
		Handle("https", assetRemote)
	if assetS3 != nil {
		assets.Handle("s3", assetS3)
	}
	e.assets = assets
	return nil
}

// Config returns the validated configuration the engine runs with.
func (e *Engine) Config() config.Config { return e.cfg }

// Close removes engine-owned temporary state.
func (e *Engine) Close() error {
	if e.ownedCache == "" {
		return nil
	}
	err := os.RemoveAll(e.ownedCache)
	e.ownedCache = ""
	return err
}
