package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/fulmenhq/draftfix/pkg/logger"
)

// DefaultCacheEntries is used when NewCaching gets a non-positive size.
const DefaultCacheEntries = 256

// Caching keeps downloaded payloads in a directory, indexed by locator, so
// repeated requests for the same locator hit the network once. Concurrent
// requests for one locator share a single download. Evicted entries are
// removed from disk.
type Caching struct {
	next  Fetcher
	dir   string
	index *lru.Cache[string, string]
	group singleflight.Group

	mu      sync.Mutex
	flights map[string]*flight
}

// flight is the context of one shared download. It is cancelled only when
// every caller waiting on it has gone.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// NewCaching wraps next with a cache rooted at dir holding up to entries payloads.
func NewCaching(next Fetcher, dir string, entries int) (*Caching, error) {
	if entries <= 0 {
		entries = DefaultCacheEntries
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	index, err := lru.NewWithEvict[string, string](entries, func(_ string, path string) {
		_ = os.Remove(path)
	})
	if err != nil {
		return nil, fmt.Errorf("create cache index: %w", err)
	}
	return &Caching{next: next, dir: dir, index: index, flights: make(map[string]*flight)}, nil
}

func (c *Caching) keyPath(locator string) string {
	sum := sha256.Sum256([]byte(locator))
	return filepath.Join(c.dir, hex.EncodeToString(sum[:]))
}

// Fetch serves locator from the cache, downloading it first when absent.
func (c *Caching) Fetch(ctx context.Context, locator, destPath string) error {
	cached, err := c.load(ctx, locator)
	if err != nil {
		return err
	}
	src, err := os.Open(cached) // #nosec G304 -- path inside the cache dir
	if err != nil {
		c.index.Remove(locator)
		return newError(locator, err)
	}
	defer func() { _ = src.Close() }()
	if err := writeStream(ctx, src, destPath, 0); err != nil {
		return newError(locator, err)
	}
	return nil
}

func (c *Caching) load(ctx context.Context, locator string) (string, error) {
	if p, ok := c.index.Get(locator); ok {
		if _, err := os.Stat(p); err == nil {
			logger.Trace("fetch cache hit", logger.String("locator", locator))
			return p, nil
		}
		c.index.Remove(locator)
	}
	fctx := c.join(ctx, locator)
	defer c.leave(locator)
	ch := c.group.DoChan(locator, func() (interface{}, error) {
		if p, ok := c.index.Peek(locator); ok {
			return p, nil
		}
		p := c.keyPath(locator)
		if err := c.next.Fetch(fctx, locator, p); err != nil {
			return "", err
		}
		c.index.Add(locator, p)
		return p, nil
	})
	select {
	case r := <-ch:
		if r.Err != nil {
			return "", r.Err
		}
		return r.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// join registers the caller on the download of locator and returns the
// context that download runs with. The first caller's values are kept but
// not its cancellation.
func (c *Caching) join(ctx context.Context, locator string) context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.flights[locator]
	if !ok {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{ctx: fctx, cancel: cancel}
		c.flights[locator] = f
	}
	f.waiters++
	return f.ctx
}

func (c *Caching) leave(locator string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.flights[locator]
	if !ok {
		return
	}
	if f.waiters--; f.waiters == 0 {
		f.cancel()
		delete(c.flights, locator)
	}
}
