// Package propcache caches the FileDescriptor resolved for each stored
// message id, consulting the upstream backend only on a cache miss, per
// spec.md §4.5.
package propcache

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"sync"

	"github.com/coocood/freecache"
	"github.com/gotd/td/tg"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/everythingsuckz/streamgate/internal/fileid"
)

// Backend resolves a stored message id to its attached media and the dc id
// that media lives on. The gateway's bot client identity satisfies this.
type Backend interface {
	ResolveMessage(ctx context.Context, msgID int) (media tg.MessageMediaClass, dcID int, err error)
}

func init() {
	gob.Register(&fileid.FileDescriptor{})
}

// Cache is a msg_id -> FileDescriptor cache, backed by freecache, flushed in
// full on a fixed schedule rather than per-key TTL (spec.md §3's
// FilePropCache: "Cleared in full every 30 min").
type Cache struct {
	mu      sync.RWMutex
	store   *freecache.Cache
	backend Backend
	log     *zap.Logger

	cron *cron.Cron
}

// New builds a Cache sized at sizeBytes. The periodic full flush is not
// scheduled until Start is called.
func New(backend Backend, sizeBytes int, log *zap.Logger) *Cache {
	return &Cache{
		store:   freecache.NewCache(sizeBytes),
		backend: backend,
		log:     log.Named("propcache"),
		cron:    cron.New(),
	}
}

// Start schedules the periodic full-cache flush. spec string follows
// robfig/cron's standard 5-field syntax; cronSpec should normally be
// "@every 30m"-style, derived from CACHE_TTL at the call site.
func (c *Cache) Start(cronSpec string) error {
	_, err := c.cron.AddFunc(cronSpec, c.flushAll)
	if err != nil {
		return err
	}
	c.cron.Start()
	return nil
}

// Stop halts the periodic flush. Blocks until any in-progress flush
// completes.
func (c *Cache) Stop() {
	ctx := c.cron.Stop()
	<-ctx.Done()
}

func (c *Cache) flushAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.Clear()
	c.log.Debug("full cache flush")
}

// Get returns the FileDescriptor for msgID, resolving it from the backend on
// a miss and populating the cache before returning.
func (c *Cache) Get(ctx context.Context, msgID int) (*fileid.FileDescriptor, error) {
	key := cacheKey(msgID)

	if fd, ok := c.lookup(key); ok {
		return fd, nil
	}

	media, dcID, err := c.backend.ResolveMessage(ctx, msgID)
	if err != nil {
		return nil, err
	}
	fd, err := fileid.FromMedia(media, dcID)
	if err != nil {
		return nil, err
	}

	c.put(key, fd)
	return fd, nil
}

// Invalidate drops msgID's entry; the next Get recomputes it from the
// backend. Called by ChunkFetcher on a reference-expired response
// (spec.md §4.5, §7).
func (c *Cache) Invalidate(msgID int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.Del([]byte(cacheKey(msgID)))
}

func (c *Cache) lookup(key string) (*fileid.FileDescriptor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, err := c.store.Get([]byte(key))
	if err != nil {
		return nil, false
	}
	var fd fileid.FileDescriptor
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&fd); err != nil {
		return nil, false
	}
	return &fd, true
}

func (c *Cache) put(key string, fd *fileid.FileDescriptor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(fd); err != nil {
		c.log.Warn("failed to encode descriptor for cache", zap.Error(err))
		return
	}
	// 0 expireSeconds means "never expire on its own"; the cron flush is the
	// only eviction path, matching spec.md's coarse full-flush model.
	if err := c.store.Set([]byte(key), buf.Bytes(), 0); err != nil {
		c.log.Warn("failed to store descriptor in cache", zap.Error(err))
	}
}

func cacheKey(msgID int) string {
	return fmt.Sprintf("msg:%d", msgID)
}
