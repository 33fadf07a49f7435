// Package schema caches table metadata and coerces user-supplied values into
// the record store's typed representations.
package schema

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Clukay-Fun/OmniAgent-sub000/internal/backend"
	"github.com/Clukay-Fun/OmniAgent-sub000/internal/cache"
	"github.com/Clukay-Fun/OmniAgent-sub000/internal/logging"
)

// TableSchema is the cached field set of one table.
type TableSchema struct {
	TableID   string
	TableName string
	Fields    []backend.FieldMeta
	FetchedAt time.Time
}

// FieldByName returns the field with the exact given name.
func (s *TableSchema) FieldByName(name string) (backend.FieldMeta, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return backend.FieldMeta{}, false
}

// FieldNames lists the schema's field names in declaration order.
func (s *TableSchema) FieldNames() []string {
	out := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		out = append(out, f.Name)
	}
	return out
}

// Cache is a bounded TTL cache over ListFields, deduplicating concurrent
// refreshes per table.
type Cache struct {
	client backend.Client
	cache  *cache.TTLCache[string, *TableSchema]
	group  singleflight.Group
	logger logging.Logger
}

// NewCache builds a schema cache. A non-positive ttl falls back to 10 minutes;
// a non-positive size to 64 tables.
func NewCache(client backend.Client, size int, ttl time.Duration, clock cache.Clock, logger logging.Logger) (*Cache, error) {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if size <= 0 {
		size = 64
	}
	inner, err := cache.NewTTLCache[string, *TableSchema](size, ttl, clock)
	if err != nil {
		return nil, err
	}
	return &Cache{
		client: client,
		cache:  inner,
		logger: logging.OrNop(logger),
	}, nil
}

// Get returns the schema for tableID, fetching on miss. Concurrent misses on
// the same table share a single fetch.
func (c *Cache) Get(ctx context.Context, tableID string) (*TableSchema, error) {
	if s, ok := c.cache.Get(tableID); ok {
		return s, nil
	}
	v, err, _ := c.group.Do(tableID, func() (any, error) {
		if s, ok := c.cache.Get(tableID); ok {
			return s, nil
		}
		return c.fetch(ctx, tableID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*TableSchema), nil
}

// Invalidate drops the cached schema so the next read refetches. Called after
// a write fails with field_not_found.
func (c *Cache) Invalidate(tableID string) {
	c.cache.Delete(tableID)
}

func (c *Cache) fetch(ctx context.Context, tableID string) (*TableSchema, error) {
	fields, err := c.client.ListFields(ctx, tableID)
	if err != nil {
		return nil, fmt.Errorf("fetch schema for %s: %w", tableID, err)
	}
	s := &TableSchema{
		TableID:   tableID,
		Fields:    fields,
		FetchedAt: time.Now(),
	}
	c.cache.Set(tableID, s)
	c.logger.Debug("schema cached for table %s (%d fields)", tableID, len(fields))
	return s, nil
}
