// Package cache puts a Redis read-through cache in front of a content.Source.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hpungsan/tessera/internal/content"
)

// DefaultTTL applies when the configured TTL is not positive.
const DefaultTTL = time.Minute

const defaultPrefix = "tessera:"

// Source caches slugs, pages and blocks from the wrapped source. Redis errors
// are logged and the request falls through to the wrapped source. Misses on
// the wrapped source (NOT_FOUND, missing blocks) are not cached.
type Source struct {
	client *redis.Client
	next   content.Source
	prefix string
	ttl    time.Duration
}

var _ content.Source = (*Source)(nil)

// NewClient parses redisURL and verifies the server is reachable.
func NewClient(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return client, nil
}

// New wraps next with a cache on client.
func New(client *redis.Client, next content.Source, ttl time.Duration) *Source {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Source{client: client, next: next, prefix: defaultPrefix, ttl: ttl}
}

func (s *Source) slugsKey() string           { return s.prefix + "slugs" }
func (s *Source) pageKey(slug string) string { return s.prefix + "page:" + slug }
func (s *Source) blockKey(id string) string  { return s.prefix + "block:" + id }

func (s *Source) LandingPageSlugs(ctx context.Context) ([]string, error) {
	var slugs []string
	if s.get(ctx, s.slugsKey(), &slugs) {
		return slugs, nil
	}

	slugs, err := s.next.LandingPageSlugs(ctx)
	if err != nil {
		return nil, err
	}
	s.set(ctx, s.slugsKey(), slugs)
	return slugs, nil
}

func (s *Source) LandingPage(ctx context.Context, slug string) (*content.LandingPage, error) {
	var page content.LandingPage
	if s.get(ctx, s.pageKey(slug), &page) {
		return &page, nil
	}

	p, err := s.next.LandingPage(ctx, slug)
	if err != nil {
		return nil, err
	}
	s.set(ctx, s.pageKey(slug), p)
	return p, nil
}

// Blocks serves cached blocks and asks the wrapped source only for the rest.
func (s *Source) Blocks(ctx context.Context, ids []string) ([]content.Block, error) {
	if len(ids) == 0 {
		return s.next.Blocks(ctx, ids)
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.blockKey(id)
	}

	cached := make([]content.Block, 0, len(ids))
	missing := make([]string, 0, len(ids))

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		log.Printf("cache mget: %v", err)
		values = make([]any, len(ids))
	}
	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			missing = append(missing, ids[i])
			continue
		}
		blocks, err := content.DecodeBlocks([]byte(str))
		if err != nil || len(blocks) != 1 {
			missing = append(missing, ids[i])
			continue
		}
		cached = append(cached, blocks[0])
	}

	if len(missing) == 0 {
		return cached, nil
	}

	fetched, err := s.next.Blocks(ctx, missing)
	if err != nil {
		return nil, err
	}

	pipe := s.client.Pipeline()
	for _, b := range fetched {
		data, err := content.EncodeBlocks([]content.Block{b})
		if err != nil {
			continue
		}
		pipe.Set(ctx, s.blockKey(b.SysID()), data, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("cache set blocks: %v", err)
	}

	return append(cached, fetched...), nil
}

// InvalidatePages drops cached slugs and pages. Blocks stay until their TTL
// since layout edits do not change block content.
func (s *Source) InvalidatePages(ctx context.Context) error {
	var keys []string
	iter := s.client.Scan(ctx, 0, s.prefix+"page:*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan pages: %w", err)
	}
	keys = append(keys, s.slugsKey())

	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("invalidate pages: %w", err)
	}
	return nil
}

// get reports a hit. Misses and Redis errors both report false.
func (s *Source) get(ctx context.Context, key string, out any) bool {
	data, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false
	}
	if err != nil {
		log.Printf("cache get %s: %v", key, err)
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		log.Printf("cache decode %s: %v", key, err)
		return false
	}
	return true
}

func (s *Source) set(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		log.Printf("cache set %s: %v", key, err)
	}
}
