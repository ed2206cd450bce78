package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/tessera/internal/content"
	"github.com/hpungsan/tessera/internal/errors"
	"github.com/hpungsan/tessera/internal/layout"
)

type countingSource struct {
	pages      map[string]*content.LandingPage
	blocks     map[string]content.Block
	slugCalls  int
	pageCalls  int
	blockCalls int
	lastIDs    []string
}

func (c *countingSource) LandingPageSlugs(context.Context) ([]string, error) {
	c.slugCalls++
	out := []string{}
	for slug := range c.pages {
		out = append(out, slug)
	}
	return out, nil
}

func (c *countingSource) LandingPage(_ context.Context, slug string) (*content.LandingPage, error) {
	c.pageCalls++
	p, ok := c.pages[slug]
	if !ok {
		return nil, errors.NewNotFound("landing page", slug)
	}
	return p, nil
}

func (c *countingSource) Blocks(_ context.Context, ids []string) ([]content.Block, error) {
	c.blockCalls++
	c.lastIDs = ids
	out := []content.Block{}
	for _, id := range ids {
		if b, ok := c.blocks[id]; ok {
			out = append(out, b)
		}
	}
	return out, nil
}

func setup(t *testing.T) (*Source, *countingSource, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := NewClient("redis://" + mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	next := &countingSource{
		pages: map[string]*content.LandingPage{
			"spring": {Title: "Spring", Slug: "spring", Layout: layout.List{{ID: "1", Type: "heroBlock", ContentID: "h1"}}},
		},
		blocks: map[string]content.Block{
			"h1": &content.HeroBlock{Sys: content.Sys{ID: "h1"}, Heading: "Hi"},
			"g1": &content.ImageGrid{Sys: content.Sys{ID: "g1"}},
		},
	}
	return New(client, next, time.Minute), next, mr
}

func TestSource_PageIsCached(t *testing.T) {
	s, next, mr := setup(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		page, err := s.LandingPage(ctx, "spring")
		require.NoError(t, err)
		assert.Equal(t, "Spring", page.Title)
		assert.Equal(t, []string{"h1"}, page.Layout.ContentIDs())
	}
	assert.Equal(t, 1, next.pageCalls)
	assert.True(t, mr.Exists("tessera:page:spring"))

	mr.FastForward(2 * time.Minute)
	_, err := s.LandingPage(ctx, "spring")
	require.NoError(t, err)
	assert.Equal(t, 2, next.pageCalls, "expired entry refetched")
}

func TestSource_NotFoundIsNotCached(t *testing.T) {
	s, next, _ := setup(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := s.LandingPage(ctx, "winter")
		assert.True(t, errors.Is(err, errors.ErrNotFound))
	}
	assert.Equal(t, 2, next.pageCalls)
}

func TestSource_BlocksFetchesOnlyMisses(t *testing.T) {
	s, next, _ := setup(t)
	ctx := context.Background()

	blocks, err := s.Blocks(ctx, []string{"h1"})
	require.NoError(t, err)
	require.Len(t, blocks, 1)

	blocks, err = s.Blocks(ctx, []string{"h1", "g1", "nope"})
	require.NoError(t, err)
	assert.Len(t, blocks, 2)
	assert.Equal(t, []string{"g1", "nope"}, next.lastIDs)

	hero, ok := blocks[0].(*content.HeroBlock)
	require.True(t, ok, "cached block keeps its concrete type")
	assert.Equal(t, "Hi", hero.Heading)

	_, err = s.Blocks(ctx, []string{"h1", "g1"})
	require.NoError(t, err)
	assert.Equal(t, 2, next.blockCalls)
}

func TestSource_InvalidatePages(t *testing.T) {
	s, next, mr := setup(t)
	ctx := context.Background()

	_, err := s.LandingPageSlugs(ctx)
	require.NoError(t, err)
	_, err = s.LandingPage(ctx, "spring")
	require.NoError(t, err)
	_, err = s.Blocks(ctx, []string{"h1"})
	require.NoError(t, err)

	require.NoError(t, s.InvalidatePages(ctx))
	assert.False(t, mr.Exists("tessera:page:spring"))
	assert.False(t, mr.Exists("tessera:slugs"))
	assert.True(t, mr.Exists("tessera:block:h1"))

	_, err = s.LandingPage(ctx, "spring")
	require.NoError(t, err)
	assert.Equal(t, 2, next.pageCalls)
}

func TestSource_RedisDownFallsThrough(t *testing.T) {
	s, next, mr := setup(t)
	ctx := context.Background()
	mr.Close()

	page, err := s.LandingPage(ctx, "spring")
	require.NoError(t, err)
	assert.Equal(t, "Spring", page.Title)

	blocks, err := s.Blocks(ctx, []string{"h1"})
	require.NoError(t, err)
	assert.Len(t, blocks, 1)
	assert.Equal(t, 1, next.blockCalls)
}

func TestNewClient_BadURL(t *testing.T) {
	_, err := NewClient("not a url")
	assert.Error(t, err)
}
