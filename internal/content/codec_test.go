package content

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeBlock_GraphQLShape(t *testing.T) {
	raw := json.RawMessage(`{
		"sys": {"id": "h1"},
		"heading": "Spring",
		"subtitle": "Fresh *arrivals*",
		"cta": "Shop",
		"backgroundImage": {"url": "https://img/x.jpg", "width": 1600, "height": 900}
	}`)

	b, err := DecodeBlock(TypeHeroBlock, raw)
	require.NoError(t, err)

	hero, ok := b.(*HeroBlock)
	require.True(t, ok)
	assert.Equal(t, "h1", hero.SysID())
	assert.Equal(t, "Shop", hero.CTA)
	require.NotNil(t, hero.BackgroundImage)
	assert.Equal(t, 1600, hero.BackgroundImage.Width)
}

func TestDecodeBlock_UnknownType(t *testing.T) {
	_, err := DecodeBlock("carousel", json.RawMessage(`{}`))
	assert.Error(t, err)
}

func TestEncodeDecodeBlocks_KeepsTypes(t *testing.T) {
	blocks := []Block{
		&HeroBlock{Sys: Sys{ID: "h1"}, Heading: "Hi"},
		&ImageGrid{Sys: Sys{ID: "g1"}, Image2: &Asset{URL: "https://img/2.jpg"}},
		&TwoColumnRow{Sys: Sys{ID: "t1"}, LeftCTA: "Go"},
	}

	data, err := EncodeBlocks(blocks)
	require.NoError(t, err)

	got, err := DecodeBlocks(data)
	require.NoError(t, err)
	assert.Equal(t, blocks, got)
}

func TestImageGrid_ImagesSkipsEmptyCells(t *testing.T) {
	g := &ImageGrid{Image1: &Asset{URL: "a"}, Image3: &Asset{URL: "c"}}

	images := g.Images()
	require.Len(t, images, 2)
	assert.Equal(t, "a", images[0].URL)
	assert.Equal(t, "c", images[1].URL)
}

func TestIsBlockType(t *testing.T) {
	assert.True(t, IsBlockType(TypeImageGrid))
	assert.False(t, IsBlockType("carousel"))
	assert.False(t, IsBlockType(TypeLandingPage))
}
