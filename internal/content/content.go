// Package content defines the landing page and block types the renderer knows about,
// and the Source interface the render side reads them through.
package content

import (
	"context"

	"github.com/hpungsan/tessera/internal/layout"
)

// Known block type tags. These double as CMS content type ids.
const (
	TypeHeroBlock    = "heroBlock"
	TypeTwoColumnRow = "twoColumnRow"
	TypeImageGrid    = "imageGrid"
	TypeLandingPage  = "landingPage"
)

// BlockTypes lists the block type tags in display order.
var BlockTypes = []string{TypeHeroBlock, TypeTwoColumnRow, TypeImageGrid}

// IsBlockType reports whether t is a known block type tag.
func IsBlockType(t string) bool {
	for _, known := range BlockTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Sys carries the CMS system fields of an item.
type Sys struct {
	ID string `json:"id"`
}

// Asset is a linked image.
type Asset struct {
	URL    string `json:"url"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// Block is a content item a layout component can point at.
type Block interface {
	SysID() string
	BlockType() string
}

// HeroBlock is a full-width banner with a background image and call to action.
type HeroBlock struct {
	Sys             Sys    `json:"sys"`
	Heading         string `json:"heading"`
	Subtitle        string `json:"subtitle"`
	CTA             string `json:"cta"`
	BackgroundImage *Asset `json:"backgroundImage"`
}

// TwoColumnRow is copy on the left and an image on the right.
type TwoColumnRow struct {
	Sys          Sys    `json:"sys"`
	LeftHeading  string `json:"leftHeading"`
	LeftSubtitle string `json:"leftSubtitle"`
	LeftCTA      string `json:"leftCta"`
	RightImage   *Asset `json:"rightImage"`
}

// ImageGrid is a 2x2 grid of images. Any cell may be empty.
type ImageGrid struct {
	Sys    Sys    `json:"sys"`
	Image1 *Asset `json:"image1"`
	Image2 *Asset `json:"image2"`
	Image3 *Asset `json:"image3"`
	Image4 *Asset `json:"image4"`
}

func (b *HeroBlock) SysID() string        { return b.Sys.ID }
func (b *HeroBlock) BlockType() string    { return TypeHeroBlock }
func (b *TwoColumnRow) SysID() string     { return b.Sys.ID }
func (b *TwoColumnRow) BlockType() string { return TypeTwoColumnRow }
func (b *ImageGrid) SysID() string        { return b.Sys.ID }
func (b *ImageGrid) BlockType() string    { return TypeImageGrid }

// Images returns the grid's images in cell order, skipping empty cells.
func (b *ImageGrid) Images() []*Asset {
	images := make([]*Asset, 0, 4)
	for _, img := range []*Asset{b.Image1, b.Image2, b.Image3, b.Image4} {
		if img != nil {
			images = append(images, img)
		}
	}
	return images
}

// LandingPage is a page entry with its stored layout.
type LandingPage struct {
	Title  string      `json:"title"`
	Slug   string      `json:"slug"`
	Layout layout.List `json:"layoutConfig"`
}

// Source is the read side of the CMS as seen by the renderer.
type Source interface {
	// LandingPageSlugs lists every published landing page slug.
	LandingPageSlugs(ctx context.Context) ([]string, error)

	// LandingPage returns the page with the given slug, or a NOT_FOUND error.
	LandingPage(ctx context.Context, slug string) (*LandingPage, error)

	// Blocks returns every block whose id is in ids, in no particular order.
	Blocks(ctx context.Context, ids []string) ([]Block, error)
}
