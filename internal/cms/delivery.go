package cms

import (
	"context"
	"encoding/json"

	"github.com/hpungsan/tessera/internal/content"
	"github.com/hpungsan/tessera/internal/errors"
	"github.com/hpungsan/tessera/internal/graphql"
	"github.com/hpungsan/tessera/internal/layout"
)

// Requester runs a GraphQL query. *graphql.Client implements it.
type Requester interface {
	Request(ctx context.Context, query string, variables map[string]any, out any) error
}

var _ Requester = (*graphql.Client)(nil)

const landingPageSlugsQuery = `
  query LandingPageSlugs {
    landingPageCollection {
      items {
        slug
      }
    }
  }
`

const landingPageQuery = `
  query LandingPage($slug: String!) {
    landingPageCollection(where: { slug: $slug }, limit: 1) {
      items {
        title
        slug
        layoutConfig
      }
    }
  }
`

const pageComponentsQuery = `
  query PageComponents($ids: [String!]!) {
    heroBlockCollection(where: { sys: { id_in: $ids } }) {
      items {
        sys { id }
        heading
        subtitle
        cta
        backgroundImage { url width height }
      }
    }
    twoColumnRowCollection(where: { sys: { id_in: $ids } }) {
      items {
        sys { id }
        leftHeading
        leftSubtitle
        leftCta
        rightImage { url width height }
      }
    }
    imageGridCollection(where: { sys: { id_in: $ids } }) {
      items {
        sys { id }
        image1 { url width height }
        image2 { url width height }
        image3 { url width height }
        image4 { url width height }
      }
    }
  }
`

// Delivery is a content.Source over the GraphQL content API.
type Delivery struct {
	client Requester
}

var _ content.Source = (*Delivery)(nil)

// NewDelivery wraps a GraphQL requester.
func NewDelivery(client Requester) *Delivery {
	return &Delivery{client: client}
}

func (d *Delivery) LandingPageSlugs(ctx context.Context) ([]string, error) {
	var data struct {
		LandingPageCollection struct {
			Items []struct {
				Slug string `json:"slug"`
			} `json:"items"`
		} `json:"landingPageCollection"`
	}
	if err := d.client.Request(ctx, landingPageSlugsQuery, nil, &data); err != nil {
		return nil, errors.NewFetchFailed(err)
	}

	slugs := make([]string, 0, len(data.LandingPageCollection.Items))
	for _, item := range data.LandingPageCollection.Items {
		if item.Slug != "" {
			slugs = append(slugs, item.Slug)
		}
	}
	return slugs, nil
}

func (d *Delivery) LandingPage(ctx context.Context, slug string) (*content.LandingPage, error) {
	var data struct {
		LandingPageCollection struct {
			Items []struct {
				Title        string      `json:"title"`
				Slug         string      `json:"slug"`
				LayoutConfig layout.List `json:"layoutConfig"`
			} `json:"items"`
		} `json:"landingPageCollection"`
	}
	vars := map[string]any{"slug": slug}
	if err := d.client.Request(ctx, landingPageQuery, vars, &data); err != nil {
		return nil, errors.NewFetchFailed(err)
	}

	items := data.LandingPageCollection.Items
	if len(items) == 0 {
		return nil, errors.NewNotFound("landing page", slug)
	}

	page := items[0]
	if page.Slug == "" {
		page.Slug = slug
	}
	list := page.LayoutConfig
	if list == nil {
		list = layout.List{}
	}
	return &content.LandingPage{Title: page.Title, Slug: page.Slug, Layout: list}, nil
}

// Blocks returns heroes, then two-column rows, then image grids.
func (d *Delivery) Blocks(ctx context.Context, ids []string) ([]content.Block, error) {
	if len(ids) == 0 {
		return []content.Block{}, nil
	}

	type collection struct {
		Items []json.RawMessage `json:"items"`
	}
	var data struct {
		HeroBlockCollection    collection `json:"heroBlockCollection"`
		TwoColumnRowCollection collection `json:"twoColumnRowCollection"`
		ImageGridCollection    collection `json:"imageGridCollection"`
	}
	vars := map[string]any{"ids": ids}
	if err := d.client.Request(ctx, pageComponentsQuery, vars, &data); err != nil {
		return nil, errors.NewFetchFailed(err)
	}

	groups := []struct {
		blockType string
		items     []json.RawMessage
	}{
		{content.TypeHeroBlock, data.HeroBlockCollection.Items},
		{content.TypeTwoColumnRow, data.TwoColumnRowCollection.Items},
		{content.TypeImageGrid, data.ImageGridCollection.Items},
	}

	var blocks []content.Block
	for _, g := range groups {
		for _, raw := range g.items {
			// Unpublished links come back as null items
			if string(raw) == "null" {
				continue
			}
			b, err := content.DecodeBlock(g.blockType, raw)
			if err != nil {
				return nil, errors.NewFetchFailed(err)
			}
			blocks = append(blocks, b)
		}
	}
	if blocks == nil {
		blocks = []content.Block{}
	}
	return blocks, nil
}
