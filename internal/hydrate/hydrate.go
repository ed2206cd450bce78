// Package hydrate joins a page layout against fetched content blocks.
package hydrate

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hpungsan/tessera/internal/content"
	"github.com/hpungsan/tessera/internal/errors"
	"github.com/hpungsan/tessera/internal/layout"
)

// Record is a layout component with its resolved content.
// Content is nil when no fetched block matched ContentID.
type Record struct {
	layout.Component
	Content content.Block `json:"content,omitempty"`
}

// Resolved reports whether the record found its content.
func (r Record) Resolved() bool {
	return r.Content != nil
}

// Resolve returns one record per layout entry, in layout order. Each entry takes
// the first block in pool whose system id equals its ContentID. Linear scan per
// entry; pages hold a handful of components.
func Resolve(list layout.List, pool []content.Block) []Record {
	records := make([]Record, len(list))
	for i, c := range list {
		records[i] = Record{Component: c}
		for _, b := range pool {
			if b != nil && b.SysID() == c.ContentID {
				records[i].Content = b
				break
			}
		}
	}
	return records
}

// Page is a landing page ready to render.
type Page struct {
	Title      string   `json:"title"`
	Slug       string   `json:"slug"`
	Components []Record `json:"components"`
}

// LoadPage fetches the landing page for slug and hydrates its layout.
// An empty layout skips the block fetch. Missing pages return NOT_FOUND; every
// other source failure is reported as FETCH_FAILED.
func LoadPage(ctx context.Context, src content.Source, slug string) (*Page, error) {
	lp, err := src.LandingPage(ctx, slug)
	if err != nil {
		return nil, asFetchError(err)
	}

	page := &Page{Title: lp.Title, Slug: lp.Slug, Components: []Record{}}
	if len(lp.Layout) == 0 {
		return page, nil
	}

	pool, err := src.Blocks(ctx, lp.Layout.ContentIDs())
	if err != nil {
		return nil, asFetchError(err)
	}

	page.Components = Resolve(lp.Layout, pool)
	return page, nil
}

// Slugs lists landing page slugs, mapping failures to FETCH_FAILED.
func Slugs(ctx context.Context, src content.Source) ([]string, error) {
	slugs, err := src.LandingPageSlugs(ctx)
	if err != nil {
		return nil, asFetchError(err)
	}
	return slugs, nil
}

func asFetchError(err error) error {
	if errors.Is(err, errors.ErrNotFound) || errors.Is(err, errors.ErrFetchFailed) {
		return err
	}
	return errors.NewFetchFailed(err)
}

// Metadata is the head data for a rendered page.
type Metadata struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	JSONLD      string `json:"json_ld"`
}

// Metadata builds the page title, description, Open Graph URL and a schema.org
// WebPage JSON-LD document. siteURL is the public origin without a trailing slash.
func (p *Page) Metadata(siteURL string) Metadata {
	description := fmt.Sprintf("Learn more about %s on our amazing landing page.", p.Title)
	url := fmt.Sprintf("%s/landing/%s", siteURL, p.Slug)

	ld, _ := json.Marshal(map[string]string{
		"@context":    "https://schema.org",
		"@type":       "WebPage",
		"name":        p.Title,
		"url":         url,
		"description": description,
	})

	return Metadata{
		Title:       p.Title,
		Description: description,
		URL:         url,
		JSONLD:      string(ld),
	}
}
