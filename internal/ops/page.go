package ops

import (
	"context"
	"strings"

	"github.com/hpungsan/tessera/internal/content"
	"github.com/hpungsan/tessera/internal/errors"
	"github.com/hpungsan/tessera/internal/hydrate"
)

// ListPagesOutput contains the result of the ListPages operation.
type ListPagesOutput struct {
	Slugs []string `json:"slugs"`
}

// ListPages lists landing page slugs.
func ListPages(ctx context.Context, src content.Source) (*ListPagesOutput, error) {
	slugs, err := hydrate.Slugs(ctx, src)
	if err != nil {
		return nil, err
	}
	if slugs == nil {
		slugs = []string{}
	}
	return &ListPagesOutput{Slugs: slugs}, nil
}

// RenderPageInput contains parameters for the RenderPage operation.
type RenderPageInput struct {
	Slug    string
	SiteURL string // public origin for metadata, without trailing slash
}

// RenderPageOutput is a hydrated page and its head metadata.
type RenderPageOutput struct {
	*hydrate.Page
	Metadata   hydrate.Metadata `json:"metadata"`
	Unresolved int              `json:"unresolved"`
}

// RenderPage fetches a landing page and hydrates its layout.
func RenderPage(ctx context.Context, src content.Source, input RenderPageInput) (*RenderPageOutput, error) {
	slug := strings.TrimSpace(input.Slug)
	if slug == "" {
		return nil, errors.NewInvalidRequest("slug is required")
	}

	page, err := hydrate.LoadPage(ctx, src, slug)
	if err != nil {
		return nil, err
	}

	unresolved := 0
	for _, r := range page.Components {
		if !r.Resolved() {
			unresolved++
		}
	}

	return &RenderPageOutput{
		Page:       page,
		Metadata:   page.Metadata(strings.TrimSuffix(input.SiteURL, "/")),
		Unresolved: unresolved,
	}, nil
}
