package web

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/hpungsan/tessera/internal/config"
	"github.com/hpungsan/tessera/internal/content"
	"github.com/hpungsan/tessera/internal/editor"
	"github.com/hpungsan/tessera/internal/errors"
	"github.com/hpungsan/tessera/internal/ops"
)

// maxBodyBytes bounds editor API request bodies.
const maxBodyBytes = 64 << 10

// Handlers contains HTTP route handlers for the site and the editor.
type Handlers struct {
	manager  *editor.Manager
	source   content.Source
	cfg      *config.Config
	renderer *Renderer
}

// HandleIndex handles GET /: list landing pages.
func (h *Handlers) HandleIndex(w http.ResponseWriter, r *http.Request) {
	result, err := ops.ListPages(r.Context(), h.source)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}

	data := IndexPageData{PageData: h.renderer.page("Landing pages", "pages")}
	data.Slugs = result.Slugs
	h.renderer.renderPage(w, r, "index", data)
}

// HandleLanding handles GET /landing/{slug}: render a hydrated landing page.
func (h *Handlers) HandleLanding(w http.ResponseWriter, r *http.Request) {
	result, err := ops.RenderPage(r.Context(), h.source, ops.RenderPageInput{
		Slug:    r.PathValue("slug"),
		SiteURL: h.cfg.SiteURL,
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}

	data := LandingPageData{PageData: h.renderer.page(result.Title, "pages"), Page: result}
	data.Meta = &result.Metadata
	data.Slugs = h.navSlugs(r)
	h.renderer.renderPage(w, r, "landing", data)
}

// HandleEditor handles GET /editor/{entryID}: the layout editor page.
func (h *Handlers) HandleEditor(w http.ResponseWriter, r *http.Request) {
	result, err := ops.ShowLayout(r.Context(), h.manager, ops.ShowLayoutInput{EntryID: r.PathValue("entryID")})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	h.renderer.renderPage(w, r, "editor", h.editorData(result))
}

// HandleLayout handles GET /api/entries/{entryID}/layout.
func (h *Handlers) HandleLayout(w http.ResponseWriter, r *http.Request) {
	result, err := ops.ShowLayout(r.Context(), h.manager, ops.ShowLayoutInput{
		EntryID:        r.PathValue("entryID"),
		IncludeHistory: parseBoolParam(r, "include_history"),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// addRequest is the body of POST .../layout/components.
type addRequest struct {
	Type  string `json:"type"`
	Flush bool   `json:"flush"`
}

// HandleAddComponent handles POST /api/entries/{entryID}/layout/components.
func (h *Handlers) HandleAddComponent(w http.ResponseWriter, r *http.Request) {
	var body addRequest
	if err := decodeBody(r, &body, func(get func(string) string) error {
		body.Type = get("type")
		body.Flush = isTrue(get("flush"))
		return nil
	}); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	result, err := ops.AddComponent(r.Context(), h.manager, ops.AddComponentInput{
		EntryID: r.PathValue("entryID"),
		Type:    body.Type,
		Flush:   body.Flush,
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	h.respondLayout(w, r, http.StatusCreated, result, result.LayoutOutput)
}

// reorderRequest is the body of POST .../layout/reorder. A missing destination
// is a drop outside the list.
type reorderRequest struct {
	Source      int  `json:"source"`
	Destination *int `json:"destination"`
	Flush       bool `json:"flush"`
}

// HandleReorder handles POST /api/entries/{entryID}/layout/reorder.
func (h *Handlers) HandleReorder(w http.ResponseWriter, r *http.Request) {
	var body reorderRequest
	if err := decodeBody(r, &body, func(get func(string) string) error {
		src, err := strconv.Atoi(get("source"))
		if err != nil {
			return errors.NewInvalidRequest("source must be an integer")
		}
		body.Source = src
		if d := get("destination"); d != "" {
			dst, err := strconv.Atoi(d)
			if err != nil {
				return errors.NewInvalidRequest("destination must be an integer")
			}
			body.Destination = &dst
		}
		body.Flush = isTrue(get("flush"))
		return nil
	}); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	result, err := ops.ReorderComponents(r.Context(), h.manager, ops.ReorderInput{
		EntryID:     r.PathValue("entryID"),
		Source:      body.Source,
		Destination: body.Destination,
		Flush:       body.Flush,
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	h.respondLayout(w, r, http.StatusOK, result, result.LayoutOutput)
}

// HandleUndo handles POST /api/entries/{entryID}/layout/undo.
func (h *Handlers) HandleUndo(w http.ResponseWriter, r *http.Request) {
	h.handleHistory(w, r, ops.Undo)
}

// HandleRedo handles POST /api/entries/{entryID}/layout/redo.
func (h *Handlers) HandleRedo(w http.ResponseWriter, r *http.Request) {
	h.handleHistory(w, r, ops.Redo)
}

type historyOp func(ctx context.Context, m *editor.Manager, input ops.HistoryInput) (*ops.ChangeOutput, error)

func (h *Handlers) handleHistory(w http.ResponseWriter, r *http.Request, op historyOp) {
	var body struct {
		Flush bool `json:"flush"`
	}
	if err := decodeBody(r, &body, func(get func(string) string) error {
		body.Flush = isTrue(get("flush"))
		return nil
	}); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	result, err := op(r.Context(), h.manager, ops.HistoryInput{
		EntryID: r.PathValue("entryID"),
		Flush:   body.Flush,
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	h.respondLayout(w, r, http.StatusOK, result, result.LayoutOutput)
}

// respondLayout answers an editor mutation: JSON for API clients, the editor
// panel for htmx, and a redirect back to the editor for plain form posts.
func (h *Handlers) respondLayout(w http.ResponseWriter, r *http.Request, status int, result any, layout *ops.LayoutOutput) {
	if wantsJSON(r) {
		renderJSON(w, status, result)
		return
	}

	if r.Header.Get("HX-Request") == "true" {
		h.renderer.renderBlock(w, http.StatusOK, "editor", "editor-panel", h.editorData(layout))
		return
	}

	http.Redirect(w, r, "/editor/"+layout.EntryID, http.StatusSeeOther)
}

func (h *Handlers) editorData(layout *ops.LayoutOutput) EditorPageData {
	return EditorPageData{
		PageData:   h.renderer.page("Edit layout", "editor"),
		Layout:     layout,
		BlockTypes: content.BlockTypes,
	}
}

// navSlugs lists pages for the header nav. A failure only drops the nav.
func (h *Handlers) navSlugs(r *http.Request) []string {
	result, err := ops.ListPages(r.Context(), h.source)
	if err != nil {
		log.Printf("nav: %v", err)
		return nil
	}
	return result.Slugs
}

// decodeBody reads a JSON body into v, or hands form values to fromForm.
func decodeBody(r *http.Request, v any, fromForm func(get func(string) string) error) error {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
		if err := dec.Decode(v); err != nil && err != io.EOF {
			return errors.NewInvalidRequest("invalid JSON body")
		}
		return nil
	}

	if err := r.ParseForm(); err != nil {
		return errors.NewInvalidRequest("invalid form data")
	}
	return fromForm(r.FormValue)
}

// parseBoolParam parses a boolean query parameter.
func parseBoolParam(r *http.Request, name string) bool {
	return isTrue(r.URL.Query().Get(name))
}

func isTrue(s string) bool {
	return s == "true" || s == "1" || s == "on"
}

func notFound(path string) error {
	return errors.NewNotFound("page", path)
}
