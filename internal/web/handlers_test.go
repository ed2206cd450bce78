package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/hpungsan/tessera/internal/cms"
	"github.com/hpungsan/tessera/internal/config"
	"github.com/hpungsan/tessera/internal/content"
	"github.com/hpungsan/tessera/internal/db"
	"github.com/hpungsan/tessera/internal/editor"
	"github.com/hpungsan/tessera/internal/layout"
)

const (
	testLocale = "en-US"
	testField  = "layoutConfig"
)

type testEnv struct {
	local   *cms.Local
	manager *editor.Manager
	handler http.Handler
}

func setupTest(t *testing.T) *testEnv {
	t.Helper()
	database, err := db.Init(t.TempDir())
	if err != nil {
		t.Fatalf("db.Init: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	cfg := config.DefaultConfig()
	cfg.SiteURL = "https://shop.example"
	cfg.CORSOrigins = []string{"https://app.contentful.com"}

	local := cms.NewLocal(database, testLocale, testField)
	m := editor.NewManager(local, editor.Options{
		LayoutField: testField,
		Locale:      testLocale,
		SaveDelay:   time.Hour,
	})
	t.Cleanup(func() { m.Close(context.Background()) })

	return &testEnv{
		local:   local,
		manager: m,
		handler: NewHandler(Deps{Manager: m, Source: local, Config: cfg}, "test"),
	}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func setField(t *testing.T, f cms.Fields, field string, v any) {
	t.Helper()
	if err := f.Set(field, testLocale, v); err != nil {
		t.Fatalf("set %s: %v", field, err)
	}
}

// seedPage stores a landing page whose layout points at the given components.
func seedPage(t *testing.T, env *testEnv, slug string, list layout.List) string {
	t.Helper()
	f := cms.Fields{}
	setField(t, f, cms.FieldTitle, "Title "+slug)
	setField(t, f, cms.FieldSlug, slug)
	setField(t, f, testField, list)
	e, err := env.local.Put(context.Background(), "page-"+slug, content.TypeLandingPage, f)
	if err != nil {
		t.Fatalf("seed page: %v", err)
	}
	return e.ID
}

func seedHero(t *testing.T, env *testEnv, id, heading, subtitle string) {
	t.Helper()
	f := cms.Fields{}
	setField(t, f, "heading", heading)
	setField(t, f, "subtitle", subtitle)
	setField(t, f, "cta", "Shop now")
	setField(t, f, "backgroundImage", content.Asset{URL: "https://img.example/" + id + ".jpg", Width: 1600, Height: 900})
	if _, err := env.local.Put(context.Background(), id, content.TypeHeroBlock, f); err != nil {
		t.Fatalf("seed hero: %v", err)
	}
}

func postForm(path string, values url.Values) *http.Request {
	req := httptest.NewRequest("POST", path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func postJSON(path, body string) *http.Request {
	req := httptest.NewRequest("POST", path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return req
}

// --- site ---

func TestHandleIndex(t *testing.T) {
	env := setupTest(t)
	seedPage(t, env, "spring", layout.List{})

	rec := env.do(httptest.NewRequest("GET", "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `href="/landing/spring"`) {
		t.Error("expected link to /landing/spring")
	}
}

func TestHandleIndex_JSON(t *testing.T) {
	env := setupTest(t)
	seedPage(t, env, "spring", layout.List{})

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Accept", "application/json")
	rec := env.do(req)

	var body struct {
		Slugs []string `json:"slugs"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Slugs) != 1 || body.Slugs[0] != "spring" {
		t.Errorf("slugs = %v, want [spring]", body.Slugs)
	}
}

func TestHandleLanding_RendersBlocksAndPlaceholders(t *testing.T) {
	env := setupTest(t)
	seedHero(t, env, "h1", "Welcome", "Fresh *arrivals*")
	seedPage(t, env, "spring", layout.List{
		{ID: "a", Type: content.TypeHeroBlock, ContentID: "h1"},
		{ID: "b", Type: content.TypeImageGrid, ContentID: "missing"},
		{ID: "c", Type: "carousel", ContentID: "h1"},
	})

	rec := env.do(httptest.NewRequest("GET", "/landing/spring", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		"<title>Title spring</title>",
		"Welcome",
		"Fresh <em>arrivals</em>",
		"Component of type imageGrid is not mapped or has no content.",
		"Component of type carousel is not mapped or has no content.",
		`<meta property="og:url" content="https://shop.example/landing/spring">`,
		`"@type":"WebPage"`,
		`<img class="hero-bg" src="https://img.example/h1.jpg" alt="">`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q", want)
		}
	}

	// style-src 'self' blocks inline style attributes
	if csp := rec.Header().Get("Content-Security-Policy"); !strings.Contains(csp, "style-src 'self'") || strings.Contains(csp, "unsafe-inline") {
		t.Errorf("Content-Security-Policy = %q", csp)
	}
	if strings.Contains(body, "style=") {
		t.Error("block markup must not rely on inline styles")
	}

	// Layout order is kept
	if strings.Index(body, "Welcome") > strings.Index(body, "imageGrid is not mapped") {
		t.Error("hero should render before the placeholder")
	}
}

func TestHandleLanding_NotFound(t *testing.T) {
	env := setupTest(t)

	rec := env.do(httptest.NewRequest("GET", "/landing/nope", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Page Not Found") {
		t.Error("expected 'Page Not Found'")
	}
}

func TestUnknownPathIsNotFound(t *testing.T) {
	env := setupTest(t)

	rec := env.do(httptest.NewRequest("GET", "/no/such/path", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

type failingSource struct{}

func (failingSource) LandingPageSlugs(context.Context) ([]string, error) {
	return nil, fmt.Errorf("dial tcp: connection refused")
}

func (failingSource) LandingPage(context.Context, string) (*content.LandingPage, error) {
	return nil, fmt.Errorf("dial tcp: connection refused")
}

func (failingSource) Blocks(context.Context, []string) ([]content.Block, error) {
	return nil, fmt.Errorf("dial tcp: connection refused")
}

func TestHandleLanding_FetchFailure(t *testing.T) {
	handler := NewHandler(Deps{Source: failingSource{}}, "test")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/landing/spring", nil))

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	body := rec.Body.String()
	if strings.Contains(body, "connection refused") {
		t.Error("upstream error details should not reach the page")
	}
	if !strings.Contains(body, "Something went wrong") {
		t.Error("expected generic error message")
	}
}

func TestHandleLanding_JSONError(t *testing.T) {
	env := setupTest(t)

	req := httptest.NewRequest("GET", "/landing/nope", nil)
	req.Header.Set("Accept", "application/json")
	rec := env.do(req)

	var body struct {
		Error struct {
			Code   string `json:"code"`
			Status int    `json:"status"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Code != "NOT_FOUND" || body.Error.Status != 404 {
		t.Errorf("error = %+v, want NOT_FOUND/404", body.Error)
	}
}

// --- editor ---

func TestHandleEditor(t *testing.T) {
	env := setupTest(t)
	id := seedPage(t, env, "spring", layout.List{
		{ID: "a", Type: content.TypeHeroBlock, ContentID: "h1"},
		{ID: "b", Type: content.TypeImageGrid, ContentID: "g1"},
	})

	rec := env.do(httptest.NewRequest("GET", "/editor/"+id, nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"Move up", "Move down", "Add twoColumnRow", "/api/entries/" + id + "/layout/undo"} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q", want)
		}
	}
}

func TestHandleEditor_MissingEntry(t *testing.T) {
	env := setupTest(t)

	rec := env.do(httptest.NewRequest("GET", "/editor/nope", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestAPI_LayoutLifecycle(t *testing.T) {
	env := setupTest(t)
	id := seedPage(t, env, "spring", layout.List{
		{ID: "a", Type: content.TypeHeroBlock, ContentID: "h1"},
	})
	base := "/api/entries/" + id + "/layout"

	// Add
	rec := env.do(postJSON(base+"/components", `{"type":"imageGrid"}`))
	if rec.Code != http.StatusCreated {
		t.Fatalf("add status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	var added struct {
		Added      layout.Component `json:"added"`
		Components layout.List      `json:"components"`
		Pending    bool             `json:"save_pending"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&added); err != nil {
		t.Fatalf("decode add: %v", err)
	}
	if added.Added.Type != content.TypeImageGrid || len(added.Components) != 2 || !added.Pending {
		t.Errorf("unexpected add result: %+v", added)
	}

	// Reorder, flushed
	rec = env.do(postJSON(base+"/reorder", `{"source":1,"destination":0,"flush":true}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("reorder status = %d: %s", rec.Code, rec.Body.String())
	}

	stored, err := env.local.GetEntry(context.Background(), id)
	if err != nil {
		t.Fatalf("GetEntry: %v", err)
	}
	list, _ := stored.Layout(testField, testLocale)
	if len(list) != 2 || list[0].Type != content.TypeImageGrid {
		t.Errorf("stored layout = %+v, want imageGrid first", list)
	}

	// Undo then redo
	rec = env.do(postJSON(base+"/undo", `{}`))
	var changed struct {
		Changed bool `json:"changed"`
		CanRedo bool `json:"can_redo"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&changed); err != nil {
		t.Fatalf("decode undo: %v", err)
	}
	if !changed.Changed || !changed.CanRedo {
		t.Errorf("undo = %+v, want changed with redo available", changed)
	}

	rec = env.do(postJSON(base+"/redo", `{"flush":true}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("redo status = %d", rec.Code)
	}

	// Show with history
	req := httptest.NewRequest("GET", base+"?include_history=true", nil)
	rec = env.do(req)
	var shown struct {
		Components layout.List `json:"components"`
		History    *struct {
			Past []layout.List `json:"past"`
		} `json:"history"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&shown); err != nil {
		t.Fatalf("decode show: %v", err)
	}
	if shown.History == nil || len(shown.History.Past) == 0 {
		t.Error("expected history in response")
	}
	if len(shown.Components) != 2 || shown.Components[0].Type != content.TypeImageGrid {
		t.Errorf("components = %+v", shown.Components)
	}
}

func TestAPI_ReorderWithoutDestination(t *testing.T) {
	env := setupTest(t)
	id := seedPage(t, env, "spring", layout.List{
		{ID: "a", Type: content.TypeHeroBlock, ContentID: "h1"},
		{ID: "b", Type: content.TypeHeroBlock, ContentID: "h2"},
	})

	rec := env.do(postJSON("/api/entries/"+id+"/layout/reorder", `{"source":0}`))

	var out struct {
		Changed bool `json:"changed"`
		Pending bool `json:"save_pending"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Changed || out.Pending {
		t.Errorf("drop outside the list should change nothing: %+v", out)
	}
}

func TestAPI_InvalidRequests(t *testing.T) {
	env := setupTest(t)
	id := seedPage(t, env, "spring", layout.List{{ID: "a", Type: content.TypeHeroBlock, ContentID: "h1"}})
	base := "/api/entries/" + id + "/layout"

	tests := []struct {
		name string
		req  *http.Request
		want int
	}{
		{"bad json", postJSON(base+"/components", `{`), http.StatusBadRequest},
		{"missing type", postJSON(base+"/components", `{}`), http.StatusBadRequest},
		{"source out of range", postJSON(base+"/reorder", `{"source":5,"destination":0}`), http.StatusBadRequest},
		{"form source not int", postForm(base+"/reorder", url.Values{"source": {"x"}}), http.StatusBadRequest},
		{"unknown entry", postJSON("/api/entries/nope/layout/undo", `{}`), http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(tt.req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestAPI_FormPostRedirectsToEditor(t *testing.T) {
	env := setupTest(t)
	id := seedPage(t, env, "spring", layout.List{
		{ID: "a", Type: content.TypeHeroBlock, ContentID: "h1"},
		{ID: "b", Type: content.TypeHeroBlock, ContentID: "h2"},
	})

	rec := env.do(postForm("/api/entries/"+id+"/layout/reorder", url.Values{
		"source":      {"1"},
		"destination": {"0"},
	}))

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/editor/"+id {
		t.Errorf("Location = %q", loc)
	}

	s, ok := env.manager.Lookup(id)
	if !ok {
		t.Fatal("session should be open")
	}
	if got := s.State().Components.ContentIDs(); got[0] != "h2" {
		t.Errorf("components = %v, want h2 first", got)
	}
}

func TestAPI_HTMXReturnsPanel(t *testing.T) {
	env := setupTest(t)
	id := seedPage(t, env, "spring", layout.List{})

	req := postForm("/api/entries/"+id+"/layout/components", url.Values{"type": {"heroBlock"}})
	req.Header.Set("HX-Request", "true")
	rec := env.do(req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `id="editor-panel"`) {
		t.Error("expected editor panel fragment")
	}
	if strings.Contains(body, "<html") {
		t.Error("fragment should not include the layout")
	}
	if !strings.Contains(body, "New heroBlock component added.") {
		t.Error("expected add notice in panel")
	}
}

// --- middleware ---

func TestSecurityHeaders(t *testing.T) {
	env := setupTest(t)

	rec := env.do(httptest.NewRequest("GET", "/", nil))

	if rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("missing X-Frame-Options")
	}
	if !strings.Contains(rec.Header().Get("Content-Security-Policy"), "default-src 'self'") {
		t.Error("missing CSP")
	}
}

func TestCORSPreflight(t *testing.T) {
	env := setupTest(t)

	req := httptest.NewRequest("OPTIONS", "/api/entries/x/layout/undo", nil)
	req.Header.Set("Origin", "https://app.contentful.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := env.do(req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.contentful.com" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestStaticCSS(t *testing.T) {
	env := setupTest(t)

	rec := env.do(httptest.NewRequest("GET", "/static/style.css", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestRenderMarkdown_Inline(t *testing.T) {
	if got := string(renderMarkdown("Fresh **deals**")); got != "Fresh <strong>deals</strong>" {
		t.Errorf("renderMarkdown = %q", got)
	}
	if got := renderMarkdown(""); got != "" {
		t.Errorf("empty input = %q", got)
	}
}
