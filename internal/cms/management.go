package cms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/hpungsan/tessera/internal/errors"
)

// Content Management API defaults.
const (
	DefaultManagementURL = "https://api.contentful.com"
	managementMediaType  = "application/vnd.contentful.management.v1+json"
)

// ManagementConfig configures a Management store.
type ManagementConfig struct {
	BaseURL     string
	SpaceID     string
	Environment string
	Token       string

	// RequestsPerSecond throttles outgoing requests. Zero uses 7.
	RequestsPerSecond float64

	HTTPClient *http.Client
}

// Management is an EntryStore over the Contentful Content Management API.
type Management struct {
	base    string
	token   string
	http    *http.Client
	limiter *rate.Limiter
}

var _ EntryStore = (*Management)(nil)

// NewManagement creates a CMA-backed store.
func NewManagement(cfg ManagementConfig) (*Management, error) {
	if cfg.SpaceID == "" {
		return nil, fmt.Errorf("cms: space id is required")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("cms: management token is required")
	}
	base := cfg.BaseURL
	if base == "" {
		base = DefaultManagementURL
	}
	env := cfg.Environment
	if env == "" {
		env = "master"
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 7
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}

	return &Management{
		base:    strings.TrimSuffix(base, "/") + "/spaces/" + url.PathEscape(cfg.SpaceID) + "/environments/" + url.PathEscape(env),
		token:   cfg.Token,
		http:    hc,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}, nil
}

// cmaEntry is the wire shape of an entry.
type cmaEntry struct {
	Sys struct {
		ID          string    `json:"id"`
		Version     int       `json:"version"`
		CreatedAt   time.Time `json:"createdAt"`
		UpdatedAt   time.Time `json:"updatedAt"`
		ContentType struct {
			Sys struct {
				ID string `json:"id"`
			} `json:"sys"`
		} `json:"contentType"`
	} `json:"sys"`
	Fields Fields `json:"fields"`
}

func (c *cmaEntry) entry() *Entry {
	fields := c.Fields
	if fields == nil {
		fields = Fields{}
	}
	return &Entry{
		ID:          c.Sys.ID,
		ContentType: c.Sys.ContentType.Sys.ID,
		Version:     c.Sys.Version,
		Fields:      fields,
		CreatedAt:   c.Sys.CreatedAt,
		UpdatedAt:   c.Sys.UpdatedAt,
	}
}

type fieldsBody struct {
	Fields Fields `json:"fields"`
}

func (m *Management) GetEntry(ctx context.Context, id string) (*Entry, error) {
	var out cmaEntry
	path, err := entryPath(id)
	if err != nil {
		return nil, err
	}
	if err := m.do(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, m.mapError(err, id, 0)
	}
	return out.entry(), nil
}

func (m *Management) CreateEntry(ctx context.Context, contentType string, fields Fields) (*Entry, error) {
	if contentType == "" {
		return nil, errors.NewInvalidRequest("content type is required")
	}
	if fields == nil {
		fields = Fields{}
	}
	headers := map[string]string{"X-Contentful-Content-Type": contentType}

	var out cmaEntry
	if err := m.do(ctx, http.MethodPost, "/entries", headers, fieldsBody{Fields: fields}, &out); err != nil {
		return nil, m.mapError(err, "", 0)
	}
	return out.entry(), nil
}

func (m *Management) UpdateEntry(ctx context.Context, e *Entry) (*Entry, error) {
	headers := map[string]string{"X-Contentful-Version": strconv.Itoa(e.Version)}

	var out cmaEntry
	path, err := entryPath(e.ID)
	if err != nil {
		return nil, err
	}
	if err := m.do(ctx, http.MethodPut, path, headers, fieldsBody{Fields: e.Fields}, &out); err != nil {
		return nil, m.mapError(err, e.ID, e.Version)
	}
	return out.entry(), nil
}

// entryPath returns the escaped API path for one entry. Ids arrive decoded
// from request paths and must not address anything but an entry.
func entryPath(id string) (string, error) {
	switch strings.TrimSpace(id) {
	case "", ".", "..":
		return "", errors.NewInvalidRequest(fmt.Sprintf("invalid entry id %q", id))
	}
	return "/entries/" + url.PathEscape(id), nil
}

// apiError is a non-2xx CMA response.
type apiError struct {
	Status  int
	ErrorID string
	Message string
}

func (e *apiError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("cma: %d %s: %s", e.Status, e.ErrorID, e.Message)
	}
	return fmt.Sprintf("cma: status %d", e.Status)
}

func (m *Management) mapError(err error, id string, version int) error {
	apiErr, ok := err.(*apiError)
	if !ok {
		return err
	}
	switch {
	case apiErr.Status == http.StatusNotFound && id != "":
		return errors.NewNotFound("entry", id)
	case apiErr.Status == http.StatusConflict || apiErr.ErrorID == "VersionMismatch":
		return errors.NewConflict(id, version)
	case apiErr.Status == http.StatusBadRequest || apiErr.Status == http.StatusUnprocessableEntity:
		inv := errors.NewInvalidRequest(apiErr.Message)
		inv.Err = apiErr
		return inv
	}
	return err
}

func (m *Management) do(ctx context.Context, method, path string, headers map[string]string, body, out any) error {
	if err := m.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, m.base+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+m.token)
	if body != nil {
		req.Header.Set("Content-Type", managementMediaType)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := m.http.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &apiError{Status: resp.StatusCode}
		var payload struct {
			Sys struct {
				ID string `json:"id"`
			} `json:"sys"`
			Message string `json:"message"`
		}
		if json.Unmarshal(raw, &payload) == nil {
			apiErr.ErrorID = payload.Sys.ID
			apiErr.Message = payload.Message
		}
		return apiErr
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
