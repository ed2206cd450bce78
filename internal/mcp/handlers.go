package mcp

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/tessera/internal/config"
	"github.com/hpungsan/tessera/internal/content"
	"github.com/hpungsan/tessera/internal/editor"
	"github.com/hpungsan/tessera/internal/errors"
	"github.com/hpungsan/tessera/internal/ops"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	manager *editor.Manager
	source  content.Source
	cfg     *config.Config
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(manager *editor.Manager, source content.Source, cfg *config.Config) *Handlers {
	return &Handlers{manager: manager, source: source, cfg: cfg}
}

// Request types for each tool

// LoadRequest represents the arguments for layout_load.
type LoadRequest struct {
	EntryID string `json:"entry_id"`
	Reload  bool   `json:"reload,omitempty"`
}

// ShowRequest represents the arguments for layout_show.
type ShowRequest struct {
	EntryID        string `json:"entry_id"`
	IncludeHistory bool   `json:"include_history,omitempty"`
}

// AddRequest represents the arguments for layout_add.
type AddRequest struct {
	EntryID string `json:"entry_id"`
	Type    string `json:"type"`
	Flush   bool   `json:"flush,omitempty"`
}

// ReorderRequest represents the arguments for layout_reorder.
type ReorderRequest struct {
	EntryID     string `json:"entry_id"`
	Source      int    `json:"source"`
	Destination *int   `json:"destination,omitempty"`
	Flush       bool   `json:"flush,omitempty"`
}

// HistoryRequest represents the arguments for layout_undo and layout_redo.
type HistoryRequest struct {
	EntryID string `json:"entry_id"`
	Flush   bool   `json:"flush,omitempty"`
}

// RenderRequest represents the arguments for page_render.
type RenderRequest struct {
	Slug string `json:"slug"`
}

// Handler implementations

// HandleLoad handles the layout_load tool call.
func (h *Handlers) HandleLoad(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[LoadRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.LoadLayout(ctx, h.manager, ops.LoadLayoutInput{
		EntryID: input.EntryID,
		Reload:  input.Reload,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleShow handles the layout_show tool call.
func (h *Handlers) HandleShow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ShowRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.ShowLayout(ctx, h.manager, ops.ShowLayoutInput{
		EntryID:        input.EntryID,
		IncludeHistory: input.IncludeHistory,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleAdd handles the layout_add tool call.
func (h *Handlers) HandleAdd(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[AddRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.AddComponent(ctx, h.manager, ops.AddComponentInput{
		EntryID: input.EntryID,
		Type:    input.Type,
		Flush:   input.Flush,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleReorder handles the layout_reorder tool call.
func (h *Handlers) HandleReorder(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ReorderRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.ReorderComponents(ctx, h.manager, ops.ReorderInput{
		EntryID:     input.EntryID,
		Source:      input.Source,
		Destination: input.Destination,
		Flush:       input.Flush,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleUndo handles the layout_undo tool call.
func (h *Handlers) HandleUndo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[HistoryRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.Undo(ctx, h.manager, ops.HistoryInput{EntryID: input.EntryID, Flush: input.Flush})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleRedo handles the layout_redo tool call.
func (h *Handlers) HandleRedo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[HistoryRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.Redo(ctx, h.manager, ops.HistoryInput{EntryID: input.EntryID, Flush: input.Flush})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandlePageList handles the page_list tool call.
func (h *Handlers) HandlePageList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := ops.ListPages(ctx, h.source)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandlePageRender handles the page_render tool call.
func (h *Handlers) HandlePageRender(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[RenderRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.RenderPage(ctx, h.source, ops.RenderPageInput{
		Slug:    input.Slug,
		SiteURL: h.cfg.SiteURL,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Note: Internal error details are not exposed to prevent leaking sensitive info.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if tErr := errors.As(err); tErr != nil {
		message := tErr.Message
		if err != error(tErr) && tErr.Code != errors.ErrInternal {
			// Keep the wrapper's context, e.g. "component 2: ..."
			message = err.Error()
		}
		errorObj := map[string]any{
			"code":    tErr.Code,
			"message": message,
			"status":  tErr.Status,
		}
		// Only include details for non-internal errors to avoid leaking
		// sensitive info like file paths or SQL errors
		if tErr.Code != errors.ErrInternal && tErr.Details != nil {
			errorObj["details"] = tErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
