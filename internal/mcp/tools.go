package mcp

import "github.com/mark3labs/mcp-go/mcp"

var entryIDParam = mcp.WithString("entry_id",
	mcp.Description("CMS entry id of the page whose layout is edited"),
	mcp.Required(),
)

var flushParam = mcp.WithBoolean("flush",
	mcp.Description("Write the layout before returning instead of after the save delay"),
)

var loadToolDef = mcp.NewTool("layout_load",
	mcp.WithDescription("Open the layout editor for an entry. The loaded layout becomes the baseline of the undo history."),
	entryIDParam,
	mcp.WithBoolean("reload", mcp.Description("Flush and discard an open session, then read the entry again")),
)

var showToolDef = mcp.NewTool("layout_show",
	mcp.WithDescription("Show the current layout, undo/redo availability and recent notices."),
	entryIDParam,
	mcp.WithBoolean("include_history", mcp.Description("Include past and future snapshots")),
)

var addToolDef = mcp.NewTool("layout_add",
	mcp.WithDescription("Create a content entry of the given type and append it to the layout."),
	entryIDParam,
	mcp.WithString("type",
		mcp.Description("Block type: heroBlock, twoColumnRow, imageGrid"),
		mcp.Required(),
	),
	flushParam,
)

var reorderToolDef = mcp.NewTool("layout_reorder",
	mcp.WithDescription("Move one component. Omit destination to drop outside the list (no change)."),
	entryIDParam,
	mcp.WithNumber("source", mcp.Description("Current index of the component"), mcp.Required()),
	mcp.WithNumber("destination", mcp.Description("Index in the list after removal")),
	flushParam,
)

var undoToolDef = mcp.NewTool("layout_undo",
	mcp.WithDescription("Step the layout back one snapshot."),
	entryIDParam,
	flushParam,
)

var redoToolDef = mcp.NewTool("layout_redo",
	mcp.WithDescription("Step the layout forward one snapshot."),
	entryIDParam,
	flushParam,
)

var pageListToolDef = mcp.NewTool("page_list",
	mcp.WithDescription("List landing page slugs."),
)

var pageRenderToolDef = mcp.NewTool("page_render",
	mcp.WithDescription("Fetch a landing page and hydrate its layout with content. Unresolved components have no content."),
	mcp.WithString("slug", mcp.Description("Landing page slug"), mcp.Required()),
)
