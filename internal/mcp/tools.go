// tools.go declares the quill MCP tools. Handlers live beside the surface
// they cover: tools_sections.go, tools_search.go, tools_locks.go,
// tools_versions.go and tools_convert.go.

package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

func docParam() mcp.ToolOption {
	return mcp.WithString("doc", mcp.Required(), mcp.Description("Document id, e.g. reports/q3"))
}

func titleParam() mcp.ToolOption {
	return mcp.WithString("title", mcp.Required(), mcp.Description("Section title, matched exactly"))
}

func authorParam() mcp.ToolOption {
	return mcp.WithString("author", mcp.Required(), mcp.Description("Agent identity; owns the locks taken by this call"))
}

// registerTools exposes quill operations as MCP tools.
func registerTools(s *server.MCPServer, h *handlers) {
	// Workspace
	s.AddTool(mcp.NewTool("quill_init",
		mcp.WithDescription("Initialise a quill workspace. Call this first if other tools return 'workspace not initialised'."),
		mcp.WithBoolean("force", mcp.Description("Reinitialise an existing workspace")),
	), h.initWorkspace)
	s.AddTool(mcp.NewTool("quill_guide",
		mcp.WithDescription("Read the quill usage guide"),
		mcp.WithString("topic", mcp.Description("Guide topic (default: main guide)")),
	), h.guide)

	// Documents and sections
	s.AddTool(mcp.NewTool("quill_list",
		mcp.WithDescription("List document ids"),
		mcp.WithString("prefix", mcp.Description("Only documents under this prefix")),
	), h.listDocuments)
	s.AddTool(mcp.NewTool("quill_grep",
		mcp.WithDescription("Search section bodies with a regular expression. Each match names its document, line and section."),
		mcp.WithString("pattern", mcp.Required(), mcp.Description("Go regular expression")),
		mcp.WithString("prefix", mcp.Description("Only documents under this prefix")),
		mcp.WithString("glob", mcp.Description("Only documents whose id matches, e.g. reports/** or **/summary")),
		mcp.WithString("section", mcp.Description("Only lines inside this section")),
		mcp.WithBoolean("ignore_case", mcp.Description("Case-insensitive matching")),
		mcp.WithBoolean("invert", mcp.Description("Return lines that do not match")),
	), h.grepSections)
	s.AddTool(mcp.NewTool("quill_create",
		mcp.WithDescription("Create a document holding only its metadata block"),
		docParam(),
		mcp.WithString("title", mcp.Required(), mcp.Description("Document title")),
		authorParam(),
		mcp.WithString("date", mcp.Description("YYYY-MM-DD (default: today)")),
		mcp.WithString("status", mcp.Description("draft, review or final (default: draft)")),
		mcp.WithArray("tags", mcp.Description("Up to 10 tags"), mcp.WithStringItems()),
		mcp.WithObject("meta", mcp.Description("Extra metadata keys")),
	), h.createDocument)
	s.AddTool(mcp.NewTool("quill_write",
		mcp.WithDescription("Write a whole document. Sections without markers are annotated."),
		docParam(),
		mcp.WithString("content", mcp.Required(), mcp.Description("Full markdown, including the metadata block")),
		authorParam(),
		mcp.WithBoolean("overwrite", mcp.Description("Replace an existing document")),
	), h.writeDocument)
	s.AddTool(mcp.NewTool("quill_read",
		mcp.WithDescription("Read a whole document, or one of its snapshots"),
		docParam(),
		mcp.WithNumber("version", mcp.Description("Snapshot version (default: current)")),
	), h.readDocument)
	s.AddTool(mcp.NewTool("quill_sections",
		mcp.WithDescription("List the sections of a document in order"),
		docParam(),
	), h.listSections)
	s.AddTool(mcp.NewTool("quill_get",
		mcp.WithDescription("Read one section body"),
		docParam(),
		titleParam(),
	), h.getSection)
	s.AddTool(mcp.NewTool("quill_exists",
		mcp.WithDescription("Check whether a section exists"),
		docParam(),
		titleParam(),
	), h.sectionExists)
	s.AddTool(mcp.NewTool("quill_append",
		mcp.WithDescription("Append a new section"),
		docParam(),
		titleParam(),
		mcp.WithString("content", mcp.Description("Section body")),
		authorParam(),
		mcp.WithNumber("level", mcp.Description("Heading level 1-6 (default: 2)")),
		mcp.WithBoolean("allow_duplicate", mcp.Description("Merge into an existing section with the same title")),
		mcp.WithString("after", mcp.Description("Insert after this section instead of at the end")),
	), h.appendSection)
	s.AddTool(mcp.NewTool("quill_edit",
		mcp.WithDescription("Replace one section body under that section's lock"),
		docParam(),
		titleParam(),
		mcp.WithString("content", mcp.Required(), mcp.Description("New section body")),
		authorParam(),
	), h.editSection)
	s.AddTool(mcp.NewTool("quill_delete",
		mcp.WithDescription("Delete one section"),
		docParam(),
		titleParam(),
		authorParam(),
	), h.deleteSection)
	s.AddTool(mcp.NewTool("quill_replace",
		mcp.WithDescription("Substitute text in the preamble and section bodies; headings and metadata are untouched"),
		docParam(),
		mcp.WithString("old", mcp.Required(), mcp.Description("Text or pattern to find")),
		mcp.WithString("new", mcp.Description("Replacement text")),
		authorParam(),
		mcp.WithBoolean("regexp", mcp.Description("Treat old as a regular expression")),
		mcp.WithBoolean("ignore_case", mcp.Description("Case-insensitive matching")),
		mcp.WithBoolean("first", mcp.Description("Only the first match per section")),
	), h.replaceText)
	s.AddTool(mcp.NewTool("quill_metadata",
		mcp.WithDescription("Read the metadata block"),
		docParam(),
	), h.getMetadata)
	s.AddTool(mcp.NewTool("quill_set_metadata",
		mcp.WithDescription("Set one metadata key, or remove it with unset"),
		docParam(),
		mcp.WithString("key", mcp.Required(), mcp.Description("Metadata key")),
		mcp.WithString("value", mcp.Description("New value; tags take a comma-separated list")),
		mcp.WithBoolean("unset", mcp.Description("Remove the key")),
		authorParam(),
	), h.setMetadata)
	s.AddTool(mcp.NewTool("quill_lint",
		mcp.WithDescription("Check a document for marker, metadata and markdown problems"),
		docParam(),
	), h.lintDocument)

	// Locks
	s.AddTool(mcp.NewTool("quill_locks",
		mcp.WithDescription("List lock records on a document, stale ones included"),
		docParam(),
	), h.listLocks)
	s.AddTool(mcp.NewTool("quill_release",
		mcp.WithDescription("Force-release a stale lock. Live locks are refused."),
		docParam(),
		mcp.WithString("scope", mcp.Description("Section title (default: document lock)")),
		authorParam(),
	), h.releaseLock)
	s.AddTool(mcp.NewTool("quill_sweep",
		mcp.WithDescription("Remove stale lock records"),
		mcp.WithArray("docs", mcp.Description("Documents to sweep (default: all)"), mcp.WithStringItems()),
	), h.sweepLocks)

	// Versions
	s.AddTool(mcp.NewTool("quill_snapshot",
		mcp.WithDescription("Snapshot the document as the next version"),
		docParam(),
		authorParam(),
	), h.snapshot)
	s.AddTool(mcp.NewTool("quill_history",
		mcp.WithDescription("List snapshots, oldest first"),
		docParam(),
	), h.history)
	s.AddTool(mcp.NewTool("quill_diff",
		mcp.WithDescription("Diff two versions; 0 is the current document"),
		docParam(),
		mcp.WithNumber("version1", mcp.Description("Older version")),
		mcp.WithNumber("version2", mcp.Description("Newer version (default: current)")),
	), h.diff)
	s.AddTool(mcp.NewTool("quill_restore",
		mcp.WithDescription("Verify a snapshot and write it back as the document"),
		docParam(),
		mcp.WithNumber("version", mcp.Required(), mcp.Description("Snapshot version")),
		authorParam(),
	), h.restore)
	s.AddTool(mcp.NewTool("quill_verify",
		mcp.WithDescription("Check a snapshot against its recorded checksum"),
		docParam(),
		mcp.WithNumber("version", mcp.Required(), mcp.Description("Snapshot version")),
	), h.verify)
	s.AddTool(mcp.NewTool("quill_prune",
		mcp.WithDescription("Keep only the newest snapshots"),
		docParam(),
		mcp.WithNumber("keep", mcp.Description("Snapshots to keep (default: versions.keep)")),
		authorParam(),
	), h.prune)

	// Conversion
	s.AddTool(mcp.NewTool("quill_convert",
		mcp.WithDescription("Convert a document; falls back along the configured chain when the target fails"),
		docParam(),
		mcp.WithString("to", mcp.Required(), mcp.Description("Target format: md, html, pdf, docx or latex")),
		mcp.WithArray("fallback", mcp.Description("Override the fallback chain"), mcp.WithStringItems()),
		mcp.WithBoolean("no_fallback", mcp.Description("Attempt the target only")),
		mcp.WithBoolean("overwrite", mcp.Description("Replace an existing artifact")),
		mcp.WithNumber("priority", mcp.Description("Higher runs first when queued")),
		mcp.WithBoolean("async", mcp.Description("Return the queued task instead of waiting")),
		authorParam(),
	), h.convert)
	s.AddTool(mcp.NewTool("quill_task",
		mcp.WithDescription("Read a conversion task"),
		mcp.WithString("id", mcp.Required(), mcp.Description("Task id")),
		mcp.WithBoolean("wait", mcp.Description("Block until the task finishes")),
	), h.task)
	s.AddTool(mcp.NewTool("quill_tasks",
		mcp.WithDescription("List conversion tasks, oldest first"),
	), h.tasks)
	s.AddTool(mcp.NewTool("quill_cancel",
		mcp.WithDescription("Cancel a queued or running conversion"),
		mcp.WithString("id", mcp.Required(), mcp.Description("Task id")),
	), h.cancel)
}
