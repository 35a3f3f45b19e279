// flags.go defines constants for all CLI flag names.
//
// Naming convention: Flag<PascalCaseName> where name matches the kebab-case
// CLI flag (e.g., "dry-run" -> FlagDryRun).

package extension

// Flag name constants for CLI commands.
const (
	// Boolean flags

	FlagAllowDuplicate = "allow-duplicate"    // Merge into an existing section
	FlagCount          = "count"              // Only print match counts
	FlagDryRun         = "dry-run"            // Preview without making changes
	FlagFailed         = "failed"             // Failed entries only
	FlagFilesWithMatch = "files-with-matches" // Only print matching document ids
	FlagFlat           = "flat"               // Flatten directory structure
	FlagIgnoreCase     = "ignore-case"        // Case-insensitive matching
	FlagIncludeHidden  = "include-hidden"     // Include hidden files/directories
	FlagInPlace        = "in-place"           // Edit in place (required for sed)
	FlagInvertMatch    = "invert-match"       // Select non-matching lines
	FlagLocal          = "local"              // Use local scope (gitignored)
	FlagNoFallback     = "no-fallback"        // Attempt the target format only
	FlagOverwrite      = "overwrite"          // Replace existing output
	FlagRaw            = "raw"                // Raw output without formatting
	FlagRegexp         = "regexp"             // Treat the pattern as a regular expression
	FlagStale          = "stale"              // Stale locks only
	FlagTree           = "tree"               // Tree output
	FlagUnset          = "unset"              // Remove a metadata key

	// String flags

	FlagAddr     = "addr"     // HTTP listen address
	FlagAfter    = "after"    // Insert after this section
	FlagDate     = "date"     // Metadata date
	FlagDoc      = "doc"      // Document filter
	FlagFallback = "fallback" // Comma-separated fallback formats
	FlagFile     = "file"     // Read content from a file ("-" for stdin)
	FlagGlob     = "glob"     // Document id pattern
	FlagMeta     = "meta"     // key=value metadata entries
	FlagNew      = "new"      // New text for replacement
	FlagOld      = "old"      // Old text to find
	FlagPrefix   = "prefix"   // Target path prefix
	FlagScope    = "scope"    // Lock scope (section title)
	FlagSection  = "section"  // Restrict to one section
	FlagSince    = "since"    // Age filter
	FlagStatus   = "status"   // Metadata status
	FlagTags     = "tags"     // Comma-separated tags
	FlagTitle    = "title"    // Metadata title
	FlagTo       = "to"       // Target format

	// Integer flags

	FlagContext  = "context"  // Lines of context around matches
	FlagKeep     = "keep"     // Snapshots to retain
	FlagLevel    = "level"    // Heading level
	FlagLimit    = "limit"    // Limit number of results
	FlagPriority = "priority" // Conversion priority
	FlagVersion  = "version"  // Specific version number
)
