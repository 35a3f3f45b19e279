// Package all imports all built-in quill extensions.
// Import this package to register all built-in commands.
package all

import (
	// Core extensions - each registers itself via init()
	_ "github.com/jpl-au/quill/extension/convert"
	_ "github.com/jpl-au/quill/extension/core"
	_ "github.com/jpl-au/quill/extension/document"
	_ "github.com/jpl-au/quill/extension/edit"
	_ "github.com/jpl-au/quill/extension/lock"
	_ "github.com/jpl-au/quill/extension/search"
	_ "github.com/jpl-au/quill/extension/snapshot"
	_ "github.com/jpl-au/quill/extension/tag"
)
