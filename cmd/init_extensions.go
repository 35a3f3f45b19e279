/*
Copyright © 2026 James Lawson (jpl-au) <hello@caelisco.net>
*/

// init_extensions.go handles extension initialisation and command registration.
//
// Extensions register during init() but aren't initialised until the first
// command that needs a workspace runs. The service is created once and
// shared across all extensions via the Context.

package cmd

import (
	"fmt"
	"sync"

	"github.com/jpl-au/quill/extension"
	"github.com/jpl-au/quill/internal/document"
	"github.com/jpl-au/quill/internal/log"
)

// noStoreCommands lists commands that bypass automatic service initialisation.
// Built dynamically from bootstrap commands plus extension-declared storeless commands.
var noStoreCommands map[string]bool

// authorRequiredCommands lists commands that need an author for document
// metadata.
var authorRequiredCommands = map[string]bool{
	"create": true,
}

// buildNoStoreCommands creates the set of commands that skip service
// initialisation.
//
//  1. Bootstrap commands (init, guide, config) help users set up or learn
//     about quill before a workspace exists.
//
//  2. Extension-declared storeless commands manage their own service
//     lifecycle (serve, api) or never touch documents (version, log).
//
// When adding a new command: If it's a core bootstrap command, add it here.
// Otherwise, implement extension.Storeless in your extension.
func buildNoStoreCommands() map[string]bool {
	cmds := map[string]bool{
		"init":   true,
		"guide":  true,
		"config": true,
		"help":   true,
	}

	for _, ext := range extension.All() {
		if s, ok := ext.(extension.Storeless); ok {
			for _, name := range s.NoStoreCommands() {
				cmds[name] = true
			}
		}
	}

	return cmds
}

var (
	extContext extension.Context
	extService *document.Service
	initOnce   sync.Once
	initErr    error
)

// initExtensions opens the document service and injects it into extensions.
// sync.Once guarantees one service per process: it owns the conversion
// workers, and Execute closes it on exit.
func initExtensions() error {
	initOnce.Do(func() {
		svc, err := document.New(Dir())
		if err != nil {
			initErr = fmt.Errorf("opening workspace: %w", err)
			return
		}
		extService = svc

		log.SetProject(svc.Root())

		extContext = extension.NewContext(svc, svc.Config())

		for _, ext := range extension.All() {
			if init, ok := ext.(extension.Initializable); ok {
				if err := init.Init(extContext); err != nil {
					initErr = fmt.Errorf("init extension %s: %w", ext.Name(), err)
					return
				}
			}
		}
	})
	return initErr
}

var extensionsOnce sync.Once

// registerExtensions adds commands from all registered extensions.
// Called once before Execute runs.
func registerExtensions() {
	extensionsOnce.Do(func() {
		for _, ext := range extension.All() {
			for _, cmd := range ext.Commands() {
				rootCmd.AddCommand(cmd)
			}
		}

		noStoreCommands = buildNoStoreCommands()
	})
}
