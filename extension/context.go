// context.go defines the Context interface for extension access to quill
// internals.
//
// Extensions receive Context during Init(), not at construction, because
// they register before the workspace has been discovered.

package extension

import (
	"github.com/jpl-au/quill/internal/config"
	"github.com/jpl-au/quill/internal/service"
)

// Context provides extensions controlled access to quill internals.
type Context interface {
	// Service returns the document service.
	Service() service.Service

	// Config returns the configuration the service was opened with.
	Config() *config.Config
}

// extContext implements Context.
type extContext struct {
	svc service.Service
	cfg *config.Config
}

// NewContext creates a new extension context.
func NewContext(svc service.Service, cfg *config.Config) Context {
	return &extContext{svc: svc, cfg: cfg}
}

func (c *extContext) Service() service.Service { return c.svc }

func (c *extContext) Config() *config.Config { return c.cfg }
