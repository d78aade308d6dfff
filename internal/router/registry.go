package router

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Module is a feature area that mounts its routes on the /api group.
type Module interface {
	Name() string
	Register(rg *gin.RouterGroup)
}

// Registry collects modules and group-wide middleware, then mounts them in
// the order they were added.
type Registry struct {
	Engine *gin.Engine
	API    *gin.RouterGroup
	Logger *logrus.Logger

	middlewares []gin.HandlerFunc
	modules     []Module
	names       map[string]bool
}

func NewRegistry(engine *gin.Engine, logger *logrus.Logger) *Registry {
	return &Registry{
		Engine: engine,
		API:    engine.Group("/api"),
		Logger: logger,
		names:  map[string]bool{},
	}
}

func (r *Registry) Use(mw ...gin.HandlerFunc) {
	r.middlewares = append(r.middlewares, mw...)
}

// Add queues mod for registration. Adding two modules with the same name is
// a wiring bug and fails.
func (r *Registry) Add(mod Module) error {
	if r.names[mod.Name()] {
		return fmt.Errorf("router: module %q added twice", mod.Name())
	}
	r.names[mod.Name()] = true
	r.modules = append(r.modules, mod)
	return nil
}

// Modules lists the queued module names in registration order.
func (r *Registry) Modules() []string {
	out := make([]string, 0, len(r.modules))
	for _, m := range r.modules {
		out = append(out, m.Name())
	}
	return out
}

func (r *Registry) RegisterAll() {
	if len(r.middlewares) > 0 {
		r.API.Use(r.middlewares...)
	}
	for _, m := range r.modules {
		m.Register(r.API)
		if r.Logger != nil {
			r.Logger.WithField("module", m.Name()).Debug("module registered")
		}
	}
}
