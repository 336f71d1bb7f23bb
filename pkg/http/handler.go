package http

import "github.com/labstack/echo/v4"

// Handler mounts its routes on the API group owned by the server.
type Handler interface {
	RegisterRoutes(g *echo.Group)
}

// Handlers mounts several handlers on one group; nil entries are skipped.
type Handlers []Handler

func (hs Handlers) RegisterRoutes(g *echo.Group) {
	for _, h := range hs {
		if h != nil {
			h.RegisterRoutes(g)
		}
	}
}
