package main

import (
	"github.com/julienschmidt/httprouter"
	httpswagger "github.com/swaggo/http-swagger/v2"

	_ "github.com/jeamon/demo-books/docs" // swagger spec registration
)

// MiddlewareMap contains the middlewares chains to
// use for public-facing and ops requests.
type MiddlewareMap struct {
	public func(httprouter.Handle) httprouter.Handle
	ops    func(httprouter.Handle) httprouter.Handle
}

// SetupRoutes registers the web pages, the json api, the api docs
// and, when enabled, the ops endpoints.
func (api *APIHandler) SetupRoutes(router *httprouter.Router, m *MiddlewareMap) *httprouter.Router {
	router.RedirectTrailingSlash = true
	router.NotFound = wrapNotFound(api.NotFound(), m.public)

	api.SetupWebRoutes(router, m)
	api.SetupBookRoutes(router, m)
	router.GET("/swagger/*any", m.public(OpsHandlerWrapper(httpswagger.WrapHandler)))

	if api.config.OpsEndpointsEnable {
		api.SetupOpsRoutes(router, m)
	}
	return router
}
