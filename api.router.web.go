package main

import (
	"github.com/julienschmidt/httprouter"
)

// SetupWebRoutes injects the html pages. The router does not allow a static
// segment next to a wildcard one, so /books/new/ is served by the handlers
// of /books/:id/ which check for the "new" id first.
func (api *APIHandler) SetupWebRoutes(router *httprouter.Router, m *MiddlewareMap) *httprouter.Router {
	router.GET("/", m.public(api.Index))
	router.GET("/books/", m.public(api.BookListPage))
	router.GET("/books/:id/", m.public(api.BookDetailPage))
	router.POST("/books/:id/", m.public(api.BookCreatePage))
	router.GET("/books/:id/edit/", m.public(api.BookEditPage))
	router.POST("/books/:id/edit/", m.public(api.BookUpdatePage))
	router.GET("/books/:id/delete/", m.public(api.BookDeletePage))
	router.POST("/books/:id/delete/", m.public(api.BookDeleteConfirmPage))
	return router
}
