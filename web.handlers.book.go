package main

import (
	"errors"
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
)

// newBookSegment is the path segment of the creation page. It shares the
// router slot of the book id, see SetupWebRoutes.
const newBookSegment = "new"

func isWebPath(path string) bool {
	return path == "/books" || strings.HasPrefix(path, "/books/")
}

func bookPath(id string) string {
	return "/books/" + id + "/"
}

// render writes the page with the given status code. Rendering failures
// fall back to a plain 500 response.
func (api *APIHandler) render(w http.ResponseWriter, r *http.Request, status int, page string, data PageData) {
	data.RequestID = GetValueFromContext(r.Context(), RequestIDContextKey)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := r.Context().Err(); err != nil {
		w.WriteHeader(abortedStatus(err))
		return
	}
	body, err := api.pages.Render(page, data)
	if err != nil {
		api.GetLoggerFromContext(r.Context()).Error("failed to render page", zap.String("page", page), zap.Error(err))
		http.Error(w, msgServerError, http.StatusInternalServerError)
		return
	}
	w.WriteHeader(status)
	if _, err = w.Write(body); err != nil {
		api.GetLoggerFromContext(r.Context()).Error("failed to send page", zap.String("page", page), zap.Error(err))
	}
}

func (api *APIHandler) renderError(w http.ResponseWriter, r *http.Request, status int, message string) {
	api.render(w, r, status, pageError, PageData{
		Title:   http.StatusText(status),
		Status:  status,
		Message: message,
	})
}

func (api *APIHandler) renderNotFound(w http.ResponseWriter, r *http.Request) {
	api.renderError(w, r, http.StatusNotFound, "The requested page does not exist.")
}

// loadBook fetches the book named in the path. It renders the 404 or the
// 500 page itself and returns false when the page cannot be served.
func (api *APIHandler) loadBook(w http.ResponseWriter, r *http.Request, id string) (Book, bool) {
	if !api.idsHandler.IsValid(id, BookIDPrefix) {
		api.renderNotFound(w, r)
		return Book{}, false
	}
	book, err := api.bookService.GetOne(r.Context(), id)
	if errors.Is(err, ErrBookNotFound) {
		api.renderNotFound(w, r)
		return Book{}, false
	}
	if err != nil {
		api.GetLoggerFromContext(r.Context()).Error("failed to get book", zap.String("book.id", id), zap.Error(err))
		api.renderError(w, r, http.StatusInternalServerError, msgServerError)
		return Book{}, false
	}
	return book, true
}

// BookListPage shows every book ordered by creation time.
func (api *APIHandler) BookListPage(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	books, err := api.bookService.GetAll(r.Context())
	if err != nil {
		api.GetLoggerFromContext(r.Context()).Error("failed to get all books", zap.Error(err))
		api.renderError(w, r, http.StatusInternalServerError, msgServerError)
		return
	}
	api.render(w, r, http.StatusOK, pageBookList, PageData{Title: "Books", Books: books})
}

// BookDetailPage shows a single book, or the empty creation form for /books/new/.
func (api *APIHandler) BookDetailPage(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	if id == newBookSegment {
		api.renderBookForm(w, r, http.StatusOK, NewBookForm(nil, nil))
		return
	}
	book, ok := api.loadBook(w, r, id)
	if !ok {
		return
	}
	api.render(w, r, http.StatusOK, pageBookDetail, PageData{Title: book.String(), Book: &book})
}

// BookCreatePage handles the creation form submission. Only /books/new/ accepts posts.
func (api *APIHandler) BookCreatePage(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if ps.ByName("id") != newBookSegment {
		w.Header().Set("Allow", http.MethodGet)
		api.renderError(w, r, http.StatusMethodNotAllowed, "This page cannot be submitted.")
		return
	}
	if err := r.ParseForm(); err != nil {
		api.renderError(w, r, http.StatusBadRequest, "The submitted form could not be read.")
		return
	}
	form := NewBookForm(r.PostForm, nil)
	if !form.IsValid() {
		api.renderBookForm(w, r, http.StatusOK, form)
		return
	}
	book, err := form.Save(r.Context(), api.bookService)
	if err != nil {
		api.GetLoggerFromContext(r.Context()).Error("failed to create book", zap.Error(err))
		api.renderError(w, r, http.StatusInternalServerError, msgServerError)
		return
	}
	api.GetLoggerFromContext(r.Context()).Info("success to create book", zap.String("book.id", book.ID))
	http.Redirect(w, r, "/books/", http.StatusFound)
}

// BookEditPage shows the form pre-populated with the book values.
func (api *APIHandler) BookEditPage(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	book, ok := api.loadBook(w, r, ps.ByName("id"))
	if !ok {
		return
	}
	api.renderBookForm(w, r, http.StatusOK, NewBookFormFromBook(book))
}

// BookUpdatePage handles the edit form submission.
func (api *APIHandler) BookUpdatePage(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	book, ok := api.loadBook(w, r, ps.ByName("id"))
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		api.renderError(w, r, http.StatusBadRequest, "The submitted form could not be read.")
		return
	}
	form := NewBookForm(r.PostForm, &book)
	if !form.IsValid() {
		api.renderBookForm(w, r, http.StatusOK, form)
		return
	}
	updated, err := form.Save(r.Context(), api.bookService)
	if errors.Is(err, ErrBookNotFound) {
		api.renderNotFound(w, r)
		return
	}
	if err != nil {
		api.GetLoggerFromContext(r.Context()).Error("failed to update book", zap.String("book.id", book.ID), zap.Error(err))
		api.renderError(w, r, http.StatusInternalServerError, msgServerError)
		return
	}
	api.GetLoggerFromContext(r.Context()).Info("success to update book", zap.String("book.id", updated.ID))
	http.Redirect(w, r, bookPath(updated.ID), http.StatusFound)
}

// BookDeletePage asks for confirmation before deleting.
func (api *APIHandler) BookDeletePage(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	book, ok := api.loadBook(w, r, ps.ByName("id"))
	if !ok {
		return
	}
	api.render(w, r, http.StatusOK, pageBookConfirmDelete, PageData{Title: "Delete book", Book: &book})
}

// BookDeleteConfirmPage deletes the book then goes back to the list.
func (api *APIHandler) BookDeleteConfirmPage(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	if !api.idsHandler.IsValid(id, BookIDPrefix) {
		api.renderNotFound(w, r)
		return
	}
	err := api.bookService.Delete(r.Context(), id)
	if errors.Is(err, ErrBookNotFound) {
		api.renderNotFound(w, r)
		return
	}
	if err != nil {
		api.GetLoggerFromContext(r.Context()).Error("failed to delete book", zap.String("book.id", id), zap.Error(err))
		api.renderError(w, r, http.StatusInternalServerError, msgServerError)
		return
	}
	api.GetLoggerFromContext(r.Context()).Info("success to delete book", zap.String("book.id", id))
	http.Redirect(w, r, "/books/", http.StatusFound)
}

func (api *APIHandler) renderBookForm(w http.ResponseWriter, r *http.Request, status int, form *BookForm) {
	data := PageData{Title: "New book", Form: form, Fields: bookFormFields, Action: "/books/new/", Cancel: "/books/"}
	if book := form.Instance(); book != nil {
		data.Title = "Edit " + book.String()
		data.Action = bookPath(book.ID) + "edit/"
		data.Cancel = bookPath(book.ID)
	}
	api.render(w, r, status, pageBookForm, data)
}
