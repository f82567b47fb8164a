package main

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
)

// Index sends visitors to the books list page.
func (api *APIHandler) Index(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	http.Redirect(w, r, "/books/", http.StatusSeeOther)
}

// Status provides basics details about the application to the public users.
//
//	@Summary	Service status
//	@Tags		status
//	@Produce	json
//	@Success	200	{object}	StatusResponse
//	@Router		/status [get]
func (api *APIHandler) Status(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	requestID := GetValueFromContext(r.Context(), RequestIDContextKey)
	resp := StatusResponse{
		RequestID: requestID,
		Status:    fmt.Sprintf("up & running since %.0f mins", api.clock.Now().Sub(api.stats.started).Minutes()),
		Message:   "Hello. Books catalog is available. Enjoy :)",
	}
	if err := WriteJSON(r.Context(), w, http.StatusOK, resp); err != nil {
		api.GetLoggerFromContext(r.Context()).Error("failed to send status response", zap.Error(err))
	}
}

// sendError logs the failure then writes the json error envelope.
func (api *APIHandler) sendError(w http.ResponseWriter, r *http.Request, status int, message string, data interface{}, err error) {
	logger := api.GetLoggerFromContext(r.Context())
	requestID := GetValueFromContext(r.Context(), RequestIDContextKey)
	if status >= http.StatusInternalServerError {
		logger.Error(message, zap.Error(err))
	} else {
		logger.Warn(message, zap.Error(err))
	}
	if werr := WriteErrorResponse(r.Context(), w, NewAPIError(requestID, status, message, data)); werr != nil {
		logger.Error("failed to send error response", zap.Error(werr))
	}
}

// send writes the json success envelope.
func (api *APIHandler) send(w http.ResponseWriter, r *http.Request, status int, message string, total *int, data interface{}) {
	requestID := GetValueFromContext(r.Context(), RequestIDContextKey)
	if err := WriteResponse(r.Context(), w, GenericResponse(requestID, status, message, total, data)); err != nil {
		api.GetLoggerFromContext(r.Context()).Error("failed to send response", zap.Error(err))
	}
}

// CreateBook validates the payload and stores a new book.
//
//	@Summary	Create a book
//	@Tags		books
//	@Accept		json
//	@Produce	json
//	@Param		book	body		BookRequest	true	"book fields"
//	@Success	201		{object}	APIResponse{data=Book}
//	@Failure	400		{object}	APIError{data=FieldErrors}
//	@Failure	500		{object}	APIError
//	@Router		/v1/books [post]
func (api *APIHandler) CreateBook(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req BookRequest
	if err := DecodeBookRequestBody(r, &req); err != nil {
		api.sendError(w, r, http.StatusBadRequest, "failed to read the book request", EmptyData, err)
		return
	}

	form := NewBookForm(req.Values(), nil)
	if !form.IsValid() {
		api.sendError(w, r, http.StatusBadRequest, "invalid book data", form.Errors(), form.Errors())
		return
	}

	book, err := form.Save(r.Context(), api.bookService)
	if err != nil {
		api.sendError(w, r, http.StatusInternalServerError, "failed to create the book", EmptyData, err)
		return
	}
	api.GetLoggerFromContext(r.Context()).Info("success to create book", zap.String("book.id", book.ID))
	api.send(w, r, http.StatusCreated, "Book created successfully.", nil, book)
}

// GetAllBooks lists all books ordered by creation time.
//
//	@Summary	List books
//	@Tags		books
//	@Produce	json
//	@Success	200	{object}	APIResponse{data=[]Book}
//	@Failure	500	{object}	APIError
//	@Router		/v1/books [get]
func (api *APIHandler) GetAllBooks(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	logger := api.GetLoggerFromContext(r.Context())
	// the whole catalog may take longer to send than a single record.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Now().Add(api.config.Server.LongRequestWriteTimeout)); err != nil {
		logger.Debug("http: failed to update the write deadline", zap.Error(err))
	}

	books, err := api.bookService.GetAll(r.Context())
	if err != nil {
		api.sendError(w, r, http.StatusInternalServerError, "failed to get all books", EmptyData, err)
		return
	}
	logger.Info("success to get all books")
	total := len(books)
	api.send(w, r, http.StatusOK, "All books fetched successfully.", &total, books)
}

// validBookID checks the id path parameter and sends the 400 response when it is malformed.
func (api *APIHandler) validBookID(w http.ResponseWriter, r *http.Request, id string) bool {
	if api.idsHandler.IsValid(id, BookIDPrefix) {
		return true
	}
	api.sendError(w, r, http.StatusBadRequest, "book id provided is not valid", EmptyData, fmt.Errorf("invalid book id %q", id))
	return false
}

// GetOneBook fetches a single book.
//
//	@Summary	Get a book
//	@Tags		books
//	@Produce	json
//	@Param		id	path		string	true	"book id"
//	@Success	200	{object}	APIResponse{data=Book}
//	@Failure	400	{object}	APIError
//	@Failure	404	{object}	APIError
//	@Router		/v1/books/{id} [get]
func (api *APIHandler) GetOneBook(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	if !api.validBookID(w, r, id) {
		return
	}
	book, err := api.bookService.GetOne(r.Context(), id)
	if errors.Is(err, ErrBookNotFound) {
		api.sendError(w, r, http.StatusNotFound, "book does not exist", EmptyData, err)
		return
	}
	if err != nil {
		api.sendError(w, r, http.StatusInternalServerError, "failed to get the book", EmptyData, err)
		return
	}
	api.GetLoggerFromContext(r.Context()).Info("success to get book", zap.String("book.id", id))
	api.send(w, r, http.StatusOK, "Book fetched successfully.", nil, book)
}

// UpdateBook replaces the four editable fields of an existing book.
//
//	@Summary	Update a book
//	@Tags		books
//	@Accept		json
//	@Produce	json
//	@Param		id		path		string		true	"book id"
//	@Param		book	body		BookRequest	true	"book fields"
//	@Success	200		{object}	APIResponse{data=Book}
//	@Failure	400		{object}	APIError
//	@Failure	404		{object}	APIError
//	@Router		/v1/books/{id} [put]
func (api *APIHandler) UpdateBook(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	if !api.validBookID(w, r, id) {
		return
	}
	var req BookRequest
	if err := DecodeBookRequestBody(r, &req); err != nil {
		api.sendError(w, r, http.StatusBadRequest, "failed to read the book request", EmptyData, err)
		return
	}

	current, err := api.bookService.GetOne(r.Context(), id)
	if errors.Is(err, ErrBookNotFound) {
		api.sendError(w, r, http.StatusNotFound, "book does not exist", EmptyData, err)
		return
	}
	if err != nil {
		api.sendError(w, r, http.StatusInternalServerError, "failed to update the book", EmptyData, err)
		return
	}

	form := NewBookForm(req.Values(), &current)
	if !form.IsValid() {
		api.sendError(w, r, http.StatusBadRequest, "invalid book data", form.Errors(), form.Errors())
		return
	}
	book, err := form.Save(r.Context(), api.bookService)
	if errors.Is(err, ErrBookNotFound) {
		api.sendError(w, r, http.StatusNotFound, "book does not exist", EmptyData, err)
		return
	}
	if err != nil {
		api.sendError(w, r, http.StatusInternalServerError, "failed to update the book", EmptyData, err)
		return
	}
	api.GetLoggerFromContext(r.Context()).Info("success to update book", zap.String("book.id", id))
	api.send(w, r, http.StatusOK, "Book updated successfully.", nil, book)
}

// DeleteOneBook removes a book and returns its last known values.
//
//	@Summary	Delete a book
//	@Tags		books
//	@Produce	json
//	@Param		id	path		string	true	"book id"
//	@Success	200	{object}	APIResponse{data=Book}
//	@Failure	400	{object}	APIError
//	@Failure	404	{object}	APIError
//	@Router		/v1/books/{id} [delete]
func (api *APIHandler) DeleteOneBook(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	if !api.validBookID(w, r, id) {
		return
	}
	book, err := api.bookService.GetOne(r.Context(), id)
	if err == nil {
		err = api.bookService.Delete(r.Context(), id)
	}
	if errors.Is(err, ErrBookNotFound) {
		api.sendError(w, r, http.StatusNotFound, "book does not exist", EmptyData, err)
		return
	}
	if err != nil {
		api.sendError(w, r, http.StatusInternalServerError, "failed to delete the book", EmptyData, err)
		return
	}
	api.GetLoggerFromContext(r.Context()).Info("success to delete book", zap.String("book.id", id))
	api.send(w, r, http.StatusOK, "Book deleted successfully.", nil, book)
}
