package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestRouter wires every route of the api behind the real middlewares stacks.
func newTestRouter(api *APIHandler) *httprouter.Router {
	public, ops := api.MiddlewaresStacks()
	return api.SetupRoutes(httprouter.New(), &MiddlewareMap{public: public.Chain, ops: ops.Chain})
}

func getPage(router http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func postForm(router http.Handler, path string, data url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(data.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestBookListPage(t *testing.T) {
	bs := newTestBookService(newMemoryBookStorage())
	router := newTestRouter(newTestAPIHandler(bs, NewIDsHandler()))

	t.Run("empty catalog", func(t *testing.T) {
		w := getPage(router, "/books/")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))
		assert.Contains(t, w.Body.String(), "No books yet.")
		assert.Contains(t, w.Body.String(), `href="/books/new/"`)
	})

	t.Run("listed books link to their page", func(t *testing.T) {
		book, err := bs.Add(context.Background(), Book{Title: "Dune & Co", Author: "Frank Herbert", Pages: 412})
		require.NoError(t, err)
		w := getPage(router, "/books/")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `href="/books/`+book.ID+`/"`)
		assert.Contains(t, w.Body.String(), "Dune &amp; Co")
		assert.NotContains(t, w.Body.String(), "No books yet.")
	})

	t.Run("missing trailing slash redirects", func(t *testing.T) {
		w := getPage(router, "/books")
		assert.Equal(t, http.StatusMovedPermanently, w.Code)
		assert.Equal(t, "/books/", w.Header().Get("Location"))
	})
}

func TestBookCreatePage(t *testing.T) {
	storage := newMemoryBookStorage()
	router := newTestRouter(newTestAPIHandler(newTestBookService(storage), NewIDsHandler()))

	t.Run("empty form", func(t *testing.T) {
		w := getPage(router, "/books/new/")
		assert.Equal(t, http.StatusOK, w.Code)
		body := w.Body.String()
		for _, field := range []string{FieldTitle, FieldAuthor, FieldPublicationDate, FieldPages} {
			assert.Contains(t, body, `id="id_`+field+`"`)
		}
		assert.Contains(t, body, `action="/books/new/"`)
		assert.NotContains(t, body, `<ul class="errorlist">`)
	})

	t.Run("invalid submission re-renders the form", func(t *testing.T) {
		w := postForm(router, "/books/new/", bookValues("", "Valid Author", "2023-07-02", "200"))
		assert.Equal(t, http.StatusOK, w.Code)
		body := w.Body.String()
		assert.Contains(t, body, `<ul class="errorlist">`)
		assert.Contains(t, body, "This field is required.")
		assert.Contains(t, body, `value="Valid Author"`)
		assert.Equal(t, 0, storage.count())
	})

	t.Run("valid submission redirects to the list", func(t *testing.T) {
		w := postForm(router, "/books/new/", bookValues("New Book", "New Author", "2023-07-02", "100"))
		assert.Equal(t, http.StatusFound, w.Code)
		assert.Equal(t, "/books/", w.Header().Get("Location"))
		assert.Equal(t, 1, storage.count())

		list := getPage(router, "/books/")
		assert.Contains(t, list.Body.String(), "New Book")
	})

	t.Run("posting to a book page is not allowed", func(t *testing.T) {
		w := postForm(router, "/books/b:cb8f2136-fae4-4200-85d9-3533c7f8c70d/", bookValues("A", "B", "2023-07-02", "1"))
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
		assert.Equal(t, http.MethodGet, w.Header().Get("Allow"))
		assert.Equal(t, 1, storage.count())
	})
}

func TestBookDetailPage(t *testing.T) {
	bs := newTestBookService(newMemoryBookStorage())
	book, err := bs.Add(context.Background(), Book{Title: "Dune", Author: "Frank Herbert", Pages: 412})
	require.NoError(t, err)
	router := newTestRouter(newTestAPIHandler(bs, NewIDsHandler()))

	testCases := []struct {
		name     string
		path     string
		status   int
		contains string
	}{
		{"existing book", "/books/" + book.ID + "/", http.StatusOK, "Frank Herbert"},
		{"missing book", "/books/b:cb8f2136-fae4-4200-85d9-3533c7f8c70d/", http.StatusNotFound, "The requested page does not exist."},
		{"malformed id", "/books/42/", http.StatusNotFound, "The requested page does not exist."},
		{"unknown page", "/books/" + book.ID + "/history/", http.StatusNotFound, "The requested page does not exist."},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := getPage(router, tc.path)
			assert.Equal(t, tc.status, w.Code)
			assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))
			assert.Contains(t, w.Body.String(), tc.contains)
		})
	}
}

func TestBookEditPage(t *testing.T) {
	bs := newTestBookService(newMemoryBookStorage())
	book, err := bs.Add(context.Background(), Book{Title: "Dune", Author: "Frank Herbert", Pages: 412})
	require.NoError(t, err)
	router := newTestRouter(newTestAPIHandler(bs, NewIDsHandler()))
	editPath := "/books/" + book.ID + "/edit/"

	t.Run("form is pre-populated", func(t *testing.T) {
		w := getPage(router, editPath)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `value="Dune"`)
		assert.Contains(t, w.Body.String(), `value="412"`)
		assert.Contains(t, w.Body.String(), `action="`+editPath+`"`)
	})

	t.Run("invalid submission keeps the record", func(t *testing.T) {
		w := postForm(router, editPath, bookValues("Dune", "Frank Herbert", "1965-08-01", "-3"))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "Ensure this value is greater than or equal to 0.")
		stored, err := bs.GetOne(context.Background(), book.ID)
		require.NoError(t, err)
		assert.Equal(t, 412, stored.Pages)
	})

	t.Run("valid submission redirects to the book", func(t *testing.T) {
		w := postForm(router, editPath, bookValues("Dune Messiah", "Frank Herbert", "1969-10-15", "256"))
		assert.Equal(t, http.StatusFound, w.Code)
		assert.Equal(t, "/books/"+book.ID+"/", w.Header().Get("Location"))
		stored, err := bs.GetOne(context.Background(), book.ID)
		require.NoError(t, err)
		assert.Equal(t, "Dune Messiah", stored.Title)
		assert.Equal(t, 256, stored.Pages)
	})

	t.Run("missing book", func(t *testing.T) {
		w := getPage(router, "/books/b:cb8f2136-fae4-4200-85d9-3533c7f8c70d/edit/")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestBookDeletePages(t *testing.T) {
	storage := newMemoryBookStorage()
	bs := newTestBookService(storage)
	book, err := bs.Add(context.Background(), Book{Title: "Dune", Author: "Frank Herbert", Pages: 412})
	require.NoError(t, err)
	router := newTestRouter(newTestAPIHandler(bs, NewIDsHandler()))
	deletePath := "/books/" + book.ID + "/delete/"

	w := getPage(router, deletePath)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `Are you sure you want to delete "Dune"?`)
	assert.Equal(t, 1, storage.count())

	w = postForm(router, deletePath, url.Values{})
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/books/", w.Header().Get("Location"))
	assert.Equal(t, 0, storage.count())

	w = postForm(router, deletePath, url.Values{})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// TestWebPages_StorageFailure ensures storage errors end on the 500 page.
func TestWebPages_StorageFailure(t *testing.T) {
	failure := errors.New("storage failure")
	mockRepo := &MockBookStorage{
		GetAllFunc: func(ctx context.Context) ([]Book, error) {
			return nil, failure
		},
		GetOneFunc: func(ctx context.Context, id string) (Book, error) {
			return Book{}, failure
		},
		AddFunc: func(ctx context.Context, id string, book Book) error {
			return failure
		},
	}
	router := newTestRouter(newTestAPIHandler(newTestBookService(mockRepo), NewIDsHandler()))

	for _, w := range []*httptest.ResponseRecorder{
		getPage(router, "/books/"),
		getPage(router, "/books/b:cb8f2136-fae4-4200-85d9-3533c7f8c70d/"),
		postForm(router, "/books/new/", bookValues("New Book", "New Author", "2023-07-02", "100")),
	} {
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Contains(t, w.Body.String(), msgServerError)
	}
}
