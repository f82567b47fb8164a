package main

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Pages names, one template file each on top of the base layout.
const (
	pageBookList          = "book_list.html"
	pageBookDetail        = "book_detail.html"
	pageBookForm          = "book_form.html"
	pageBookConfirmDelete = "book_confirm_delete.html"
	pageError             = "error.html"
)

const msgServerError = "Something went wrong on our side. Please try again later."

// FormField describes how a book form field is rendered.
type FormField struct {
	Name  string
	Label string
	Type  string
	Hint  string
}

// bookFormFields lists the form fields in display order.
var bookFormFields = []FormField{
	{Name: FieldTitle, Label: "Title", Type: "text"},
	{Name: FieldAuthor, Label: "Author", Type: "text"},
	{Name: FieldPublicationDate, Label: "Publication date", Type: "date", Hint: "YYYY-MM-DD"},
	{Name: FieldPages, Label: "Pages", Type: "number"},
}

// PageData is the single view model passed to every page.
type PageData struct {
	Title     string
	RequestID string
	Books     []Book
	Book      *Book
	Form      *BookForm
	Fields    []FormField
	Action    string
	Cancel    string
	Status    int
	Message   string
}

// PageRenderer holds the parsed pages. Each page is parsed along with the
// base layout so they can all define the same blocks.
type PageRenderer struct {
	pages map[string]*template.Template
}

// NewPageRenderer parses the embedded templates. It panics on malformed
// templates since they are compiled into the binary.
func NewPageRenderer() *PageRenderer {
	pr := &PageRenderer{pages: make(map[string]*template.Template)}
	for _, page := range []string{pageBookList, pageBookDetail, pageBookForm, pageBookConfirmDelete, pageError} {
		pr.pages[page] = template.Must(
			template.New("base.html").ParseFS(templatesFS, "templates/base.html", "templates/"+page),
		)
	}
	return pr
}

// Render executes the page into memory so a failing template never
// sends a partial body.
func (pr *PageRenderer) Render(page string, data PageData) ([]byte, error) {
	tmpl, ok := pr.pages[page]
	if !ok {
		return nil, fmt.Errorf("page %q does not exist", page)
	}
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base.html", data); err != nil {
		return nil, fmt.Errorf("failed to render page %q: %w", page, err)
	}
	return buf.Bytes(), nil
}
