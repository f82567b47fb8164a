package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Book form fields names.
const (
	FieldTitle           = "title"
	FieldAuthor          = "author"
	FieldPublicationDate = "publication_date"
	FieldPages           = "pages"
)

// MaxTextLength is the maximum number of characters of title and author.
const MaxTextLength = 20

// MaxPages is the largest number of pages a book may have. It matches the
// range of the pages column of the postgres storage.
const MaxPages = 2147483647

const (
	msgRequired      = "This field is required."
	msgInvalidDate   = "Enter a valid date."
	msgInvalidNumber = "Enter a whole number."
	msgNullCharacter = "Null characters are not allowed."
)

var ErrInvalidForm = errors.New("book form is not valid")

// dateInputLayouts lists accepted publication date inputs in order of preference.
// Month and day accept one or two digits.
var dateInputLayouts = []string{"2006-1-2", "1/2/2006", "1/2/06"}

var fieldValidator = validator.New()

// FieldErrors maps a form field name to the list of its validation messages.
type FieldErrors map[string][]string

// Add appends a message to the list of errors of the given field.
func (fe FieldErrors) Add(field, message string) {
	fe[field] = append(fe[field], message)
}

// Has reports whether the field has at least one error.
func (fe FieldErrors) Has(field string) bool {
	return len(fe[field]) > 0
}

// Error implements the error interface with fields sorted by name.
func (fe FieldErrors) Error() string {
	fields := make([]string, 0, len(fe))
	for field := range fe {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, field+": "+strings.Join(fe[field], " "))
	}
	return strings.Join(parts, "; ")
}

// ValidateBook checks every field of the raw input independently and returns either
// the cleaned book or the complete collection of fields errors. It has no side effects.
func ValidateBook(data url.Values) (Book, FieldErrors) {
	errs := FieldErrors{}
	book := Book{
		Title:           cleanText(data, FieldTitle, errs),
		Author:          cleanText(data, FieldAuthor, errs),
		PublicationDate: cleanDate(data, errs),
		Pages:           cleanPages(data, errs),
	}
	if len(errs) != 0 {
		return Book{}, errs
	}
	return book, nil
}

func cleanText(data url.Values, field string, errs FieldErrors) string {
	value := strings.TrimSpace(data.Get(field))
	if !checkRule(errs, field, value, "required") {
		return value
	}
	checkRule(errs, field, value, "max="+strconv.Itoa(MaxTextLength))
	checkRule(errs, field, value, "excludesrune=\x00")
	return value
}

func cleanDate(data url.Values, errs FieldErrors) time.Time {
	raw := strings.TrimSpace(data.Get(FieldPublicationDate))
	if !checkRule(errs, FieldPublicationDate, raw, "required") {
		return time.Time{}
	}
	for _, layout := range dateInputLayouts {
		// year 0 does not exist on the calendar.
		if date, err := time.Parse(layout, raw); err == nil && date.Year() > 0 {
			return date
		}
	}
	errs.Add(FieldPublicationDate, msgInvalidDate)
	return time.Time{}
}

func cleanPages(data url.Values, errs FieldErrors) int {
	raw := strings.TrimSpace(data.Get(FieldPages))
	if !checkRule(errs, FieldPages, raw, "required") {
		return 0
	}
	pages, err := strconv.Atoi(raw)
	if err != nil {
		errs.Add(FieldPages, msgInvalidNumber)
		return 0
	}
	checkRule(errs, FieldPages, pages, "min=0,max="+strconv.Itoa(MaxPages))
	return pages
}

// checkRule runs the validator tag against the value and records the
// translated failure under field. It reports whether the value passed.
func checkRule(errs FieldErrors, field string, value interface{}, tag string) bool {
	var verrs validator.ValidationErrors
	if err := fieldValidator.Var(value, tag); !errors.As(err, &verrs) {
		return true
	}
	for _, fe := range verrs {
		errs.Add(field, ruleMessage(fe))
	}
	return false
}

func ruleMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return msgRequired
	case "max":
		if fe.Kind() != reflect.String {
			return fmt.Sprintf("Ensure this value is less than or equal to %s.", fe.Param())
		}
		s, _ := fe.Value().(string)
		return fmt.Sprintf("Ensure this value has at most %s characters (it has %d).", fe.Param(), len([]rune(s)))
	case "excludesrune":
		return msgNullCharacter
	case "min":
		return fmt.Sprintf("Ensure this value is greater than or equal to %s.", fe.Param())
	default:
		return fmt.Sprintf("Failed on the %s rule.", fe.Tag())
	}
}

// BookForm maps untrusted input onto a Book. A form without data renders empty
// and never reports errors. A form bound to an existing book updates it on Save.
type BookForm struct {
	data      url.Values
	submitted bool
	instance  *Book
	validated bool
	cleaned   Book
	errors    FieldErrors
}

// NewBookForm provides a form filled with submitted data. Pass a nil instance
// for creation and the stored book for update.
func NewBookForm(data url.Values, instance *Book) *BookForm {
	f := &BookForm{data: data, submitted: data != nil, instance: instance}
	if f.data == nil {
		f.data = url.Values{}
	}
	return f
}

// NewBookFormFromBook provides an unsubmitted form bound to the book and
// pre-populated with its current values.
func NewBookFormFromBook(book Book) *BookForm {
	data := url.Values{}
	data.Set(FieldTitle, book.Title)
	data.Set(FieldAuthor, book.Author)
	data.Set(FieldPublicationDate, book.PublishedOn())
	data.Set(FieldPages, strconv.Itoa(book.Pages))
	return &BookForm{data: data, instance: &book}
}

// Instance returns the book the form is bound to, or nil.
func (f *BookForm) Instance() *Book {
	return f.instance
}

// Value returns the raw input of a field, used to re-render the form.
func (f *BookForm) Value(field string) string {
	return f.data.Get(field)
}

func (f *BookForm) validate() {
	if f.validated || !f.submitted {
		return
	}
	f.cleaned, f.errors = ValidateBook(f.data)
	f.validated = true
}

// IsValid reports whether submitted data passed all fields rules.
func (f *BookForm) IsValid() bool {
	f.validate()
	return f.submitted && len(f.errors) == 0
}

// Errors returns the fields errors of submitted data.
func (f *BookForm) Errors() FieldErrors {
	f.validate()
	if f.errors == nil {
		return FieldErrors{}
	}
	return f.errors
}

// FieldErrors returns the errors messages of a single field.
func (f *BookForm) FieldErrors(field string) []string {
	return f.Errors()[field]
}

// Cleaned returns the validated book values, not yet persisted.
func (f *BookForm) Cleaned() Book {
	f.validate()
	return f.cleaned
}

// Save persists the validated book: inserted when the form is unbound, otherwise
// it overwrites the bound record. Nothing is written if the form is not valid.
func (f *BookForm) Save(ctx context.Context, bs BookServiceProvider) (Book, error) {
	if !f.IsValid() {
		return Book{}, ErrInvalidForm
	}
	if f.instance == nil {
		return bs.Add(ctx, f.cleaned)
	}
	return bs.Update(ctx, f.instance.ID, f.cleaned)
}
