package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
)

var (
	ErrBookNotFound      = errors.New("book not found")
	ErrBookAlreadyExists = errors.New("book already exists")
)

type ContextKey string

const (
	BookIDPrefix            string     = "b"
	RequestIDPrefix         string     = "r"
	RequestIDContextKey     ContextKey = "request.id"
	RequestNumberContextKey ContextKey = "request.number"
	ConnContextKey          ContextKey = "http-conn"
)

// BookRequest is the json payload of book creation and update api requests.
type BookRequest struct {
	Title           string `json:"title"`
	Author          string `json:"author"`
	PublicationDate string `json:"publicationDate"`
	Pages           *int   `json:"pages"`
}

// Values converts the payload into form values so api and web pages share the same rules.
func (br BookRequest) Values() url.Values {
	data := url.Values{}
	data.Set(FieldTitle, br.Title)
	data.Set(FieldAuthor, br.Author)
	data.Set(FieldPublicationDate, br.PublicationDate)
	if br.Pages != nil {
		data.Set(FieldPages, strconv.Itoa(*br.Pages))
	}
	return data
}

// GetValueFromContext returns the value of a given key in the context
// if this key is not available, it returns an empty string.
func GetValueFromContext(ctx context.Context, contextKey ContextKey) string {
	if val, ok := ctx.Value(contextKey).(string); ok {
		return val
	}
	return ""
}

// GetRequestNumberFromContext returns the request number set in
// the context. if not previously set then it returns 0.
func GetRequestNumberFromContext(ctx context.Context) uint64 {
	if val, ok := ctx.Value(RequestNumberContextKey).(uint64); ok {
		return val
	}
	return 0
}

// DecodeBookRequestBody is a helper function to read the content of a book creation or update request.
func DecodeBookRequestBody(r *http.Request, book *BookRequest) error {
	if r.Body == nil || r.Body == http.NoBody {
		return errors.New("invalid book request body")
	}
	return codec.NewDecoder(r.Body).Decode(book)
}

// GetRequestSourceIP helps find the source IP of the caller.
func GetRequestSourceIP(r *http.Request) string {
	// Get IP from the X-REAL-IP header
	ip := r.Header.Get("X-REAL-IP")
	netIP := net.ParseIP(ip)
	if netIP != nil {
		return ip
	}

	// Get IP from X-FORWARDED-FOR header
	ips := r.Header.Get("X-FORWARDED-FOR")
	for _, ip := range strings.Split(ips, ",") {
		ip = strings.TrimSpace(ip)
		if net.ParseIP(ip) != nil {
			return ip
		}
	}

	// Get IP from RemoteAddr
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return ""
	}
	if net.ParseIP(ip) != nil {
		return ip
	}
	return ""
}

// GetRequestClientIP returns the ip of the peer connected to the server. The
// forwarding headers are only read when that peer is a trusted proxy.
func GetRequestClientIP(r *http.Request, trustedProxies map[string]struct{}) string {
	peer, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		peer = r.RemoteAddr
	}
	if _, ok := trustedProxies[peer]; !ok {
		return peer
	}

	if ip := strings.TrimSpace(r.Header.Get("X-REAL-IP")); net.ParseIP(ip) != nil {
		return ip
	}

	// rightmost entry not appended by one of our proxies.
	ips := strings.Split(r.Header.Get("X-FORWARDED-FOR"), ",")
	for i := len(ips) - 1; i >= 0; i-- {
		ip := strings.TrimSpace(ips[i])
		if net.ParseIP(ip) == nil {
			break
		}
		if _, ok := trustedProxies[ip]; !ok {
			return ip
		}
	}
	return peer
}

// IsAppRunningInDocker checks the existence of the .dockerenv
// file at the root directory and returns a boolean result. This
// helps know if the App is running in a docker container or not.
func IsAppRunningInDocker() bool {
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}
	return false
}

// SaveConnInContext is the hook used by the server under ConnContext.
// It sets the underlying connection into the request context for later
// use by ReadDeadline or WriteDeadline method on *CustomResponseWriter.
func SaveConnInContext(ctx context.Context, c net.Conn) context.Context {
	return context.WithValue(ctx, ConnContextKey, c)
}

// GetConnFromContext returns the connection saved into the context or nil.
func GetConnFromContext(ctx context.Context) net.Conn {
	c, _ := ctx.Value(ConnContextKey).(net.Conn)
	return c
}
