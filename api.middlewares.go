package main

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// MiddlewareFunc is a custom type for ease of use.
type MiddlewareFunc func(httprouter.Handle) httprouter.Handle

// Middlewares is a stack of middleware functions used to build a single chain.
type Middlewares []MiddlewareFunc

// Chain wraps the handle with the middlewares. The first one of the stack is
// the first to run.
func (m *Middlewares) Chain(h httprouter.Handle) httprouter.Handle {
	handle := h
	for i := len(*m) - 1; i >= 0; i-- {
		handle = (*m)[i](handle)
	}
	return handle
}

// MiddlewaresStacks builds the public and the ops middlewares stacks.
func (api *APIHandler) MiddlewaresStacks() (*Middlewares, *Middlewares) {
	public := &Middlewares{
		api.RequestIDMiddleware,
		api.RequestsCounterMiddleware,
		api.StatsMiddleware,
		api.CoreMiddleware,
		api.PanicRecoveryMiddleware,
		CORSMiddleware,
		api.MaintenanceModeMiddleware,
	}
	if api.config != nil && api.config.RateLimit.Enable {
		limiter := newIPRateLimiter(rate.Limit(api.config.RateLimit.Rate), api.config.RateLimit.Burst, api.clock, api.config.RateLimit.TrustedProxies)
		*public = append(*public, api.RateLimitMiddleware(limiter))
	}

	ops := &Middlewares{
		api.RequestIDMiddleware,
		api.RequestsCounterMiddleware,
		api.StatsMiddleware,
		api.CoreMiddleware,
		api.PanicRecoveryMiddleware,
	}
	return public, ops
}

// RequestIDMiddleware generates and adds a unique id to the request context.
func (api *APIHandler) RequestIDMiddleware(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		requestID := api.idsHandler.Generate(RequestIDPrefix)
		w.Header().Set("X-Request-ID", requestID)
		ctx := context.WithValue(r.Context(), RequestIDContextKey, requestID)
		next(w, r.WithContext(ctx), ps)
	}
}

// RequestsCounterMiddleware increments the number of received requests and adds
// the new value to the request context to be logged as `request.num`.
func (api *APIHandler) RequestsCounterMiddleware(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		ctx := context.WithValue(r.Context(), RequestNumberContextKey, atomic.AddUint64(&api.stats.called, 1))
		next(w, r.WithContext(ctx), ps)
	}
}

// StatsMiddleware records the status code of every response sent.
func (api *APIHandler) StatsMiddleware(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		cw := NewCustomResponseWriter(w, GetConnFromContext(r.Context()))
		next(cw, r, ps)
		api.stats.recordStatus(cw.Status())
	}
}

// CoreMiddleware sets up the request scoped logger and logs the request
// once it is processed with its duration and status.
func (api *APIHandler) CoreMiddleware(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		start := api.clock.Now()
		logger := api.logger.With(
			zap.String("request.id", GetValueFromContext(r.Context(), RequestIDContextKey)),
			zap.Uint64("request.num", GetRequestNumberFromContext(r.Context())),
			zap.String("request.method", r.Method),
			zap.String("request.path", r.URL.Path),
		)
		logger.Info("request received",
			zap.String("request.ip", GetRequestSourceIP(r)),
			zap.String("request.agent", r.UserAgent()),
			zap.String("request.referer", r.Referer()),
		)

		ctx := context.WithValue(r.Context(), LoggerContextKey, logger)
		next(w, r.WithContext(ctx), ps)

		fields := []zap.Field{zap.Duration("request.duration", api.clock.Now().Sub(start))}
		if cw, ok := w.(*CustomResponseWriter); ok {
			fields = append(fields, zap.Int("request.status", cw.Status()), zap.Int("request.bytes", cw.Bytes()))
		}
		logger.Info("request completed", fields...)
	}
}

// PanicRecoveryMiddleware catches any panic during the request lifecycle, logs
// it and sends a failure response to the client with 500.
func (api *APIHandler) PanicRecoveryMiddleware(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger := api.GetLoggerFromContext(r.Context())
				logger.Error("panic occurred", zap.Any("error", rec), zap.Stack("stack"))
				if isWebPath(r.URL.Path) {
					api.renderError(w, r, http.StatusInternalServerError, msgServerError)
					return
				}
				requestID := GetValueFromContext(r.Context(), RequestIDContextKey)
				errResp := NewAPIError(requestID, http.StatusInternalServerError, "failed to process the request.", EmptyData)
				if err := WriteErrorResponse(r.Context(), w, errResp); err != nil {
					logger.Error("failed to send error response", zap.Error(err))
				}
			}
		}()
		next(w, r, ps)
	}
}

// CORSMiddleware applies cors headers on each response.
func CORSMiddleware(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE, HEAD")
		w.Header().Set("Access-Control-Allow-Headers", "Origin, Accept, Content-Type, Content-Length, Accept-Encoding, Authorization, User-Agent, Referer, Cache-Control")
		next(w, r, ps)
	}
}

// MaintenanceModeMiddleware answers 503 with the maintenance reason while the mode is enabled.
func (api *APIHandler) MaintenanceModeMiddleware(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if !api.mode.enabled.Load() {
			next(w, r, ps)
			return
		}
		message, started := api.mode.details()
		if isWebPath(r.URL.Path) {
			api.renderError(w, r, http.StatusServiceUnavailable, "Service currently unavailable. "+message)
			return
		}
		if err := WriteJSON(r.Context(), w, http.StatusServiceUnavailable, map[string]interface{}{
			"requestid": GetValueFromContext(r.Context(), RequestIDContextKey),
			"message":   "service currently unavailable.",
			"reason":    message,
			"since":     formatOptionalTime(started),
		}); err != nil {
			api.GetLoggerFromContext(r.Context()).Error("failed to send maintenance response", zap.Error(err))
		}
	}
}

// ipRateLimiter keeps one token bucket per client ip. Buckets idle for
// longer than ttl are dropped during the next sweep.
type ipRateLimiter struct {
	mu        sync.Mutex
	clock     Clocker
	limit     rate.Limit
	burst     int
	ttl       time.Duration
	lastSweep time.Time
	clients   map[string]*clientLimiter
	trusted   map[string]struct{}
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newIPRateLimiter(limit rate.Limit, burst int, clock Clocker, trustedProxies []string) *ipRateLimiter {
	trusted := make(map[string]struct{}, len(trustedProxies))
	for _, ip := range trustedProxies {
		trusted[strings.TrimSpace(ip)] = struct{}{}
	}
	return &ipRateLimiter{
		clock:   clock,
		limit:   limit,
		burst:   burst,
		ttl:     3 * time.Minute,
		clients: make(map[string]*clientLimiter),
		trusted: trusted,
	}
}

// ClientIP returns the key of the bucket the request is charged to.
func (l *ipRateLimiter) ClientIP(r *http.Request) string {
	return GetRequestClientIP(r, l.trusted)
}

// Allow reports whether the client ip may proceed now.
func (l *ipRateLimiter) Allow(ip string) bool {
	now := l.clock.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	if now.Sub(l.lastSweep) > l.ttl {
		for key, c := range l.clients {
			if now.Sub(c.lastSeen) > l.ttl {
				delete(l.clients, key)
			}
		}
		l.lastSweep = now
	}
	c, ok := l.clients[ip]
	if !ok {
		c = &clientLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[ip] = c
	}
	c.lastSeen = now
	return c.limiter.AllowN(now, 1)
}

// RateLimitMiddleware rejects requests with 429 once a client ip exhausts its bucket.
func (api *APIHandler) RateLimitMiddleware(limiter *ipRateLimiter) MiddlewareFunc {
	return func(next httprouter.Handle) httprouter.Handle {
		return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
			if limiter.Allow(limiter.ClientIP(r)) {
				next(w, r, ps)
				return
			}
			w.Header().Set("Retry-After", "1")
			if isWebPath(r.URL.Path) {
				api.renderError(w, r, http.StatusTooManyRequests, "Too many requests. Please slow down.")
				return
			}
			requestID := GetValueFromContext(r.Context(), RequestIDContextKey)
			errResp := NewAPIError(requestID, http.StatusTooManyRequests, "too many requests", EmptyData)
			if err := WriteErrorResponse(r.Context(), w, errResp); err != nil {
				api.GetLoggerFromContext(r.Context()).Error("failed to send error response", zap.Error(err))
			}
		}
	}
}
