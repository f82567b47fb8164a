package main

import (
	"expvar"
	"fmt"
	"net/http"
	"runtime"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
)

// Maintenance switches the maintenance mode on or off.
//
//	enable : /ops/maintenance?status=enable&msg=message-to-be-displayed-to-users
//	disable: /ops/maintenance?status=disable
//
// Without a known status it shows the current mode.
func (api *APIHandler) Maintenance(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	q := r.URL.Query()
	status := q.Get("status")
	var response map[string]interface{}

	switch status {
	case "enable":
		api.mode.enable(q.Get("msg"), api.clock.Now().UTC())
		message, started := api.mode.details()
		response = map[string]interface{}{
			"maintenance.started": started.Format(time.RFC1123),
			"maintenance.message": message,
			"message":             "Maintenance mode enabled successfully.",
		}
	case "disable":
		api.mode.disable()
		response = map[string]interface{}{
			"message": "Maintenance mode disabled successfully.",
		}
	default:
		message, started := api.mode.details()
		response = map[string]interface{}{
			"maintenance.enabled": api.mode.enabled.Load(),
			"maintenance.message": message,
			"maintenance.started": formatOptionalTime(started),
		}
	}
	response["requestid"] = GetValueFromContext(r.Context(), RequestIDContextKey)

	logger := api.GetLoggerFromContext(r.Context())
	logger.Info("maintenance mode request", zap.String("request.maintenance", status))
	if err := WriteJSON(r.Context(), w, http.StatusOK, response); err != nil {
		logger.Error("failed to send maintenance response", zap.Error(err))
	}
}

func formatOptionalTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC1123)
}

var goroutines = expvar.NewInt("goroutines")

// GetMemStats serves expvar memory statistics along with the number of goroutines.
func GetMemStats(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	goroutines.Set(int64(runtime.NumGoroutine()))
	expvar.Handler().ServeHTTP(w, r)
}

// RunGC triggers a garbage collection in the background.
func (api *APIHandler) RunGC(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	go runtime.GC()
	if err := WriteJSON(r.Context(), w, http.StatusOK, map[string]string{"called": "go runtime.GC()"}); err != nil {
		api.GetLoggerFromContext(r.Context()).Error("failed to send run gc response", zap.Error(err))
	}
}

// FreeOSMemory forces a garbage collection and returns as much memory
// as possible to the operating system, in the background.
func (api *APIHandler) FreeOSMemory(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	go debug.FreeOSMemory()
	if err := WriteJSON(r.Context(), w, http.StatusOK, map[string]string{"called": "go debug.FreeOSMemory()"}); err != nil {
		api.GetLoggerFromContext(r.Context()).Error("failed to send free os memory response", zap.Error(err))
	}
}

// GetStatistics provides details about the running application. The call
// counter excludes the ops request being served.
func (api *APIHandler) GetStatistics(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	message, started := api.mode.details()
	api.stats.mu.RLock()
	status := make(map[int]uint64, len(api.stats.status))
	for code, count := range api.stats.status {
		status[code] = count
	}
	api.stats.mu.RUnlock()

	called := atomic.LoadUint64(&api.stats.called)
	if called > 0 {
		called--
	}
	resp := map[string]interface{}{
		"requestid":     GetValueFromContext(r.Context(), RequestIDContextKey),
		"app.version":   api.stats.version,
		"app.container": api.stats.container,
		"app.platform":  api.stats.platform,
		"app.storage":   api.config.Storage.Driver,
		"go.version":    api.stats.runtime,
		"called":        called,
		"started":       api.stats.started.Format(time.RFC1123),
		"uptime":        fmt.Sprintf("%.0f mins", api.clock.Now().Sub(api.stats.started).Minutes()),
		"maintenance": map[string]interface{}{
			"enabled": api.mode.enabled.Load(),
			"started": formatOptionalTime(started),
			"message": message,
		},
		"status": status,
	}
	if err := WriteJSON(r.Context(), w, http.StatusOK, resp); err != nil {
		api.GetLoggerFromContext(r.Context()).Error("failed to send statistics response", zap.Error(err))
	}
}

// GetConfigs serves the configuration in use. Secrets are never serialized.
func (api *APIHandler) GetConfigs(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if err := WriteJSON(r.Context(), w, http.StatusOK, map[string]interface{}{
		"requestid": GetValueFromContext(r.Context(), RequestIDContextKey),
		"configs":   api.config,
	}); err != nil {
		api.GetLoggerFromContext(r.Context()).Error("failed to send settings response", zap.Error(err))
	}
}

// OpsHandlerWrapper adapts a standard handler, like the pprof ones, to the router.
func OpsHandlerWrapper(h http.Handler) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		h.ServeHTTP(w, r)
	}
}
