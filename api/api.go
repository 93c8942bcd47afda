// Package api exposes the replicated store of a node over HTTP.
//
//	GET    /resources/{resource}/{key}
//	PUT    /resources/{resource}/{key}
//	DELETE /resources/{resource}/{key}
//	GET    /stats
package api

import (
	"context"
	"encoding/json"
	"io/ioutil"
	"net/http"
	"strings"
	"time"

	"github.com/vx-labs/grid/store"
	"github.com/vx-labs/grid/transport"
	"go.uber.org/zap"
)

const maxValueSize = 4 << 20

type Store interface {
	Put(ctx context.Context, resource, key string, value []byte) error
	Delete(ctx context.Context, resource, key string) error
	Get(ctx context.Context, resource, key string) ([]byte, error)
}

type StatsProvider interface {
	Stats() transport.Stats
}

type api struct {
	store   Store
	stats   StatsProvider
	timeout time.Duration
	logger  *zap.Logger
}

type Config struct {
	// Timeout bounds each request. It defaults to 5 seconds.
	Timeout time.Duration
}

// New returns a handler serving store operations and transport statistics on mux.
func New(logger *zap.Logger, s Store, stats StatsProvider, config Config) http.Handler {
	if config.Timeout == 0 {
		config.Timeout = 5 * time.Second
	}
	a := &api{store: s, stats: stats, timeout: config.Timeout, logger: logger}
	mux := http.NewServeMux()
	mux.HandleFunc("/resources/", a.serveResource)
	mux.HandleFunc("/stats", a.serveStats)
	return mux
}

func splitResourcePath(path string) (string, string, bool) {
	tokens := strings.SplitN(strings.TrimPrefix(path, "/resources/"), "/", 2)
	if len(tokens) != 2 || tokens[0] == "" || tokens[1] == "" {
		return "", "", false
	}
	return tokens[0], tokens[1], true
}

func (a *api) serveResource(w http.ResponseWriter, r *http.Request) {
	resource, key, ok := splitResourcePath(r.URL.Path)
	if !ok {
		http.Error(w, "expected /resources/{resource}/{key}", http.StatusBadRequest)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), a.timeout)
	defer cancel()
	logger := a.logger.With(zap.String("resource_name", resource), zap.String("key", key))

	switch r.Method {
	case http.MethodGet:
		value, err := a.store.Get(ctx, resource, key)
		if err == store.ErrKeyNotFound || err == store.ErrResourceNotFound {
			http.NotFound(w, r)
			return
		}
		if err != nil {
			logger.Error("failed to read key", zap.Error(err))
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write(value)
	case http.MethodPut:
		value, err := ioutil.ReadAll(http.MaxBytesReader(w, r.Body, maxValueSize))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := a.store.Put(ctx, resource, key, value); err != nil {
			logger.Error("failed to write key", zap.Error(err))
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case http.MethodDelete:
		if err := a.store.Delete(ctx, resource, key); err != nil {
			logger.Error("failed to delete key", zap.Error(err))
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.Header().Set("Allow", "GET, PUT, DELETE")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (a *api) serveStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(a.stats.Stats())
}
