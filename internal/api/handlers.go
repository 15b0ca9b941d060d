package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/leafsii/sqlkv/pkg/kv"
	"github.com/leafsii/sqlkv/pkg/kv/sqlite"
)

const maxBodyBytes = 1 << 20

// MetricsInterface defines the interface for metrics recording
type MetricsInterface interface {
	RecordHTTPRequest(ctx context.Context, method, path string, status int, duration time.Duration)
	RecordGet(ctx context.Context, table string, present bool)
}

// Pinger reports whether the database behind the store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	store   *kv.Store
	db      Pinger
	logger  *zap.SugaredLogger
	metrics MetricsInterface
}

func NewHandler(store *kv.Store, db Pinger, logger *zap.SugaredLogger, metrics MetricsInterface) *Handler {
	return &Handler{
		store:   store,
		db:      db,
		logger:  logger,
		metrics: metrics,
	}
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		h.logger.Warnw("Readiness check failed", "error", err)
		h.writeError(w, http.StatusServiceUnavailable, "NOT_READY", "database unreachable")
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("READY"))
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	var req GetRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.store.Get(r.Context(), req.Key)
	if err != nil {
		h.writeStoreError(w, "get", err)
		return
	}
	h.metrics.RecordGet(r.Context(), h.store.Table(), res.Present())
	h.writeJSON(w, http.StatusOK, NewResultResponse(res))
}

func (h *Handler) Set(w http.ResponseWriter, r *http.Request) {
	var req SetRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Value == nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_VALUE", "value is required")
		return
	}

	var opts []kv.Option
	if req.EX != nil {
		opts = append(opts, kv.WithEX(*req.EX))
	}
	if req.NX {
		opts = append(opts, kv.WithNX())
	}
	if req.Get {
		opts = append(opts, kv.WithGet())
	}

	res, err := h.store.Set(r.Context(), req.Key, req.Value, opts...)
	if err != nil {
		h.writeStoreError(w, "set", err)
		return
	}
	h.writeJSON(w, http.StatusOK, NewResultResponse(res))
}

func (h *Handler) Del(w http.ResponseWriter, r *http.Request) {
	var req DelRequest
	if !h.decode(w, r, &req) {
		return
	}

	var opts []kv.Option
	if req.Get {
		opts = append(opts, kv.WithGet())
	}
	res, err := h.store.Del(r.Context(), req.Key, opts...)
	if err != nil {
		h.writeStoreError(w, "del", err)
		return
	}
	h.writeJSON(w, http.StatusOK, NewResultResponse(res))
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	var req ListRequest
	if !h.decode(w, r, &req) {
		return
	}

	results, err := h.store.List(r.Context(), kv.ListOptions{
		Prefix:    req.Prefix,
		Offset:    req.Offset,
		Limit:     req.Limit,
		SortTrait: kv.SortTrait(req.SortTrait),
		Order:     kv.Order(req.Order),
	})
	if err != nil {
		h.writeStoreError(w, "list", err)
		return
	}

	resp := ListResponse{Results: make([]ResultResponse, 0, len(results))}
	for _, res := range results {
		resp.Results = append(resp.Results, NewResultResponse(res))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dest any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		if errors.Is(err, kv.ErrInvalidKey) {
			h.writeError(w, http.StatusBadRequest, "INVALID_KEY", err.Error())
			return false
		}
		h.writeError(w, http.StatusBadRequest, "INVALID_REQUEST", fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

// writeStoreError maps store errors to status codes. Invalid values are only
// the caller's fault on set; elsewhere they mean a corrupt stored record.
func (h *Handler) writeStoreError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, kv.ErrInvalidKey):
		h.writeError(w, http.StatusBadRequest, "INVALID_KEY", err.Error())
	case errors.Is(err, kv.ErrInvalidOption):
		h.writeError(w, http.StatusBadRequest, "INVALID_OPTION", err.Error())
	case errors.Is(err, kv.ErrInvalidValue) && op == "set":
		h.writeError(w, http.StatusBadRequest, "INVALID_VALUE", err.Error())
	case errors.Is(err, kv.ErrInvalidValue):
		h.writeError(w, http.StatusInternalServerError, "CORRUPT_VALUE", err.Error())
	case sqlite.IsBusyError(err):
		h.writeError(w, http.StatusServiceUnavailable, "BACKEND_BUSY", "database is busy, retry later")
	case errors.Is(err, kv.ErrBackend):
		h.logger.Errorw("Backend failure", "op", op, "error", err)
		h.writeError(w, http.StatusBadGateway, "BACKEND_FAILURE", "storage backend failed")
	default:
		h.logger.Errorw("Unexpected store error", "op", op, "error", err)
		h.writeError(w, http.StatusInternalServerError, "INTERNAL", "internal error")
	}
}

// Utility methods
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string) {
	if status >= http.StatusInternalServerError {
		h.logger.Errorw("API error", "code", code, "message", message, "status", status)
	} else {
		h.logger.Debugw("API error", "code", code, "message", message, "status", status)
	}

	respondError(w, status, code, message)
}
