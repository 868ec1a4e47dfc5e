package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"busybeaver/internal/kvstore"
	"busybeaver/pkg/platform/httputil"
	"busybeaver/pkg/requestcontext"
)

// KVService is the key-value adapter as seen by the HTTP layer.
type KVService interface {
	Put(ctx context.Context, installationID, key, value string) error
	Get(ctx context.Context, installationID, key string) (string, error)
	Delete(ctx context.Context, installationID, key string) error
	Keys(ctx context.Context, installationID string) ([]string, error)
}

type KVHandler struct {
	kv     KVService
	logger *slog.Logger
}

func NewKVHandler(kv KVService, logger *slog.Logger) *KVHandler {
	return &KVHandler{kv: kv, logger: logger}
}

func (h *KVHandler) Register(r chi.Router) {
	r.Get("/installations/{installationID}/kv", h.handleKeys)
	r.Put("/installations/{installationID}/kv/{key}", h.handlePut)
	r.Get("/installations/{installationID}/kv/{key}", h.handleGet)
	r.Delete("/installations/{installationID}/kv/{key}", h.handleDelete)
}

type putValueRequest struct {
	Value *string `json:"value"`
}

type kvResponse struct {
	InstallationID string `json:"installation_id"`
	Key            string `json:"key"`
	Value          string `json:"value"`
}

func (h *KVHandler) handlePut(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	installationID, key := chi.URLParam(r, "installationID"), chi.URLParam(r, "key")

	var req putValueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Value == nil {
		h.logger.WarnContext(ctx, "invalid kv put request",
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, fmt.Errorf("%w: body must be {\"value\": string}", httputil.ErrBadRequest))
		return
	}

	if err := h.kv.Put(ctx, installationID, key, *req.Value); err != nil {
		h.writeKVError(ctx, w, "put", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, kvResponse{InstallationID: installationID, Key: key, Value: *req.Value})
}

func (h *KVHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	installationID, key := chi.URLParam(r, "installationID"), chi.URLParam(r, "key")

	value, err := h.kv.Get(ctx, installationID, key)
	if err != nil {
		h.writeKVError(ctx, w, "get", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, kvResponse{InstallationID: installationID, Key: key, Value: value})
}

func (h *KVHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.kv.Delete(ctx, chi.URLParam(r, "installationID"), chi.URLParam(r, "key")); err != nil {
		h.writeKVError(ctx, w, "delete", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *KVHandler) handleKeys(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	installationID := chi.URLParam(r, "installationID")

	keys, err := h.kv.Keys(ctx, installationID)
	if err != nil {
		h.writeKVError(ctx, w, "keys", err)
		return
	}
	if keys == nil {
		keys = []string{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"installation_id": installationID, "keys": keys})
}

func (h *KVHandler) writeKVError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	if errors.Is(err, kvstore.ErrInvalidKey) {
		err = fmt.Errorf("%w: %v", httputil.ErrBadRequest, err)
	}
	status, _ := httputil.Classify(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, "kv "+op+" failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}
	httputil.WriteError(w, err)
}
