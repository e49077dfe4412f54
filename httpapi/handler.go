// Package httpapi is the read-only HTTP surface: chat history, health and metrics.
package httpapi

import (
	"chat-gateway/contract"
	"chat-gateway/domain"
	"chat-gateway/errors"
	"chat-gateway/runtime"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

type HistoryReader interface {
	GetMessages(ctx context.Context, cmd domain.GetMessagesCommand) ([]domain.Message, *string, error)
}

type HistoryResponse struct {
	Messages   []runtime.MessagePayload `json:"messages"`
	NextCursor *string                  `json:"nextCursor,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Handler wires the routes. health returns nil while the gateway can accept traffic.
type Handler struct {
	log       *slog.Logger
	validator contract.AuthValidator
	history   HistoryReader
	health    func() error
	metrics   http.Handler
}

func NewHandler(log *slog.Logger, validator contract.AuthValidator, history HistoryReader,
	health func() error, metrics http.Handler) *Handler {
	return &Handler{log: log, validator: validator, history: history, health: health, metrics: metrics}
}

func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/chats/{chatId}/messages", h.getMessages)
	mux.HandleFunc("GET /healthz", h.healthz)
	mux.Handle("GET /metrics", h.metrics)
	return mux
}

func (h *Handler) getMessages(w http.ResponseWriter, r *http.Request) {
	identity, err := h.authenticate(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	raw := r.PathValue("chatId")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, errors.ErrInvalidDestination)
		return
	}
	cmd := domain.GetMessagesCommand{ChatID: domain.ChatID(id), Requester: identity.Subject}
	if cursor := r.URL.Query().Get("cursor"); cursor != "" {
		cmd.Cursor = &cursor
	}

	messages, next, err := h.history.GetMessages(r.Context(), cmd)
	switch {
	case errors.Is(err, errors.ErrNotMember):
		writeError(w, http.StatusForbidden, errors.ErrNotMember)
		return
	case err != nil:
		h.log.Error("History query failed", "chat_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, errors.ErrStoreUnavailable)
		return
	}

	writeJSON(w, http.StatusOK, HistoryResponse{
		Messages:   lo.Map(messages, func(m domain.Message, _ int) runtime.MessagePayload { return runtime.ToPayload(m) }),
		NextCursor: next,
	})
}

func (h *Handler) authenticate(r *http.Request) (domain.Identity, error) {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return domain.Identity{}, errors.ErrMissingCredential
	}
	return h.validator.Verify(r.Context(), strings.TrimSpace(token))
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	if err := h.health(); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeError(w http.ResponseWriter, status int, err error) {
	message := err.Error()
	if status == http.StatusUnauthorized {
		message = authMessage(err)
	}
	writeJSON(w, status, errorResponse{Error: message})
}

// authMessage keeps validator internals out of the response body.
func authMessage(err error) string {
	for _, known := range []error{
		errors.ErrMissingCredential,
		errors.ErrExpired,
		errors.ErrAudienceMismatch,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return errors.ErrInvalidToken.Error()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
