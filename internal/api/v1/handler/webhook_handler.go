package handler

import (
	"errors"
	"io"
	"net/http"

	"app/internal/service"
	"app/internal/stripeclient"

	"github.com/rs/zerolog"
)

// maxWebhookBody caps webhook payload reads at 64 KiB, matching the
// processor's own delivery limit.
const maxWebhookBody = 65536

// WebhookHandler receives processor webhook deliveries.
type WebhookHandler struct {
	processor *service.WebhookProcessor
	logger    zerolog.Logger
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(processor *service.WebhookProcessor, logger zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{processor: processor, logger: logger}
}

// RegisterRoutes registers the webhook endpoint. It is unauthenticated; the
// signature check stands in for auth.
func (h *WebhookHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /webhook", h.Receive)
}

// Receive verifies and applies one webhook delivery. The raw body is read
// before any parsing because the signature covers the exact bytes sent.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	err = h.processor.Process(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, stripeclient.ErrSignature) || errors.Is(err, stripeclient.ErrInvalidPayload) {
			h.logger.Warn().Err(err).Msg("Rejected webhook delivery")
			respondError(w, http.StatusBadRequest, "invalid webhook payload")
			return
		}
		// Transient failure: a non-2xx response makes the processor retry.
		respondError(w, http.StatusInternalServerError, "failed to process event")
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"received": true})
}
