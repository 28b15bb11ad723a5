package handler

import (
	"errors"
	"net/http"

	"app/internal/api/v1/dto"
	"app/internal/middleware"
	"app/internal/service"
	"app/internal/stripeclient"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// PaymentHandler exposes checkout, verification, portal and refresh
// endpoints.
type PaymentHandler struct {
	paymentSvc *service.PaymentService
	validate   *validator.Validate
	logger     zerolog.Logger
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(paymentSvc *service.PaymentService, logger zerolog.Logger) *PaymentHandler {
	return &PaymentHandler{
		paymentSvc: paymentSvc,
		validate:   validator.New(),
		logger:     logger,
	}
}

// RegisterRoutes registers the payment endpoints. Checkout and session
// verification are public; portal and refresh act on the signed-in user.
func (h *PaymentHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware func(http.Handler) http.Handler) {
	mux.HandleFunc("POST /create-payment-intent", h.CreatePaymentIntent)
	mux.HandleFunc("POST /create-checkout-session", h.CreateCheckoutSession)
	mux.HandleFunc("GET /verify-session", h.VerifySession)
	mux.Handle("POST /billing-portal", authMiddleware(http.HandlerFunc(h.BillingPortal)))
	mux.Handle("POST /refresh-subscription", authMiddleware(http.HandlerFunc(h.RefreshSubscription)))
}

// CreatePaymentIntent starts a direct payment and returns its client secret.
func (h *PaymentHandler) CreatePaymentIntent(w http.ResponseWriter, r *http.Request) {
	var req dto.PaymentIntentRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	secret, err := h.paymentSvc.CreatePaymentIntent(r.Context(), req.Amount)
	if err != nil {
		if errors.Is(err, service.ErrInvalidAmount) {
			respondError(w, http.StatusBadRequest, "amount must be positive")
			return
		}
		h.logger.Error().Err(err).Msg("Failed to create payment intent")
		respondError(w, http.StatusInternalServerError, "failed to create payment intent")
		return
	}
	respondJSON(w, http.StatusOK, dto.PaymentIntentResponse{ClientSecret: secret})
}

// CreateCheckoutSession starts a hosted checkout and returns the redirect URL.
func (h *PaymentHandler) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	var req dto.CheckoutRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	in := service.CheckoutInput{
		Type:     req.Type,
		PriceID:  req.PriceID,
		Quantity: req.Quantity,
		Customer: stripeclient.CustomerInfo{
			Name:  req.Customer.Name,
			Email: req.Customer.Email,
			Phone: req.Customer.Phone,
		},
	}
	for _, item := range req.Items {
		in.Items = append(in.Items, stripeclient.CheckoutItem{
			Name:       item.Name,
			UnitAmount: item.UnitAmount,
			Quantity:   item.Quantity,
		})
	}

	url, err := h.paymentSvc.CreateCheckoutSession(r.Context(), in)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNoItems):
			respondError(w, http.StatusBadRequest, "items are required for payment checkout")
		case errors.Is(err, service.ErrMissingPriceID):
			respondError(w, http.StatusBadRequest, "price_id is required for subscription checkout")
		default:
			h.logger.Error().Err(err).Msg("Failed to create checkout session")
			respondError(w, http.StatusInternalServerError, "failed to create checkout session")
		}
		return
	}
	respondJSON(w, http.StatusOK, dto.CheckoutResponse{URL: url})
}

// VerifySession re-reads a checkout session and reports whether it was paid.
func (h *PaymentHandler) VerifySession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "session_id is required")
		return
	}
	res, err := h.paymentSvc.VerifySession(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			respondError(w, http.StatusNotFound, "session not found")
			return
		}
		h.logger.Error().Err(err).Str("session_id", sessionID).Msg("Failed to verify session")
		respondError(w, http.StatusInternalServerError, "failed to verify session")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"valid":   res.Valid,
		"session": res.Session,
	})
}

// BillingPortal returns a processor-hosted management portal URL.
func (h *PaymentHandler) BillingPortal(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	url, err := h.paymentSvc.BillingPortal(r.Context(), userID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUserNotFound):
			respondError(w, http.StatusNotFound, "user not found")
		case errors.Is(err, service.ErrNoLinkedCustomer):
			respondError(w, http.StatusBadRequest, "no billing customer linked to account")
		default:
			h.logger.Error().Err(err).Int64("user_id", userID).Msg("Failed to create portal session")
			respondError(w, http.StatusInternalServerError, "failed to create portal session")
		}
		return
	}
	respondJSON(w, http.StatusOK, dto.CheckoutResponse{URL: url})
}

// RefreshSubscription pulls the caller's subscription state directly from the
// processor.
func (h *PaymentHandler) RefreshSubscription(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	sub, err := h.paymentSvc.RefreshSubscription(r.Context(), userID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUserNotFound):
			respondError(w, http.StatusNotFound, "user not found")
		case errors.Is(err, service.ErrNoLinkedCustomer):
			respondError(w, http.StatusBadRequest, "no billing customer linked to account")
		case errors.Is(err, service.ErrSubscriptionNotFound):
			respondError(w, http.StatusNotFound, "no subscription found for account")
		default:
			h.logger.Error().Err(err).Int64("user_id", userID).Msg("Failed to refresh subscription")
			respondError(w, http.StatusInternalServerError, "failed to refresh subscription")
		}
		return
	}
	respondJSON(w, http.StatusOK, subscriptionResponse(sub))
}
