package handler

import (
	"errors"
	"net/http"
	"time"

	"app/internal/api/v1/dto"
	"app/internal/middleware"
	"app/internal/model"
	"app/internal/service"
	"app/internal/util"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// UserHandler handles account endpoints.
type UserHandler struct {
	userSvc   service.UserService
	subSvc    service.SubscriptionService
	jwtSecret string
	secure    bool
	validate  *validator.Validate
	logger    zerolog.Logger
}

// NewUserHandler creates a new UserHandler. secure controls the Secure flag
// on the access token cookie.
func NewUserHandler(userSvc service.UserService, subSvc service.SubscriptionService, jwtSecret string, secure bool, logger zerolog.Logger) *UserHandler {
	return &UserHandler{
		userSvc:   userSvc,
		subSvc:    subSvc,
		jwtSecret: jwtSecret,
		secure:    secure,
		validate:  validator.New(),
		logger:    logger,
	}
}

// RegisterRoutes registers the account endpoints.
func (h *UserHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware func(http.Handler) http.Handler) {
	mux.HandleFunc("POST /users/register", h.Register)
	mux.HandleFunc("POST /users/signin", h.SignIn)
	mux.HandleFunc("POST /users/logout", h.Logout)
	mux.Handle("GET /users/me", authMiddleware(http.HandlerFunc(h.Me)))
	mux.Handle("GET /users/subscription-status", authMiddleware(http.HandlerFunc(h.SubscriptionStatus)))
	mux.Handle("POST /users/change-password", authMiddleware(http.HandlerFunc(h.ChangePassword)))
}

// Register creates an account and signs the caller in.
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req dto.RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	user, err := h.userSvc.Register(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		if errors.Is(err, service.ErrEmailAlreadyRegistered) {
			respondError(w, http.StatusConflict, "email already registered")
			return
		}
		h.logger.Error().Err(err).Msg("Failed to register user")
		respondError(w, http.StatusInternalServerError, "failed to register user")
		return
	}
	if err := h.issueToken(w, user); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}
	respondJSON(w, http.StatusCreated, userResponse(user))
}

// SignIn checks credentials and sets the access token cookie.
func (h *UserHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req dto.SignInRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	user, err := h.userSvc.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			respondError(w, http.StatusUnauthorized, "invalid email or password")
			return
		}
		h.logger.Error().Err(err).Msg("Failed to sign user in")
		respondError(w, http.StatusInternalServerError, "failed to sign in")
		return
	}
	if err := h.issueToken(w, user); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}
	respondJSON(w, http.StatusOK, userResponse(user))
}

// Logout clears the access token cookie.
func (h *UserHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     "accessToken",
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// Me returns the caller's account and current subscription.
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	user, err := h.userSvc.Get(r.Context(), userID)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			respondError(w, http.StatusNotFound, "user not found")
			return
		}
		h.logger.Error().Err(err).Int64("user_id", userID).Msg("Failed to load user")
		respondError(w, http.StatusInternalServerError, "failed to load user")
		return
	}
	sub, err := h.subSvc.CurrentForUser(r.Context(), userID)
	if err != nil {
		h.logger.Error().Err(err).Int64("user_id", userID).Msg("Failed to load subscription")
		respondError(w, http.StatusInternalServerError, "failed to load subscription")
		return
	}
	res := dto.MeResponse{User: userResponse(user)}
	if sub != nil {
		sr := subscriptionResponse(sub)
		res.Subscription = &sr
	}
	respondJSON(w, http.StatusOK, res)
}

// SubscriptionStatus returns the caller's current subscription, or a free
// marker when none exists.
func (h *UserHandler) SubscriptionStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	sub, err := h.subSvc.CurrentForUser(r.Context(), userID)
	if err != nil {
		h.logger.Error().Err(err).Int64("user_id", userID).Msg("Failed to load subscription")
		respondError(w, http.StatusInternalServerError, "failed to load subscription")
		return
	}
	if sub == nil {
		respondJSON(w, http.StatusOK, dto.SubscriptionResponse{Status: "free"})
		return
	}
	respondJSON(w, http.StatusOK, subscriptionResponse(sub))
}

// ChangePassword rotates the caller's password.
func (h *UserHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req dto.ChangePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	err := h.userSvc.ChangePassword(r.Context(), userID, req.CurrentPassword, req.NewPassword)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCredentials):
			respondError(w, http.StatusUnauthorized, "current password is incorrect")
		case errors.Is(err, service.ErrUserNotFound):
			respondError(w, http.StatusNotFound, "user not found")
		default:
			h.logger.Error().Err(err).Int64("user_id", userID).Msg("Failed to change password")
			respondError(w, http.StatusInternalServerError, "failed to change password")
		}
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *UserHandler) issueToken(w http.ResponseWriter, user *model.User) error {
	token, err := util.SignToken(user.ID, user.Email, h.jwtSecret)
	if err != nil {
		h.logger.Error().Err(err).Int64("user_id", user.ID).Msg("Failed to sign access token")
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     "accessToken",
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(util.AccessTokenTTL),
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func userResponse(u *model.User) dto.UserResponse {
	return dto.UserResponse{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Status:    u.Status,
		CreatedAt: u.CreatedAt,
	}
}

func subscriptionResponse(sub *model.Subscription) dto.SubscriptionResponse {
	return dto.SubscriptionResponse{
		Status:             sub.Status,
		PlanID:             sub.PlanID,
		PriceCents:         sub.PriceCents,
		Currency:           sub.Currency,
		CurrentPeriodStart: sub.CurrentPeriodStart,
		CurrentPeriodEnd:   sub.CurrentPeriodEnd,
		CancelAtPeriodEnd:  sub.CancelAtPeriodEnd,
		CanceledAt:         sub.CanceledAt,
	}
}
