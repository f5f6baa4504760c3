package handler

import (
	"context"  // bounds the database calls of each request
	"errors"   // sentinel comparison
	"log/slog" // structured logging of failures
	"net/http" // HTTP status codes
	"strings"  // input normalization
	"time"     // token expiry

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-showtime-scheduler/internal/config"
	"github.com/iliyamo/cinema-showtime-scheduler/internal/logger/sl"
	"github.com/iliyamo/cinema-showtime-scheduler/internal/middleware"
	"github.com/iliyamo/cinema-showtime-scheduler/internal/model"
	"github.com/iliyamo/cinema-showtime-scheduler/internal/repository"
	"github.com/iliyamo/cinema-showtime-scheduler/internal/utils"
)

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Cfg    config.Config
	Log    *slog.Logger
	Users  *repository.UserRepo
	Tokens *repository.TokenRepo
}

func NewAuthHandler(cfg config.Config, log *slog.Logger, u *repository.UserRepo, t *repository.TokenRepo) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Log: log, Users: u, Tokens: t}
}

// authTimeout bounds every database round trip of the auth endpoints.
const authTimeout = 5 * time.Second

// ----- DTOs -----

type registerReq struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required"`
	Role     string `json:"role"` // OWNER | STAFF, STAFF when omitted
}
type loginReq struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}
type refreshReq struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}
type userPart struct {
	ID    uint64 `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}
type authResp struct {
	User    userPart  `json:"user"`
	Access  tokenPart `json:"access"`
	Refresh tokenPart `json:"refresh"`
}

func authError(c echo.Context, status int, code, msg string) error {
	return c.JSON(status, echo.Map{"error": code, "message": msg})
}

// issuePair signs a new access token and stores a new refresh token for u.
func (h *AuthHandler) issuePair(ctx context.Context, u userPart) (authResp, error) {
	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.ID, u.Role, h.Cfg.AccessTTLMin)
	if err != nil {
		return authResp{}, err
	}
	refresh, err := utils.NewRefreshToken(h.Cfg.RefreshTTLDays)
	if err != nil {
		return authResp{}, err
	}
	if err := h.Tokens.StoreRefresh(ctx, u.ID, utils.HashToken(refresh.Raw), refresh.Exp); err != nil {
		return authResp{}, err
	}
	return authResp{
		User:    u,
		Access:  tokenPart{Token: access.Token, Expires: access.Exp},
		Refresh: tokenPart{Token: refresh.Raw, Expires: refresh.Exp}, // raw back to client, hash in the database
	}, nil
}

// Register creates a user and returns a token pair immediately.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if ok, err := bindAndValidate(c, &req); !ok {
		return err
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	role := strings.ToUpper(strings.TrimSpace(req.Role))
	if role != model.RoleOwner {
		role = model.RoleStaff
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), authTimeout)
	defer cancel()

	uid, err := h.Users.Create(ctx, email, req.Password, role, h.Cfg.BcryptCost)
	switch {
	case errors.Is(err, repository.ErrEmailExists):
		return authError(c, http.StatusConflict, "EMAIL_EXISTS", "email already exists")
	case errors.Is(err, utils.ErrWeakPassword):
		return authError(c, http.StatusBadRequest, "WEAK_PASSWORD", err.Error())
	case err != nil:
		h.Log.Error("create user failed", sl.Err(err))
		return authError(c, http.StatusInternalServerError, "INTERNAL", "create user failed")
	}

	resp, err := h.issuePair(ctx, userPart{ID: uid, Email: email, Role: role})
	if err != nil {
		h.Log.Error("issue tokens failed", slog.Uint64("user_id", uid), sl.Err(err))
		return authError(c, http.StatusInternalServerError, "INTERNAL", "issue tokens failed")
	}
	return c.JSON(http.StatusCreated, resp)
}

// Login verifies the credentials and returns a new token pair.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if ok, err := bindAndValidate(c, &req); !ok {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), authTimeout)
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return authError(c, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid credentials")
		}
		h.Log.Error("load user failed", sl.Err(err))
		return authError(c, http.StatusInternalServerError, "INTERNAL", "query failed")
	}
	if !u.IsActive || !utils.VerifyPassword(u.PasswordHash, req.Password) {
		return authError(c, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid credentials")
	}

	resp, err := h.issuePair(ctx, userPart{ID: u.ID, Email: u.Email, Role: u.Role})
	if err != nil {
		h.Log.Error("issue tokens failed", slog.Uint64("user_id", u.ID), sl.Err(err))
		return authError(c, http.StatusInternalServerError, "INTERNAL", "issue tokens failed")
	}
	return c.JSON(http.StatusOK, resp)
}

// refreshUser resolves the owner of a presented refresh token.  ok is
// false when a response has already been written.
func (h *AuthHandler) refreshUser(ctx context.Context, c echo.Context, hash string) (model.User, bool, error) {
	userID, err := h.Tokens.ValidateRefresh(ctx, hash)
	if err != nil {
		if !errors.Is(err, repository.ErrTokenInvalid) {
			h.Log.Error("validate refresh failed", sl.Err(err))
		}
		return model.User{}, false, authError(c, http.StatusUnauthorized, "INVALID_REFRESH", "invalid refresh token")
	}
	u, err := h.Users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return model.User{}, false, authError(c, http.StatusUnauthorized, "INVALID_REFRESH", "invalid refresh token")
		}
		h.Log.Error("load user failed", slog.Uint64("user_id", userID), sl.Err(err))
		return model.User{}, false, authError(c, http.StatusInternalServerError, "INTERNAL", "load user failed")
	}
	if !u.IsActive {
		return model.User{}, false, authError(c, http.StatusUnauthorized, "INVALID_REFRESH", "invalid refresh token")
	}
	return u, true, nil
}

// Refresh validates a refresh token by hash, revokes it and issues a new pair.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if ok, err := bindAndValidate(c, &req); !ok {
		return err
	}
	hash := utils.HashToken(strings.TrimSpace(req.RefreshToken))

	ctx, cancel := context.WithTimeout(c.Request().Context(), authTimeout)
	defer cancel()

	u, ok, err := h.refreshUser(ctx, c, hash)
	if !ok {
		return err
	}
	if err := h.Tokens.RevokeByHash(ctx, hash); err != nil {
		h.Log.Warn("revoke rotated refresh failed", sl.Err(err))
	}

	resp, err := h.issuePair(ctx, userPart{ID: u.ID, Email: u.Email, Role: u.Role})
	if err != nil {
		h.Log.Error("issue tokens failed", slog.Uint64("user_id", u.ID), sl.Err(err))
		return authError(c, http.StatusInternalServerError, "INTERNAL", "issue tokens failed")
	}
	return c.JSON(http.StatusOK, resp)
}

// RefreshAccess returns a new access token without rotating the refresh token.
func (h *AuthHandler) RefreshAccess(c echo.Context) error {
	var req refreshReq
	if ok, err := bindAndValidate(c, &req); !ok {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), authTimeout)
	defer cancel()

	u, ok, err := h.refreshUser(ctx, c, utils.HashToken(strings.TrimSpace(req.RefreshToken)))
	if !ok {
		return err
	}
	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.ID, u.Role, h.Cfg.AccessTTLMin)
	if err != nil {
		return authError(c, http.StatusInternalServerError, "INTERNAL", "issue access failed")
	}
	return c.JSON(http.StatusOK, echo.Map{
		"access": tokenPart{Token: access.Token, Expires: access.Exp},
	})
}

// Logout has two modes: a refresh_token in the body revokes that one
// session; otherwise a valid bearer access token revokes every session of
// its user.  The route is public so an expired access token does not
// prevent logging out with a refresh token.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req refreshReq
	_ = c.Bind(&req) // an empty or invalid body just means "no refresh token"
	refresh := strings.TrimSpace(req.RefreshToken)

	ctx, cancel := context.WithTimeout(c.Request().Context(), authTimeout)
	defer cancel()

	if refresh != "" {
		hash := utils.HashToken(refresh)
		if _, err := h.Tokens.ValidateRefresh(ctx, hash); err != nil {
			return authError(c, http.StatusUnauthorized, "INVALID_REFRESH", "invalid refresh token")
		}
		if err := h.Tokens.RevokeByHash(ctx, hash); err != nil {
			h.Log.Error("logout failed", sl.Err(err))
			return authError(c, http.StatusInternalServerError, "INTERNAL", "logout failed")
		}
		return c.NoContent(http.StatusNoContent)
	}

	auth := c.Request().Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return authError(c, http.StatusBadRequest, "INVALID_BODY", "provide Authorization header or refresh_token")
	}
	claims, err := utils.ParseAccessToken(h.Cfg.JWTSecret, strings.TrimPrefix(auth, "Bearer "))
	if err != nil {
		return authError(c, http.StatusUnauthorized, "UNAUTHORIZED", "invalid token")
	}
	uid, err := claims.UserID()
	if err != nil || uid == 0 {
		return authError(c, http.StatusUnauthorized, "UNAUTHORIZED", "invalid token")
	}
	if err := h.Tokens.RevokeAllForUser(ctx, uid); err != nil {
		h.Log.Error("logout failed", slog.Uint64("user_id", uid), sl.Err(err))
		return authError(c, http.StatusInternalServerError, "INTERNAL", "logout failed")
	}
	return c.NoContent(http.StatusNoContent)
}

// Me: simple protected endpoint.
func (h *AuthHandler) Me(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return authError(c, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
	}
	return c.JSON(http.StatusOK, echo.Map{
		"user_id": uid,
		"role":    c.Get(middleware.CtxRole),
	})
}
