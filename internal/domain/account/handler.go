package account

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/response"
	"github.com/clinic/clinic/pkg/pagination"
)

const stateCookie = "oauth_state"

// HandlerConfig carries the settings the auth routes need beyond the service.
type HandlerConfig struct {
	// OAuth is nil when Google sign-in is not configured.
	OAuth        auth.OAuthProvider
	FrontendURL  string
	CookieSecure bool
	TokenTTL     time.Duration
	// RateLimit guards register and login. Nil disables limiting.
	RateLimit echo.MiddlewareFunc
	Logger    zerolog.Logger
}

type Handler struct {
	svc *Service
	cfg HandlerConfig
}

func NewHandler(svc *Service, cfg HandlerConfig) *Handler {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = auth.DefaultTokenTTL
	}
	cfg.FrontendURL = strings.TrimRight(cfg.FrontendURL, "/")
	return &Handler{svc: svc, cfg: cfg}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	authGroup := api.Group("/auth")

	var limited []echo.MiddlewareFunc
	if h.cfg.RateLimit != nil {
		limited = append(limited, h.cfg.RateLimit)
	}
	authGroup.POST("/register", h.Register, limited...)
	authGroup.POST("/login", h.Login, limited...)
	authGroup.POST("/logout", h.Logout)
	authGroup.GET("/me", h.Me)
	authGroup.GET("/google", h.GoogleLogin)
	authGroup.GET("/google/callback", h.GoogleCallback)

	manage := auth.RequireCapability(auth.CapUserManage)
	api.GET("/users", h.ListUsers, manage)
	api.PUT("/users/me", h.UpdateProfile)
	api.PATCH("/users/:id/role", h.ChangeRole, manage)
}

func (h *Handler) Register(c echo.Context) error {
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	res, err := h.svc.Register(c.Request().Context(), req)
	if err != nil {
		return err
	}
	h.setTokenCookie(c, res.Token)
	return response.Created(c, "registration successful", res)
}

func (h *Handler) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	res, err := h.svc.Login(c.Request().Context(), req)
	if err != nil {
		return err
	}
	h.setTokenCookie(c, res.Token)
	return response.Success(c, "login successful", res)
}

func (h *Handler) Logout(c echo.Context) error {
	c.SetCookie(&http.Cookie{
		Name:     auth.TokenCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	return response.Success(c, "logged out", nil)
}

func (h *Handler) Me(c echo.Context) error {
	ident, err := auth.RequireIdentity(c)
	if err != nil {
		return err
	}
	u, err := h.svc.Me(c.Request().Context(), ident.ID)
	if err != nil {
		return err
	}
	return response.Success(c, "current user", u)
}

func (h *Handler) UpdateProfile(c echo.Context) error {
	ident, err := auth.RequireIdentity(c)
	if err != nil {
		return err
	}
	var req UpdateProfileRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	u, err := h.svc.UpdateProfile(c.Request().Context(), ident.ID, req)
	if err != nil {
		return err
	}
	return response.Updated(c, "profile updated", u)
}

func (h *Handler) ListUsers(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), c.QueryParam("role"), pg.Limit, pg.Offset())
	if err != nil {
		return err
	}
	return response.Success(c, "users retrieved", pagination.NewPage(items, total, pg))
}

func (h *Handler) ChangeRole(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.InvalidInput("invalid user id")
	}
	var req UpdateRoleRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	actor := auth.IdentityFromContext(c.Request().Context())
	u, err := h.svc.ChangeRole(c.Request().Context(), actor, id, req)
	if err != nil {
		return err
	}
	return response.Updated(c, "role updated", u)
}

// -- Google sign-in --

func (h *Handler) GoogleLogin(c echo.Context) error {
	if h.cfg.OAuth == nil {
		return apperr.Wrap(apperr.KindNotFound, auth.ErrOAuthNotConfigured.Error(), auth.ErrOAuthNotConfigured)
	}
	state, err := auth.NewState()
	if err != nil {
		return err
	}
	c.SetCookie(&http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   int((10 * time.Minute).Seconds()),
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	return c.Redirect(http.StatusTemporaryRedirect, h.cfg.OAuth.AuthCodeURL(state))
}

func (h *Handler) GoogleCallback(c echo.Context) error {
	if h.cfg.OAuth == nil {
		return apperr.Wrap(apperr.KindNotFound, auth.ErrOAuthNotConfigured.Error(), auth.ErrOAuthNotConfigured)
	}
	c.SetCookie(&http.Cookie{Name: stateCookie, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})

	if e := c.QueryParam("error"); e != "" {
		return h.failRedirect(c, "access_denied", errors.New(e))
	}
	cookie, err := c.Cookie(stateCookie)
	if err != nil || cookie.Value == "" || cookie.Value != c.QueryParam("state") {
		return h.failRedirect(c, "invalid_state", err)
	}
	code := c.QueryParam("code")
	if code == "" {
		return h.failRedirect(c, "missing_code", nil)
	}

	ctx := c.Request().Context()
	profile, err := h.cfg.OAuth.Exchange(ctx, code)
	if err != nil {
		return h.failRedirect(c, "exchange_failed", err)
	}
	res, err := h.svc.LoginWithGoogle(ctx, profile)
	if err != nil {
		return h.failRedirect(c, "login_failed", err)
	}

	userJSON, err := json.Marshal(res.User)
	if err != nil {
		return h.failRedirect(c, "login_failed", err)
	}
	h.setTokenCookie(c, res.Token)
	q := url.Values{}
	q.Set("token", res.Token)
	q.Set("user", string(userJSON))
	return c.Redirect(http.StatusFound, h.cfg.FrontendURL+"/auth/callback?"+q.Encode())
}

func (h *Handler) failRedirect(c echo.Context, code string, cause error) error {
	h.cfg.Logger.Warn().Err(cause).Str("reason", code).Msg("google sign-in failed")
	q := url.Values{}
	q.Set("error", code)
	return c.Redirect(http.StatusFound, h.cfg.FrontendURL+"/login?"+q.Encode())
}

func (h *Handler) setTokenCookie(c echo.Context, token string) {
	c.SetCookie(&http.Cookie{
		Name:     auth.TokenCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.cfg.TokenTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
