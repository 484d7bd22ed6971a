package httpx

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/target/jobqueue/internal/domain/model"
	apperrors "github.com/target/jobqueue/internal/errors"
	"github.com/target/jobqueue/internal/service"
)

const (
	stateCookieName = "oauth_state"
	nonceCookieName = "oauth_nonce"
	oauthCookieTTL  = 10 * time.Minute
)

// AuthHandlers provides HTTP handlers for authentication operations.
type AuthHandlers struct {
	Svc          *service.AuthService
	CookieDomain string
	Logger       *slog.Logger
}

type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

type tokenResponse struct {
	Token     string       `json:"token"`
	TokenType string       `json:"token_type"`
	ExpiresAt time.Time    `json:"expires_at"`
	Message   string       `json:"message"`
	User      userResponse `json:"user"`
}

func newTokenResponse(res *service.LoginResult, message string) tokenResponse {
	return tokenResponse{
		Token:     res.Token,
		TokenType: "Bearer",
		ExpiresAt: res.Session.ExpiresAt,
		Message:   message,
		User: userResponse{
			ID:    res.Session.UserID,
			Email: res.Session.Email,
			Name:  res.Session.Name,
			Role:  string(res.Session.Role),
		},
	}
}

// Register creates a local account and returns a token for it.
// POST /auth/register {"email","name","password"}.
func (h *AuthHandlers) Register(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	res, err := h.Svc.Register(r.Context(), req)
	if err != nil {
		RenderError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusCreated, newTokenResponse(res, "registration successful"))
}

// Login verifies local credentials and returns a token.
// POST /auth/login {"email","password"}.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req model.LoginRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	res, err := h.Svc.Login(r.Context(), req)
	if err != nil {
		RenderError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, newTokenResponse(res, "login successful"))
}

// Logout revokes the session behind the caller's token.
// POST /auth/logout.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	if sess, ok := GetUserSessionFromContext(r.Context()); ok {
		if err := h.Svc.Logout(r.Context(), sess.ID); err != nil {
			RenderError(w, r, h.Logger, apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "logout failed"))
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// Me returns the authenticated principal.
// GET /auth/me.
func (h *AuthHandlers) Me(w http.ResponseWriter, r *http.Request) {
	sess, ok := GetUserSessionFromContext(r.Context())
	if !ok {
		RenderError(w, r, h.Logger, apperrors.Unauthorized("authentication required"))
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"user": userResponse{
			ID:    sess.UserID,
			Email: sess.Email,
			Name:  sess.Name,
			Role:  string(sess.Role),
		},
		"expires_at": sess.ExpiresAt,
	})
}

// SSOLogin starts the single sign-on flow and redirects to the identity provider.
// GET /auth/sso/login?redirect_uri=<optional relative path>.
func (h *AuthHandlers) SSOLogin(w http.ResponseWriter, r *http.Request) {
	redirectURI := safeRedirectPath(r.URL.Query().Get("redirect_uri"))

	result, err := h.Svc.BeginLogin(r.Context(), redirectURI)
	if err != nil {
		RenderError(w, r, h.Logger, err)
		return
	}

	h.setCookie(w, r, stateCookieName, result.State, oauthCookieTTL)
	h.setCookie(w, r, nonceCookieName, result.Nonce, oauthCookieTTL)
	http.Redirect(w, r, result.AuthURL, http.StatusFound)
}

// SSOCallback completes the single sign-on flow and returns a token.
// GET /auth/sso/callback?code=<code>&state=<state>.
func (h *AuthHandlers) SSOCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if errParam := q.Get("error"); errParam != "" {
		RenderError(w, r, h.Logger, apperrors.Unauthorized("identity provider returned "+errParam))
		return
	}

	in := service.CompleteLoginInput{Code: q.Get("code"), State: q.Get("state")}
	if c, err := r.Cookie(stateCookieName); err == nil {
		in.ExpectedState = c.Value
	}
	if c, err := r.Cookie(nonceCookieName); err == nil {
		in.Nonce = c.Value
	}

	res, err := h.Svc.CompleteLogin(r.Context(), in)
	h.clearCookie(w, r, stateCookieName)
	h.clearCookie(w, r, nonceCookieName)
	if err != nil {
		RenderError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, newTokenResponse(res, "login successful"))
}

func isSecureRequest(r *http.Request) bool {
	return r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

func (h *AuthHandlers) setCookie(w http.ResponseWriter, r *http.Request, name, value string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/auth/sso",
		Domain:   h.CookieDomain,
		HttpOnly: true,
		Secure:   isSecureRequest(r),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(ttl.Seconds()),
	})
}

// clearCookie clears a cookie by setting it to expire immediately.
// It mirrors the attributes used when setting it so browsers match the cookie.
func (h *AuthHandlers) clearCookie(w http.ResponseWriter, r *http.Request, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/auth/sso",
		Domain:   h.CookieDomain,
		HttpOnly: true,
		Secure:   isSecureRequest(r),
		MaxAge:   -1,
		Expires:  time.Unix(0, 0).UTC(),
		SameSite: http.SameSiteLaxMode,
	})
}

// safeRedirectPath ensures the provided redirect is a same-origin relative path
// starting with "/" and not an absolute URL. Returns "/" when invalid.
func safeRedirectPath(candidate string) string {
	if candidate == "" {
		return "/"
	}
	u, err := url.Parse(candidate)
	if err != nil || u.IsAbs() || u.Host != "" || !strings.HasPrefix(u.Path, "/") || strings.HasPrefix(candidate, "//") {
		return "/"
	}
	return candidate
}
