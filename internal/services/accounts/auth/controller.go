package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/streampulse/accounts/internal/domain/account"
)

type Opts struct {
	Logger            *zap.Logger
	AccessCookieName  string
	RefreshCookieName string
	CookieDomain      string
	CookiePath        string
	CookieSecure      bool
	AccessTTL         time.Duration
	RefreshTTL        time.Duration
}

// Controller maps the session manager onto HTTP. Tokens travel both in the
// JSON body and in HttpOnly cookies; which one a client uses is its business.
type Controller struct {
	log  *zap.Logger
	uc   *Usecase
	opts Opts
}

func NewController(uc *Usecase, o Opts) *Controller {
	log := o.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{log: log, uc: uc, opts: o}
}

// Routes registers the auth endpoints. gate is the authentication middleware
// applied to the endpoints that require an identity.
func (c *Controller) Routes(mux *http.ServeMux, gate func(http.Handler) http.Handler) {
	mux.HandleFunc("POST /v1/auth/login", c.login)
	mux.HandleFunc("POST /v1/auth/refresh", c.refresh)
	mux.Handle("POST /v1/auth/logout", gate(http.HandlerFunc(c.logout)))
	mux.Handle("POST /v1/auth/change-password", gate(http.HandlerFunc(c.changePassword)))
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Email      string `json:"email"`
	Username   string `json:"username"`
	Password   string `json:"password"`
}

func (r loginRequest) identifier() string {
	switch {
	case r.Identifier != "":
		return r.Identifier
	case r.Email != "":
		return r.Email
	default:
		return r.Username
	}
}

type tokenPairResponse struct {
	AccessToken  string        `json:"accessToken"`
	RefreshToken string        `json:"refreshToken"`
	Account      *account.View `json:"account"`
}

func (c *Controller) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.identifier() == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "identifier and password are required")
		return
	}

	pair, view, err := c.uc.Login(r.Context(), req.identifier(), req.Password)
	if err != nil {
		c.mapErr(w, err)
		return
	}

	c.setSessionCookies(w, pair)
	writeJSON(w, http.StatusOK, tokenPairResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		Account:      view,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (c *Controller) refresh(w http.ResponseWriter, r *http.Request) {
	raw := c.refreshTokenFromRequest(r)

	pair, view, err := c.uc.Refresh(r.Context(), raw)
	if err != nil {
		c.clearSessionCookies(w)
		c.mapErr(w, err)
		return
	}

	c.setSessionCookies(w, pair)
	writeJSON(w, http.StatusOK, tokenPairResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		Account:      view,
	})
}

func (c *Controller) logout(w http.ResponseWriter, r *http.Request) {
	view, ok := IdentityFromCtx(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized request")
		return
	}
	if err := c.uc.Invalidate(r.Context(), view.ID); err != nil {
		c.mapErr(w, err)
		return
	}
	c.clearSessionCookies(w)
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

func (c *Controller) changePassword(w http.ResponseWriter, r *http.Request) {
	view, ok := IdentityFromCtx(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized request")
		return
	}

	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if len(req.NewPassword) < 8 {
		writeError(w, http.StatusBadRequest, "password is too weak")
		return
	}

	if err := c.uc.ChangePassword(r.Context(), view.ID, req.OldPassword, req.NewPassword); err != nil {
		c.mapErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "password changed"})
}

func (c *Controller) refreshTokenFromRequest(r *http.Request) string {
	if ck, err := r.Cookie(c.opts.RefreshCookieName); err == nil && ck.Value != "" {
		return ck.Value
	}
	if v := r.Header.Get("X-Refresh-Token"); v != "" {
		return v
	}
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
		return req.RefreshToken
	}
	return ""
}

func (c *Controller) mapErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, ErrInvalidCredentials.Error())
	case errors.Is(err, ErrInvalidSession):
		writeError(w, http.StatusUnauthorized, ErrInvalidSession.Error())
	case errors.Is(err, account.ErrNotFound):
		writeError(w, http.StatusNotFound, account.ErrNotFound.Error())
	default:
		c.log.Error("auth request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (c *Controller) setSessionCookies(w http.ResponseWriter, pair *Pair) {
	c.setCookie(w, c.opts.AccessCookieName, pair.AccessToken, c.opts.AccessTTL)
	c.setCookie(w, c.opts.RefreshCookieName, pair.RefreshToken, c.opts.RefreshTTL)
}

func (c *Controller) clearSessionCookies(w http.ResponseWriter) {
	c.expireCookie(w, c.opts.AccessCookieName)
	c.expireCookie(w, c.opts.RefreshCookieName)
}

func (c *Controller) setCookie(w http.ResponseWriter, name, value string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     c.opts.CookiePath,
		Domain:   c.opts.CookieDomain,
		HttpOnly: true,
		Secure:   c.opts.CookieSecure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(ttl.Seconds()),
		Expires:  time.Now().Add(ttl).UTC(),
	})
}

func (c *Controller) expireCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     c.opts.CookiePath,
		Domain:   c.opts.CookieDomain,
		HttpOnly: true,
		Secure:   c.opts.CookieSecure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0).UTC(),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
