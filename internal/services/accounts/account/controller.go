package account

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/streampulse/accounts/internal/domain/account"
	authsvc "github.com/streampulse/accounts/internal/services/accounts/auth"
)

const maxUploadBytes = 32 << 20

type Controller struct {
	log *zap.Logger
	uc  *Usecase
}

func NewController(uc *Usecase, log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{log: log, uc: uc}
}

func (c *Controller) Routes(mux *http.ServeMux, gate func(http.Handler) http.Handler) {
	mux.HandleFunc("POST /v1/accounts/register", c.register)
	mux.Handle("GET /v1/accounts/me", gate(http.HandlerFunc(c.me)))
	mux.HandleFunc("GET /v1/accounts/{username}", c.profile)
}

func (c *Controller) register(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		c.writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	in := RegisterInput{
		Username: r.FormValue("username"),
		Email:    r.FormValue("email"),
		FullName: r.FormValue("fullName"),
		Password: r.FormValue("password"),
	}

	if f, fh, err := r.FormFile("avatar"); err == nil {
		defer f.Close()
		in.Avatar = &Upload{Content: f, ContentType: fh.Header.Get("Content-Type")}
	}
	if f, fh, err := r.FormFile("coverImage"); err == nil {
		defer f.Close()
		in.CoverImage = &Upload{Content: f, ContentType: fh.Header.Get("Content-Type")}
	}

	view, err := c.uc.Register(r.Context(), in)
	if err != nil {
		c.mapErr(w, err)
		return
	}
	c.writeJSON(w, http.StatusCreated, map[string]any{"account": view})
}

func (c *Controller) me(w http.ResponseWriter, r *http.Request) {
	view, ok := authsvc.IdentityFromCtx(r.Context())
	if !ok {
		c.writeError(w, http.StatusUnauthorized, "Unauthorized request")
		return
	}
	c.writeJSON(w, http.StatusOK, map[string]any{"account": view})
}

func (c *Controller) profile(w http.ResponseWriter, r *http.Request) {
	view, err := c.uc.ByUsername(r.Context(), r.PathValue("username"))
	if err != nil {
		c.mapErr(w, err)
		return
	}
	c.writeJSON(w, http.StatusOK, map[string]any{"account": view})
}

func (c *Controller) mapErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, account.ErrInvalid):
		c.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, account.ErrDuplicate):
		c.writeError(w, http.StatusConflict, account.ErrDuplicate.Error())
	case errors.Is(err, account.ErrNotFound):
		c.writeError(w, http.StatusNotFound, account.ErrNotFound.Error())
	default:
		c.log.Error("account request failed", zap.Error(err))
		c.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (c *Controller) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (c *Controller) writeError(w http.ResponseWriter, code int, msg string) {
	c.writeJSON(w, code, map[string]string{"error": msg})
}
