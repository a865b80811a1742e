package admin

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"gopay-be/internal/auth"
	"gopay-be/internal/logger"
	"gopay-be/internal/middleware"
	"gopay-be/internal/payment"
	"gopay-be/internal/utils"
)

const (
	maxSettingsBody = 32 << 10
	defaultTokenTTL = 12 * time.Hour
)

// Credentials configure the single operator account. Login is disabled
// when Email or PasswordHash is empty.
type Credentials struct {
	Email        string
	PasswordHash string // bcrypt
	Secret       []byte
	TokenTTL     time.Duration
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

type Settings struct {
	Gateway string              `json:"gateway"`
	Fields  []payment.FormField `json:"fields"`
	Values  map[string]string   `json:"values"`
}

// Handler exposes gateway settings to administrators. Secrets are always
// returned redacted.
type Handler struct {
	gateways *payment.Registry
	repo     payment.Repository
	creds    Credentials
	log      *zap.Logger
}

// NewHandler builds the settings handler. repo may be nil, in which case
// updates only live until restart.
func NewHandler(gateways *payment.Registry, repo payment.Repository, creds Credentials, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	if creds.TokenTTL <= 0 {
		creds.TokenTTL = defaultTokenTTL
	}
	return &Handler{gateways: gateways, repo: repo, creds: creds, log: log}
}

// Routes mounts login and the settings endpoints behind admin authentication.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/admin/login", h.Login)
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(h.creds.Secret, h.log))
		r.Use(middleware.RequireRole(utils.RoleAdmin))
		r.Get("/admin/gateways/{gateway}/settings", h.GetSettings)
		r.Put("/admin/gateways/{gateway}/settings", h.UpdateSettings)
	})
}

// Login exchanges operator credentials for an admin token.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if h.creds.Email == "" || h.creds.PasswordHash == "" {
		utils.WriteJSONError(w, "login is disabled", http.StatusNotFound)
		return
	}

	var req loginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSettingsBody)).Decode(&req); err != nil {
		utils.WriteJSONError(w, "invalid login body", http.StatusBadRequest)
		return
	}

	emailOK := strings.EqualFold(strings.TrimSpace(req.Email), h.creds.Email)
	if !auth.CheckPasswordHash(req.Password, h.creds.PasswordHash) || !emailOK {
		logger.FromCtx(r.Context(), h.log).Warn("admin login failed", zap.String("ip", utils.ClientIP(r)))
		utils.WriteJSONError(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	tok, err := auth.IssueToken(h.creds.Secret, "admin", h.creds.Email, utils.RoleAdmin, h.creds.TokenTTL)
	if err != nil {
		logger.FromCtx(r.Context(), h.log).Error("failed to issue token", zap.Error(err))
		utils.WriteJSONError(w, "internal error", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, auth.TokenCookie(tok, h.creds.TokenTTL))
	utils.WriteJSON(w, http.StatusOK, loginResponse{
		AccessToken: tok,
		ExpiresIn:   int64(h.creds.TokenTTL.Seconds()),
	})
}

func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	gw, err := h.gateways.Get(chi.URLParam(r, "gateway"))
	if err != nil {
		utils.WriteJSONError(w, "unknown payment gateway", http.StatusNotFound)
		return
	}
	utils.WriteJSON(w, http.StatusOK, settingsOf(gw))
}

func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	gatewayID := chi.URLParam(r, "gateway")
	userID, _ := utils.GetUserIDFromContext(ctx)
	log := logger.FromCtx(ctx, h.log).With(
		zap.String("gateway", gatewayID),
		zap.String("admin_id", userID),
	)

	gw, err := h.gateways.Get(gatewayID)
	if err != nil {
		utils.WriteJSONError(w, "unknown payment gateway", http.StatusNotFound)
		return
	}

	var form map[string]string
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSettingsBody))
	if err := dec.Decode(&form); err != nil {
		utils.WriteJSONError(w, "invalid settings body", http.StatusBadRequest)
		return
	}

	merged := payment.MergeSecrets(form, gw.Options())
	opts, err := payment.OptionsFromForm(merged)
	if err != nil {
		utils.WriteJSONError(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	if err := gw.Reload(opts); err != nil {
		if errors.Is(err, payment.ErrConfig) {
			utils.WriteJSONError(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		log.Error("failed to reload gateway", zap.Error(err))
		utils.WriteJSONError(w, "internal error", http.StatusInternalServerError)
		return
	}

	if h.repo != nil {
		if err := h.repo.SaveGatewaySettings(ctx, gatewayID, gw.Options().Form()); err != nil {
			log.Error("failed to persist gateway settings", zap.Error(err))
			utils.WriteJSONError(w, "settings applied but not saved", http.StatusInternalServerError)
			return
		}
	}

	log.Info("gateway settings updated")
	utils.WriteJSON(w, http.StatusOK, settingsOf(gw))
}

func settingsOf(gw payment.Gateway) Settings {
	return Settings{
		Gateway: gw.ID(),
		Fields:  gw.FormFields(),
		Values:  payment.RedactForm(gw.Options().Form()),
	}
}
