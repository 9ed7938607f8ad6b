package settings

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cooltrack/cooltrack/internal/platform/httpx"
	"github.com/cooltrack/cooltrack/internal/policy"
	"github.com/cooltrack/cooltrack/internal/shared"
)

// Handler exposes the settings endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	policy  policy.Policy
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, p policy.Policy) *Handler {
	return &Handler{logger: logger, service: service, policy: p}
}

// MountRoutes registers settings routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/settings", h.getSettings)
	r.Put("/settings", h.updateSettings)
}

func (h *Handler) getSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.service.Get(r.Context())
	if err != nil {
		h.logger.Error("get settings failed", "error", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, s)
}

func (h *Handler) updateSettings(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	if err := h.policy.CanManageSettings(actor); err != nil {
		httpx.RespondError(w, err)
		return
	}

	var in Settings
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}

	saved, err := h.service.Update(r.Context(), in)
	if err != nil {
		h.logger.Error("update settings failed", "error", err, "actor_id", actor.ID)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, saved)
}
