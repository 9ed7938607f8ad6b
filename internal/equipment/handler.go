package equipment

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cooltrack/cooltrack/internal/platform/httpx"
	"github.com/cooltrack/cooltrack/internal/policy"
	"github.com/cooltrack/cooltrack/internal/shared"
)

// Handler exposes the serialized equipment REST endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	policy   policy.Policy
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, p policy.Policy) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		policy:   p,
		validate: validator.New(),
	}
}

// MountRoutes registers equipment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/equipment/units", func(r chi.Router) {
		r.Get("/", h.listUnits)
		r.Post("/", h.addUnit)
		r.Get("/{id}", h.getUnit)
		r.Patch("/{id}", h.updateUnit)
		r.Delete("/{id}", h.deleteUnit)
		r.Post("/{serial}/install", h.installUnit)
		r.Post("/{serial}/return", h.returnUnit)
	})
}

type addUnitRequest struct {
	SerialNumber  string          `json:"serial_number" validate:"required"`
	ItemName      string          `json:"item_name" validate:"required"`
	Brand         string          `json:"brand"`
	Model         string          `json:"model"`
	Category      string          `json:"category"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	SalePrice     decimal.Decimal `json:"sale_price"`
	Notes         string          `json:"notes"`
}

func (h *Handler) addUnit(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	if err := h.policy.CanManageInventory(actor); err != nil {
		httpx.RespondError(w, err)
		return
	}

	var req addUnitRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	unit, err := h.service.AddUnit(r.Context(), AddUnitInput{
		SerialNumber:  req.SerialNumber,
		ItemName:      req.ItemName,
		Brand:         req.Brand,
		Model:         req.Model,
		Category:      req.Category,
		PurchasePrice: req.PurchasePrice,
		SalePrice:     req.SalePrice,
		Notes:         req.Notes,
	}, actor)
	if err != nil {
		h.logger.Error("add unit failed", "error", err, "serial", req.SerialNumber, "actor_id", actor.ID)
		httpx.RespondError(w, err)
		return
	}
	httpx.Created(w, unit)
}

type installRequest struct {
	JobID      uuid.UUID `json:"job_id" validate:"required"`
	CustomerID uuid.UUID `json:"customer_id" validate:"required"`
}

func (h *Handler) installUnit(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	serial := chi.URLParam(r, "serial")

	var req installRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	unit, err := h.service.Install(r.Context(), serial, req.JobID, req.CustomerID, actor)
	if err != nil {
		h.logger.Error("install unit failed", "error", err, "serial", serial, "actor_id", actor.ID)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, unit)
}

type returnUnitRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) returnUnit(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	serial := chi.URLParam(r, "serial")

	var req returnUnitRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}

	unit, err := h.service.Return(r.Context(), serial, req.Reason, actor)
	if err != nil {
		h.logger.Error("return unit failed", "error", err, "serial", serial, "actor_id", actor.ID)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, unit)
}

func (h *Handler) listUnits(w http.ResponseWriter, r *http.Request) {
	page, perPage := shared.PageFromQuery(r.URL.Query())
	units, total, err := h.service.ListUnits(r.Context(), ListFilter{
		Status:   Status(r.URL.Query().Get("status")),
		Category: r.URL.Query().Get("category"),
		Search:   r.URL.Query().Get("search"),
		Page:     page,
		PerPage:  perPage,
	})
	if err != nil {
		h.logger.Error("list units failed", "error", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"units":      units,
		"pagination": shared.NewPagination(page, perPage, total),
	})
}

func (h *Handler) getUnit(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid unit id")
		return
	}
	unit, err := h.service.GetUnit(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, unit)
}

type updateUnitRequest struct {
	ItemName      *string          `json:"item_name"`
	Brand         *string          `json:"brand"`
	Model         *string          `json:"model"`
	Category      *string          `json:"category"`
	PurchasePrice *decimal.Decimal `json:"purchase_price"`
	SalePrice     *decimal.Decimal `json:"sale_price"`
	Status        *string          `json:"status"`
	Notes         *string          `json:"notes"`
	Reason        string           `json:"reason"`
}

func (h *Handler) updateUnit(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	if err := h.policy.CanManageInventory(actor); err != nil {
		httpx.RespondError(w, err)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid unit id")
		return
	}

	var req updateUnitRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}

	patch := UnitPatch{
		ItemName:      req.ItemName,
		Brand:         req.Brand,
		Model:         req.Model,
		Category:      req.Category,
		PurchasePrice: req.PurchasePrice,
		SalePrice:     req.SalePrice,
		Notes:         req.Notes,
		Reason:        req.Reason,
	}
	if req.Status != nil {
		status := Status(*req.Status)
		patch.Status = &status
	}

	unit, err := h.service.UpdateUnit(r.Context(), id, patch, actor)
	if err != nil {
		h.logger.Error("update unit failed", "error", err, "unit_id", id, "actor_id", actor.ID)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, unit)
}

func (h *Handler) deleteUnit(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	if err := h.policy.CanManageInventory(actor); err != nil {
		httpx.RespondError(w, err)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid unit id")
		return
	}

	if err := h.service.DeleteUnit(r.Context(), id, actor); err != nil {
		h.logger.Error("delete unit failed", "error", err, "unit_id", id, "actor_id", actor.ID)
		httpx.RespondError(w, err)
		return
	}
	httpx.NoContent(w)
}
