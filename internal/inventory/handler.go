package inventory

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cooltrack/cooltrack/internal/platform/httpx"
	"github.com/cooltrack/cooltrack/internal/policy"
	"github.com/cooltrack/cooltrack/internal/shared"
)

// Handler exposes the grouped inventory REST endpoints.
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

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/inventory/items", func(r chi.Router) {
		r.Get("/", h.listItems)
		r.Post("/", h.addStock)
		r.Get("/low-stock", h.lowStock)
		r.Post("/availability", h.checkAvailability)
		r.Post("/use", h.useStock)
		r.Post("/return", h.returnStock)
		r.Get("/{id}", h.getItem)
		r.Patch("/{id}", h.updateItem)
		r.Delete("/{id}", h.deleteItem)
	})
}

type addStockRequest struct {
	ItemName      string          `json:"item_name" validate:"required"`
	Category      string          `json:"category"`
	Unit          string          `json:"unit"`
	Quantity      decimal.Decimal `json:"quantity"`
	Length        decimal.Decimal `json:"length"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	Supplier      string          `json:"supplier"`
	PurchaseDate  *time.Time      `json:"purchase_date"`
	ExpiryDate    *time.Time      `json:"expiry_date"`
	BatchNumber   string          `json:"batch_number"`
	Brand         string          `json:"brand"`
	Location      string          `json:"location"`
	Notes         string          `json:"notes"`
	MinValue      decimal.Decimal `json:"min_value"`
}

func (h *Handler) addStock(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	if err := h.policy.CanManageInventory(actor); err != nil {
		httpx.RespondError(w, err)
		return
	}

	var req addStockRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	input := AddStockInput{
		ItemName:      req.ItemName,
		Category:      req.Category,
		Unit:          Unit(req.Unit),
		Quantity:      req.Quantity,
		Length:        req.Length,
		PurchasePrice: req.PurchasePrice,
		Supplier:      req.Supplier,
		ExpiryDate:    req.ExpiryDate,
		BatchNumber:   req.BatchNumber,
		Brand:         req.Brand,
		Location:      req.Location,
		Notes:         req.Notes,
		MinValue:      req.MinValue,
	}
	if req.PurchaseDate != nil {
		input.PurchaseDate = *req.PurchaseDate
	}

	item, err := h.service.AddStock(r.Context(), input, actor)
	if err != nil {
		h.logger.Error("add stock failed", "error", err, "item", req.ItemName, "actor_id", actor.ID)
		httpx.RespondError(w, err)
		return
	}
	httpx.Created(w, item)
}

type useStockRequest struct {
	ItemName  string          `json:"item_name" validate:"required"`
	Quantity  decimal.Decimal `json:"quantity"`
	Length    decimal.Decimal `json:"length"`
	ValueUsed decimal.Decimal `json:"value_used"`
	JobID     *uuid.UUID      `json:"job_id"`
	Reason    string          `json:"reason"`
}

func (h *Handler) useStock(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}

	var req useStockRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	result, err := h.service.UseStock(r.Context(), UseStockInput{
		ItemName:  req.ItemName,
		Quantity:  req.Quantity,
		Length:    req.Length,
		ValueUsed: req.ValueUsed,
		JobID:     req.JobID,
		Reason:    req.Reason,
	}, actor)
	if err != nil {
		h.logger.Error("use stock failed", "error", err, "item", req.ItemName, "actor_id", actor.ID)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

type returnStockRequest struct {
	ItemName  string          `json:"item_name" validate:"required"`
	LotID     uuid.UUID       `json:"lot_id" validate:"required"`
	Quantity  decimal.Decimal `json:"quantity"`
	Length    decimal.Decimal `json:"length"`
	ValueUsed decimal.Decimal `json:"value_used"`
	JobID     *uuid.UUID      `json:"job_id"`
	Reason    string          `json:"reason"`
}

func (h *Handler) returnStock(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}

	var req returnStockRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	item, err := h.service.ReturnStock(r.Context(), ReturnStockInput{
		ItemName:  req.ItemName,
		LotID:     req.LotID,
		Quantity:  req.Quantity,
		Length:    req.Length,
		ValueUsed: req.ValueUsed,
		JobID:     req.JobID,
		Reason:    req.Reason,
	}, actor)
	if err != nil {
		h.logger.Error("return stock failed", "error", err, "item", req.ItemName, "actor_id", actor.ID)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

type availabilityRequest struct {
	ItemName string          `json:"item_name" validate:"required"`
	Required decimal.Decimal `json:"required"`
}

func (h *Handler) checkAvailability(w http.ResponseWriter, r *http.Request) {
	var req availabilityRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	availability, err := h.service.CheckAvailability(r.Context(), req.ItemName, req.Required)
	if err != nil {
		h.logger.Error("availability check failed", "error", err, "item", req.ItemName)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, availability)
}

func (h *Handler) lowStock(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.LowStockItems(r.Context())
	if err != nil {
		h.logger.Error("low stock listing failed", "error", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) listItems(w http.ResponseWriter, r *http.Request) {
	page, perPage := shared.PageFromQuery(r.URL.Query())
	filter := ListFilter{
		Search:   r.URL.Query().Get("search"),
		Category: r.URL.Query().Get("category"),
		Page:     page,
		PerPage:  perPage,
	}

	items, total, err := h.service.ListItems(r.Context(), filter)
	if err != nil {
		h.logger.Error("list items failed", "error", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"items":      items,
		"pagination": shared.NewPagination(page, perPage, total),
	})
}

func (h *Handler) getItem(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid item id")
		return
	}
	item, err := h.service.GetItem(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

type updateItemRequest struct {
	Name        *string          `json:"name"`
	Category    *string          `json:"category"`
	MinValue    *decimal.Decimal `json:"min_value"`
	LotValue    *decimal.Decimal `json:"lot_value"`
	LotPrice    *decimal.Decimal `json:"lot_price"`
	LotSupplier *string          `json:"lot_supplier"`
	LotBatch    *string          `json:"lot_batch"`
	LotBrand    *string          `json:"lot_brand"`
	LotLocation *string          `json:"lot_location"`
	LotNotes    *string          `json:"lot_notes"`
	Reason      string           `json:"reason"`
}

func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request) {
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
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid item id")
		return
	}

	var req updateItemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}

	item, err := h.service.UpdateItem(r.Context(), id, ItemPatch{
		Name:        req.Name,
		Category:    req.Category,
		MinValue:    req.MinValue,
		LotValue:    req.LotValue,
		LotPrice:    req.LotPrice,
		LotSupplier: req.LotSupplier,
		LotBatch:    req.LotBatch,
		LotBrand:    req.LotBrand,
		LotLocation: req.LotLocation,
		LotNotes:    req.LotNotes,
		Reason:      req.Reason,
	}, actor)
	if err != nil {
		h.logger.Error("update item failed", "error", err, "item_id", id, "actor_id", actor.ID)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) deleteItem(w http.ResponseWriter, r *http.Request) {
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
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid item id")
		return
	}

	if err := h.service.DeleteItem(r.Context(), id, actor); err != nil {
		h.logger.Error("delete item failed", "error", err, "item_id", id, "actor_id", actor.ID)
		httpx.RespondError(w, err)
		return
	}
	httpx.NoContent(w)
}
