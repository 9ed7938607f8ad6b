package jobcost

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cooltrack/cooltrack/internal/platform/httpx"
	"github.com/cooltrack/cooltrack/internal/shared"
)

const maxAttachmentSize = 10 << 20

// Handler exposes the job costing REST endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers job routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/jobs", func(r chi.Router) {
		r.Get("/", h.listJobs)
		r.Post("/", h.createJob)
		r.Get("/{id}", h.getJob)
		r.Post("/{id}/materials", h.addMaterials)
		r.Patch("/{id}/materials/{materialID}", h.editMaterial)
		r.Delete("/{id}/materials/{materialID}", h.removeMaterial)
		r.Put("/{id}/labor", h.updateLabor)
		r.Put("/{id}/labor-rate", h.updateLaborRate)
		r.Put("/{id}/revenue", h.updateRevenue)
		r.Put("/{id}/technician-payment", h.updateTechnicianPayment)
		r.Post("/{id}/approve-costing", h.approveCosting)
		r.Put("/{id}/status", h.updateStatus)
		r.Post("/{id}/costs", h.addCost)
		r.Delete("/{id}/costs/{costID}", h.removeCost)
		r.Post("/{id}/attachments", h.attachFile)
	})
}

type createJobRequest struct {
	CustomerID           uuid.UUID        `json:"customer_id" validate:"required"`
	Type                 string           `json:"type" validate:"required"`
	AssignedTechnicianID int64            `json:"assigned_technician_id" validate:"required"`
	Description          string           `json:"description"`
	ScheduledAt          *time.Time       `json:"scheduled_at"`
	Revenue              *decimal.Decimal `json:"revenue"`
}

func (h *Handler) createJob(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}

	var req createJobRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	input := CreateJobInput{
		CustomerID:           req.CustomerID,
		Type:                 JobType(req.Type),
		AssignedTechnicianID: req.AssignedTechnicianID,
		Description:          req.Description,
		Revenue:              req.Revenue,
	}
	if req.ScheduledAt != nil {
		input.ScheduledAt = *req.ScheduledAt
	}

	job, err := h.service.CreateJob(r.Context(), input, actor)
	if err != nil {
		h.logger.Error("create job failed", "error", err, "actor_id", actor.ID)
		httpx.RespondError(w, err)
		return
	}
	httpx.Created(w, job)
}

type materialRequest struct {
	Kind         string          `json:"kind" validate:"required"`
	ItemName     string          `json:"item_name"`
	SerialNumber string          `json:"serial_number"`
	Quantity     decimal.Decimal `json:"quantity"`
	Length       decimal.Decimal `json:"length"`
	ValueUsed    decimal.Decimal `json:"value_used"`
}

type addMaterialsRequest struct {
	Materials []materialRequest `json:"materials" validate:"required,min=1,dive"`
}

func (h *Handler) addMaterials(w http.ResponseWriter, r *http.Request) {
	actor, jobID, ok := h.actorAndJobID(w, r)
	if !ok {
		return
	}

	var req addMaterialsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	lines := make([]MaterialInput, 0, len(req.Materials))
	for _, m := range req.Materials {
		lines = append(lines, MaterialInput{
			Kind:         MaterialKind(m.Kind),
			ItemName:     m.ItemName,
			SerialNumber: m.SerialNumber,
			Quantity:     m.Quantity,
			Length:       m.Length,
			ValueUsed:    m.ValueUsed,
		})
	}

	job, err := h.service.AddMaterials(r.Context(), jobID, lines, actor)
	if err != nil {
		h.logger.Error("add materials failed", "error", err, "job_id", jobID, "actor_id", actor.ID)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, job)
}

type editMaterialRequest struct {
	Amount decimal.Decimal `json:"amount" validate:"required"`
}

func (h *Handler) editMaterial(w http.ResponseWriter, r *http.Request) {
	actor, jobID, ok := h.actorAndJobID(w, r)
	if !ok {
		return
	}
	materialID, err := uuid.Parse(chi.URLParam(r, "materialID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid material id")
		return
	}

	var req editMaterialRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}

	job, err := h.service.EditMaterial(r.Context(), jobID, materialID, req.Amount, actor)
	if err != nil {
		h.logger.Error("edit material failed", "error", err, "job_id", jobID, "actor_id", actor.ID)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, job)
}

func (h *Handler) removeMaterial(w http.ResponseWriter, r *http.Request) {
	actor, jobID, ok := h.actorAndJobID(w, r)
	if !ok {
		return
	}
	materialID, err := uuid.Parse(chi.URLParam(r, "materialID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid material id")
		return
	}

	job, err := h.service.RemoveMaterial(r.Context(), jobID, materialID, actor)
	if err != nil {
		h.logger.Error("remove material failed", "error", err, "job_id", jobID, "actor_id", actor.ID)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, job)
}

type amountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

func (h *Handler) updateLabor(w http.ResponseWriter, r *http.Request) {
	h.amountUpdate(w, r, "update labor failed", func(ctx *http.Request, jobID uuid.UUID, amount decimal.Decimal, actor shared.Actor) (*Job, error) {
		return h.service.UpdateLabor(ctx.Context(), jobID, amount, actor)
	})
}

func (h *Handler) updateLaborRate(w http.ResponseWriter, r *http.Request) {
	h.amountUpdate(w, r, "update labor rate failed", func(ctx *http.Request, jobID uuid.UUID, amount decimal.Decimal, actor shared.Actor) (*Job, error) {
		return h.service.UpdateLaborRate(ctx.Context(), jobID, amount, actor)
	})
}

func (h *Handler) updateRevenue(w http.ResponseWriter, r *http.Request) {
	h.amountUpdate(w, r, "update revenue failed", func(ctx *http.Request, jobID uuid.UUID, amount decimal.Decimal, actor shared.Actor) (*Job, error) {
		return h.service.UpdateRevenue(ctx.Context(), jobID, amount, actor)
	})
}

func (h *Handler) updateTechnicianPayment(w http.ResponseWriter, r *http.Request) {
	h.amountUpdate(w, r, "update technician payment failed", func(ctx *http.Request, jobID uuid.UUID, amount decimal.Decimal, actor shared.Actor) (*Job, error) {
		return h.service.UpdateTechnicianPayment(ctx.Context(), jobID, amount, actor)
	})
}

func (h *Handler) amountUpdate(w http.ResponseWriter, r *http.Request, logMsg string,
	call func(*http.Request, uuid.UUID, decimal.Decimal, shared.Actor) (*Job, error)) {
	actor, jobID, ok := h.actorAndJobID(w, r)
	if !ok {
		return
	}

	var req amountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}

	job, err := call(r, jobID, req.Amount, actor)
	if err != nil {
		h.logger.Error(logMsg, "error", err, "job_id", jobID, "actor_id", actor.ID)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, job)
}

type approveCostingRequest struct {
	Notes string `json:"notes"`
}

func (h *Handler) approveCosting(w http.ResponseWriter, r *http.Request) {
	actor, jobID, ok := h.actorAndJobID(w, r)
	if !ok {
		return
	}

	var req approveCostingRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}

	job, err := h.service.ApproveCosting(r.Context(), jobID, req.Notes, actor)
	if err != nil {
		h.logger.Error("approve costing failed", "error", err, "job_id", jobID, "actor_id", actor.ID)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, job)
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	actor, jobID, ok := h.actorAndJobID(w, r)
	if !ok {
		return
	}

	var req updateStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	job, err := h.service.UpdateStatus(r.Context(), jobID, Status(req.Status), actor)
	if err != nil {
		h.logger.Error("update status failed", "error", err, "job_id", jobID, "actor_id", actor.ID)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, job)
}

type addCostRequest struct {
	Description string          `json:"description" validate:"required"`
	Amount      decimal.Decimal `json:"amount" validate:"required"`
}

func (h *Handler) addCost(w http.ResponseWriter, r *http.Request) {
	actor, jobID, ok := h.actorAndJobID(w, r)
	if !ok {
		return
	}

	var req addCostRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	job, err := h.service.AddAdditionalCost(r.Context(), jobID, CostInput{
		Description: req.Description,
		Amount:      req.Amount,
	}, actor)
	if err != nil {
		h.logger.Error("add cost failed", "error", err, "job_id", jobID, "actor_id", actor.ID)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, job)
}

func (h *Handler) removeCost(w http.ResponseWriter, r *http.Request) {
	actor, jobID, ok := h.actorAndJobID(w, r)
	if !ok {
		return
	}
	costID, err := uuid.Parse(chi.URLParam(r, "costID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid cost id")
		return
	}

	job, err := h.service.RemoveAdditionalCost(r.Context(), jobID, costID, actor)
	if err != nil {
		h.logger.Error("remove cost failed", "error", err, "job_id", jobID, "actor_id", actor.ID)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, job)
}

func (h *Handler) attachFile(w http.ResponseWriter, r *http.Request) {
	actor, jobID, ok := h.actorAndJobID(w, r)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(maxAttachmentSize); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed multipart body")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "file field is required")
		return
	}
	defer file.Close()

	body, err := io.ReadAll(io.LimitReader(file, maxAttachmentSize))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "could not read file")
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	job, err := h.service.AttachFile(r.Context(), jobID, header.Filename, contentType, body, actor)
	if err != nil {
		h.logger.Error("attach file failed", "error", err, "job_id", jobID, "actor_id", actor.ID)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, job)
}

func (h *Handler) getJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid job id")
		return
	}
	job, err := h.service.GetJob(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, job)
}

func (h *Handler) listJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, perPage := shared.PageFromQuery(q)
	filter := ListFilter{
		Status:  Status(q.Get("status")),
		Type:    JobType(q.Get("type")),
		Page:    page,
		PerPage: perPage,
	}
	if raw := q.Get("technician_id"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			filter.TechnicianID = id
		}
	}
	if raw := q.Get("customer_id"); raw != "" {
		if id, err := uuid.Parse(raw); err == nil {
			filter.CustomerID = &id
		}
	}

	jobs, total, err := h.service.ListJobs(r.Context(), filter)
	if err != nil {
		h.logger.Error("list jobs failed", "error", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"jobs":       jobs,
		"pagination": shared.NewPagination(page, perPage, total),
	})
}

func (h *Handler) actorAndJobID(w http.ResponseWriter, r *http.Request) (shared.Actor, uuid.UUID, bool) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return shared.Actor{}, uuid.Nil, false
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid job id")
		return shared.Actor{}, uuid.Nil, false
	}
	return actor, id, true
}
