package ledger

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/cooltrack/cooltrack/internal/platform/httpx"
	"github.com/cooltrack/cooltrack/internal/policy"
	"github.com/cooltrack/cooltrack/internal/shared"
)

// Handler exposes the read side of the ledger.
type Handler struct {
	logger *slog.Logger
	store  *Store
	policy policy.Policy
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, store *Store, p policy.Policy) *Handler {
	return &Handler{logger: logger, store: store, policy: p}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/ledger", h.listEntries)
}

func (h *Handler) listEntries(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	if err := h.policy.CanViewLedger(actor); err != nil {
		httpx.RespondError(w, err)
		return
	}

	filter, err := filterFromQuery(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}

	entries, err := h.store.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("ledger listing failed", "error", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func filterFromQuery(r *http.Request) (Filter, error) {
	q := r.URL.Query()
	f := Filter{
		TransactionType: TransactionType(q.Get("transaction_type")),
		InventoryType:   InventoryType(q.Get("inventory_type")),
		ReferenceID:     q.Get("reference_id"),
	}
	if raw := q.Get("item_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return f, err
		}
		f.ItemID = &id
	}
	if raw := q.Get("from"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return f, err
		}
		f.From = ts
	}
	if raw := q.Get("to"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return f, err
		}
		f.To = ts
	}
	if raw := q.Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			f.Limit = n
		}
	}
	if raw := q.Get("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			f.Offset = n
		}
	}
	return f, nil
}
