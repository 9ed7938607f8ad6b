// Package jobcost owns field-service jobs: material consumption, labor,
// revenue, costing approval and the job status machine. Every derived
// total is recomputed together whenever a contributing value changes.
package jobcost

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cooltrack/cooltrack/internal/settings"
)

// JobType categorizes the work performed.
type JobType string

const (
	TypeInstallation JobType = "installation"
	TypeRepair       JobType = "repair"
	TypeMaintenance  JobType = "maintenance"
	TypeInspection   JobType = "inspection"
)

// Valid reports whether the job type is one of the known values.
func (t JobType) Valid() bool {
	switch t {
	case TypeInstallation, TypeRepair, TypeMaintenance, TypeInspection:
		return true
	}
	return false
}

// Status is the lifecycle state of a job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusPaid       Status = "paid"
)

// Valid reports whether the status is one of the known values.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusCancelled, StatusPaid:
		return true
	}
	return false
}

var transitions = map[Status][]Status{
	StatusPending:    {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusCancelled},
	StatusCompleted:  {StatusPaid},
	StatusCancelled:  {},
	StatusPaid:       {},
}

// CanTransitionTo reports whether the move is legal in the status machine.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Closed reports whether the job no longer accepts cost mutations.
func (s Status) Closed() bool {
	return s == StatusCompleted || s == StatusPaid || s == StatusCancelled
}

// MaterialKind distinguishes the two inventory engines.
type MaterialKind string

const (
	MaterialGrouped    MaterialKind = "grouped"
	MaterialSerialized MaterialKind = "serialized"
)

// LotUsage records which lot a grouped consumption came from, so removal
// can return stock to the exact lot at the exact cost.
type LotUsage struct {
	LotID    uuid.UUID       `json:"lot_id"`
	Amount   decimal.Decimal `json:"amount"`
	UnitCost decimal.Decimal `json:"unit_cost"`
}

// MaterialLine is a denormalized snapshot of one consumed material.
type MaterialLine struct {
	ID           uuid.UUID       `json:"id"`
	Kind         MaterialKind    `json:"kind"`
	ItemName     string          `json:"item_name"`
	SerialNumber string          `json:"serial_number,omitempty"`
	Unit         string          `json:"unit,omitempty"`
	Amount       decimal.Decimal `json:"amount"`
	UnitCost     decimal.Decimal `json:"unit_cost"`
	TotalCost    decimal.Decimal `json:"total_cost"`
	LotsUsed     []LotUsage      `json:"lots_used,omitempty"`
	AddedBy      int64           `json:"added_by"`
	AddedAt      time.Time       `json:"added_at"`
}

// CostLine is an ad-hoc additional cost on a job.
type CostLine struct {
	ID          uuid.UUID       `json:"id"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	AddedBy     int64           `json:"added_by"`
	AddedAt     time.Time       `json:"added_at"`
}

// CostingApproval freezes the financial picture at approval time.
type CostingApproval struct {
	IsApproved        bool            `json:"is_approved"`
	ApprovedBy        int64           `json:"approved_by,omitempty"`
	ApprovedAt        *time.Time      `json:"approved_at,omitempty"`
	Notes             string          `json:"notes,omitempty"`
	ProfitAtApproval  decimal.Decimal `json:"profit_at_approval"`
	CostAtApproval    decimal.Decimal `json:"cost_at_approval"`
	RevenueAtApproval decimal.Decimal `json:"revenue_at_approval"`
}

// Attachment is an uploaded file linked to the job.
type Attachment struct {
	ID          uuid.UUID `json:"id"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	URL         string    `json:"url"`
	UploadedBy  int64     `json:"uploaded_by"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// Job is one unit of field work with its full costing state.
type Job struct {
	ID                   uuid.UUID  `json:"id"`
	JobNumber            string     `json:"job_number"`
	CustomerID           uuid.UUID  `json:"customer_id"`
	CustomerName         string     `json:"customer_name"`
	CustomerPhone        string     `json:"customer_phone,omitempty"`
	CustomerAddress      string     `json:"customer_address,omitempty"`
	Type                 JobType    `json:"type"`
	Status               Status     `json:"status"`
	AssignedTechnicianID int64      `json:"assigned_technician_id"`
	Description          string     `json:"description,omitempty"`
	ScheduledAt          time.Time  `json:"scheduled_at"`
	StartedAt            *time.Time `json:"started_at,omitempty"`
	CompletedAt          *time.Time `json:"completed_at,omitempty"`
	PaidAt               *time.Time `json:"paid_at,omitempty"`

	Materials         []MaterialLine  `json:"materials"`
	LaborHours        decimal.Decimal `json:"labor_hours"`
	LaborRate         decimal.Decimal `json:"labor_rate"`
	LaborRateOverride bool            `json:"labor_rate_override"`
	LaborCost         decimal.Decimal `json:"labor_cost"`
	AdditionalCosts   []CostLine      `json:"additional_costs"`

	TotalMaterialCost decimal.Decimal `json:"total_material_cost"`
	TotalCost         decimal.Decimal `json:"total_cost"`
	TotalRevenue      decimal.Decimal `json:"total_revenue"`
	Profit            decimal.Decimal `json:"profit"`

	TechnicianPayment         decimal.Decimal `json:"technician_payment"`
	TechnicianPaymentOverride bool            `json:"technician_payment_override"`

	CostingApproval CostingApproval `json:"costing_approval"`
	Attachments     []Attachment    `json:"attachments,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Recalculate refreshes every derived total from its inputs. Called on
// every mutating save so no field is ever stale.
func (j *Job) Recalculate(cfg settings.Settings) {
	material := decimal.Zero
	for _, line := range j.Materials {
		material = material.Add(line.TotalCost)
	}
	j.TotalMaterialCost = material

	j.LaborCost = j.LaborHours.Mul(j.LaborRate)

	additional := decimal.Zero
	for _, line := range j.AdditionalCosts {
		additional = additional.Add(line.Amount)
	}

	j.TotalCost = j.TotalMaterialCost.Add(j.LaborCost).Add(additional)
	j.Profit = j.TotalRevenue.Sub(j.TotalCost)

	if !j.TechnicianPaymentOverride {
		j.TechnicianPayment = derivePayment(j, cfg)
	}
}

func derivePayment(j *Job, cfg settings.Settings) decimal.Decimal {
	param := cfg.TechnicianPaymentParam
	switch cfg.TechnicianPaymentMode {
	case settings.PaymentFixed:
		return param
	case settings.PaymentHourly:
		return j.LaborHours.Mul(param)
	case settings.PaymentPercentRevenue:
		return j.TotalRevenue.Mul(param).Div(decimal.NewFromInt(100))
	case settings.PaymentPercentProfit:
		return j.Profit.Mul(param).Div(decimal.NewFromInt(100))
	}
	return decimal.Zero
}

// FindMaterial returns the material line with the given id and its index.
func (j *Job) FindMaterial(id uuid.UUID) (*MaterialLine, int) {
	for i := range j.Materials {
		if j.Materials[i].ID == id {
			return &j.Materials[i], i
		}
	}
	return nil, -1
}

// FindAdditionalCost returns the cost line with the given id and its index.
func (j *Job) FindAdditionalCost(id uuid.UUID) (*CostLine, int) {
	for i := range j.AdditionalCosts {
		if j.AdditionalCosts[i].ID == id {
			return &j.AdditionalCosts[i], i
		}
	}
	return nil, -1
}

// FormatJobNumber renders the sequential per-year job number.
func FormatJobNumber(year, seq int) string {
	return fmt.Sprintf("JOB-%d-%05d", year, seq)
}

// CreateJobInput carries the fields for job creation.
type CreateJobInput struct {
	CustomerID           uuid.UUID
	Type                 JobType
	AssignedTechnicianID int64
	Description          string
	ScheduledAt          time.Time
	Revenue              *decimal.Decimal
}

// MaterialInput describes one material to consume onto a job.
type MaterialInput struct {
	Kind         MaterialKind
	ItemName     string
	SerialNumber string
	Quantity     decimal.Decimal
	Length       decimal.Decimal
	ValueUsed    decimal.Decimal
}

// CostInput describes an additional cost line.
type CostInput struct {
	Description string
	Amount      decimal.Decimal
}

// ListFilter narrows job listings.
type ListFilter struct {
	Status       Status
	Type         JobType
	TechnicianID int64
	CustomerID   *uuid.UUID
	Page         int
	PerPage      int
}
