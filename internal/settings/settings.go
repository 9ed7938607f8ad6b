// Package settings holds the single global configuration row that the
// job costing engine reads: labor rates, default revenues, technician
// payment mode and the approval/profit gates.
package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cooltrack/cooltrack/internal/shared"
)

// PaymentMode selects how technician payments are derived.
type PaymentMode string

const (
	PaymentFixed          PaymentMode = "fixed"
	PaymentHourly         PaymentMode = "hourly"
	PaymentPercentRevenue PaymentMode = "percent_revenue"
	PaymentPercentProfit  PaymentMode = "percent_profit"
)

// Valid reports whether the mode is one of the known values.
func (m PaymentMode) Valid() bool {
	switch m {
	case PaymentFixed, PaymentHourly, PaymentPercentRevenue, PaymentPercentProfit:
		return true
	}
	return false
}

// Settings is the global configuration. Map keys are job type names.
type Settings struct {
	DefaultHourlyRate      decimal.Decimal            `json:"default_hourly_rate"`
	HourlyRateByType       map[string]decimal.Decimal `json:"hourly_rate_by_type"`
	DefaultRevenueByType   map[string]decimal.Decimal `json:"default_revenue_by_type"`
	TechnicianPaymentMode  PaymentMode                `json:"technician_payment_mode"`
	TechnicianPaymentParam decimal.Decimal            `json:"technician_payment_param"`
	AllowNegativeProfit    bool                       `json:"allow_negative_profit"`
	RequireCostApproval    bool                       `json:"require_cost_approval"`
	UpdatedAt              time.Time                  `json:"updated_at"`
}

// Defaults returns the settings used before an admin has saved any.
func Defaults() Settings {
	return Settings{
		DefaultHourlyRate:      decimal.NewFromInt(25),
		HourlyRateByType:       map[string]decimal.Decimal{},
		DefaultRevenueByType:   map[string]decimal.Decimal{},
		TechnicianPaymentMode:  PaymentHourly,
		TechnicianPaymentParam: decimal.NewFromInt(15),
		AllowNegativeProfit:    false,
		RequireCostApproval:    true,
	}
}

// HourlyRate returns the per-type override when present, else the default.
func (s Settings) HourlyRate(jobType string) decimal.Decimal {
	if rate, ok := s.HourlyRateByType[jobType]; ok && rate.IsPositive() {
		return rate
	}
	return s.DefaultHourlyRate
}

// DefaultRevenue returns the configured default revenue for a job type.
func (s Settings) DefaultRevenue(jobType string) decimal.Decimal {
	return s.DefaultRevenueByType[jobType]
}

// RepositoryPort abstracts the settings store.
type RepositoryPort interface {
	Load(ctx context.Context) (*Settings, error)
	Save(ctx context.Context, s *Settings) error
}

// Service reads and updates the global settings.
type Service struct {
	repo   RepositoryPort
	logger *slog.Logger
}

// NewService builds a Service.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Get returns the saved settings, or the defaults when none exist yet.
func (s *Service) Get(ctx context.Context) (Settings, error) {
	loaded, err := s.repo.Load(ctx)
	if errors.Is(err, shared.ErrNotFound) {
		return Defaults(), nil
	}
	if err != nil {
		return Settings{}, err
	}
	return *loaded, nil
}

// Update validates and saves the settings. Admin-only at the handler.
func (s *Service) Update(ctx context.Context, in Settings) (Settings, error) {
	if !in.TechnicianPaymentMode.Valid() {
		return Settings{}, fmt.Errorf("%w: unknown payment mode %q", shared.ErrValidation, in.TechnicianPaymentMode)
	}
	if in.DefaultHourlyRate.IsNegative() || in.TechnicianPaymentParam.IsNegative() {
		return Settings{}, fmt.Errorf("%w: rates must not be negative", shared.ErrValidation)
	}
	if in.HourlyRateByType == nil {
		in.HourlyRateByType = map[string]decimal.Decimal{}
	}
	if in.DefaultRevenueByType == nil {
		in.DefaultRevenueByType = map[string]decimal.Decimal{}
	}
	in.UpdatedAt = time.Now().UTC()
	if err := s.repo.Save(ctx, &in); err != nil {
		return Settings{}, err
	}
	return in, nil
}
