package settings

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/cooltrack/cooltrack/internal/shared"
)

type fakeRepo struct {
	saved *Settings
}

func (f *fakeRepo) Load(_ context.Context) (*Settings, error) {
	if f.saved == nil {
		return nil, shared.ErrNotFound
	}
	return f.saved, nil
}

func (f *fakeRepo) Save(_ context.Context, s *Settings) error {
	f.saved = s
	return nil
}

func newTestService(repo *fakeRepo) *Service {
	return NewService(repo, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestGetFallsBackToDefaults(t *testing.T) {
	svc := newTestService(&fakeRepo{})

	s, err := svc.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, PaymentHourly, s.TechnicianPaymentMode)
	require.True(t, s.RequireCostApproval)
}

func TestUpdateRejectsUnknownMode(t *testing.T) {
	svc := newTestService(&fakeRepo{})

	in := Defaults()
	in.TechnicianPaymentMode = "lottery"
	_, err := svc.Update(context.Background(), in)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestUpdateThenGetRoundTrip(t *testing.T) {
	svc := newTestService(&fakeRepo{})
	ctx := context.Background()

	in := Defaults()
	in.DefaultHourlyRate = decimal.NewFromInt(40)
	in.HourlyRateByType = map[string]decimal.Decimal{"installation": decimal.NewFromInt(55)}
	_, err := svc.Update(ctx, in)
	require.NoError(t, err)

	s, err := svc.Get(ctx)
	require.NoError(t, err)
	require.True(t, s.HourlyRate("installation").Equal(decimal.NewFromInt(55)))
	require.True(t, s.HourlyRate("repair").Equal(decimal.NewFromInt(40)))
}
