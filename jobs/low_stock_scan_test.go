package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/cooltrack/cooltrack/internal/inventory"
)

type fakeLister struct {
	items []inventory.Item
	err   error
}

func (f *fakeLister) LowStockItems(context.Context) ([]inventory.Item, error) {
	return f.items, f.err
}

type recordingPublisher struct {
	scopes []string
	events []string
}

func (p *recordingPublisher) Publish(_ context.Context, scope, event string, _ any) {
	p.scopes = append(p.scopes, scope)
	p.events = append(p.events, event)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLowStockScanPublishesDashboardEvent(t *testing.T) {
	lister := &fakeLister{items: []inventory.Item{
		{Name: "copper pipe", Unit: inventory.UnitMeter,
			TotalValue: decimal.NewFromInt(2), MinValue: decimal.NewFromInt(10)},
	}}
	publisher := &recordingPublisher{}
	job := NewLowStockScanJob(lister, nil, publisher, "", discardLogger(), nil)

	require.NoError(t, job.Handle(context.Background(), NewLowStockScanTask()))
	require.Equal(t, []string{"dashboard"}, publisher.scopes)
	require.Equal(t, []string{"inventory.low_stock"}, publisher.events)
}

func TestLowStockScanCleanRunStaysQuiet(t *testing.T) {
	publisher := &recordingPublisher{}
	job := NewLowStockScanJob(&fakeLister{}, nil, publisher, "", discardLogger(), nil)

	require.NoError(t, job.Handle(context.Background(), NewLowStockScanTask()))
	require.Empty(t, publisher.events)
}

func TestLowStockScanPropagatesListError(t *testing.T) {
	boom := errors.New("db down")
	job := NewLowStockScanJob(&fakeLister{err: boom}, nil, nil, "", discardLogger(), nil)

	require.ErrorIs(t, job.Handle(context.Background(), NewLowStockScanTask()), boom)
}
