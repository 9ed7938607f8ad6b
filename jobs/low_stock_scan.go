package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/cooltrack/cooltrack/internal/events"
	"github.com/cooltrack/cooltrack/internal/inventory"
	jobmetrics "github.com/cooltrack/cooltrack/internal/jobs"
)

// TaskLowStockScan triggers the periodic low stock sweep.
const TaskLowStockScan = "inventory:low_stock_scan"

// NewLowStockScanTask constructs the scan task for cron registration.
func NewLowStockScanTask() *asynq.Task {
	return asynq.NewTask(TaskLowStockScan, nil, asynq.Queue(QueueDefault))
}

// LowStockLister is the slice of the inventory service the scan uses.
type LowStockLister interface {
	LowStockItems(ctx context.Context) ([]inventory.Item, error)
}

// LowStockScanJob sweeps grouped items against their minimum thresholds,
// pushes a dashboard event and mails the alert recipient.
type LowStockScanJob struct {
	inventory LowStockLister
	enqueuer  *Client
	publisher events.Publisher
	alertTo   string
	logger    *slog.Logger
	metrics   *jobmetrics.Metrics
}

// NewLowStockScanJob constructs the job.
func NewLowStockScanJob(
	inv LowStockLister,
	enqueuer *Client,
	publisher events.Publisher,
	alertTo string,
	logger *slog.Logger,
	metrics *jobmetrics.Metrics,
) *LowStockScanJob {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &LowStockScanJob{
		inventory: inv,
		enqueuer:  enqueuer,
		publisher: publisher,
		alertTo:   alertTo,
		logger:    logger,
		metrics:   metrics,
	}
}

// Handle processes TaskLowStockScan tasks.
func (j *LowStockScanJob) Handle(ctx context.Context, _ *asynq.Task) error {
	tracker := j.metrics.Track("low_stock_scan")

	items, err := j.inventory.LowStockItems(ctx)
	if err != nil {
		return tracker.End(err)
	}
	j.metrics.SetLowStockItems(len(items))

	if len(items) == 0 {
		j.logger.Info("low stock scan clean")
		return tracker.End(nil)
	}

	names := make([]string, 0, len(items))
	for _, item := range items {
		names = append(names, fmt.Sprintf("%s (%s %s, min %s)",
			item.Name, item.TotalValue, item.Unit, item.MinValue))
	}
	j.logger.Warn("low stock scan found items", slog.Int("count", len(items)))

	j.publisher.Publish(ctx, events.ScopeDashboard, "inventory.low_stock", map[string]any{
		"count": len(items),
		"items": names,
	})

	if j.alertTo != "" && j.enqueuer != nil {
		_, err := j.enqueuer.EnqueueSendEmail(ctx, SendEmailPayload{
			To:      j.alertTo,
			Subject: fmt.Sprintf("Low stock: %d items below minimum", len(items)),
			Body:    "The following items are below their minimum stock:\n\n" + strings.Join(names, "\n"),
		})
		if err != nil {
			return tracker.End(err)
		}
	}
	return tracker.End(nil)
}
