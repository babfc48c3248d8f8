// Package worker mirrors the billing export into spreadsheet tabs when
// plans change and on a schedule.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"facturation/internal/amqp"
	"facturation/internal/billing"
	"facturation/internal/core"
	"facturation/internal/log"
	"facturation/internal/observability/metrics"
	"facturation/internal/sheets"
)

// Sync triggers, used as the metrics label.
const (
	TriggerMessage  = "message"
	TriggerSchedule = "schedule"
	TriggerStartup  = "startup"
)

// DefaultSchedule runs the full resync nightly at 02:00.
const DefaultSchedule = "0 2 * * *"

// Loader re-derives the aggregate from the store.
type Loader interface {
	Load(ctx context.Context) (*billing.Aggregate, error)
}

type SyncWorker struct {
	loader   Loader
	writer   sheets.RowWriter
	baseName string
	locale   core.Locale
	logger   *log.Logger
	timeout  time.Duration

	// mu keeps one sync writing at a time.
	mu sync.Mutex
}

type Config struct {
	SheetBaseName string
	Locale        core.Locale
	// ResyncTimeout bounds a scheduled resync.
	ResyncTimeout time.Duration
}

func NewSyncWorker(loader Loader, writer sheets.RowWriter, cfg Config, logger *log.Logger) *SyncWorker {
	if cfg.ResyncTimeout <= 0 {
		cfg.ResyncTimeout = 5 * time.Minute
	}
	if !cfg.Locale.IsValid() {
		cfg.Locale = core.LocaleFR
	}
	return &SyncWorker{
		loader:   loader,
		writer:   writer,
		baseName: cfg.SheetBaseName,
		locale:   cfg.Locale,
		logger:   logger.WithComponent(log.ComponentWorker),
		timeout:  cfg.ResyncTimeout,
	}
}

// HandlePlanChanged reloads the plans and rewrites the years the message
// names, or every year for a resync or a message without years.
func (w *SyncWorker) HandlePlanChanged(ctx context.Context, msg *amqp.PlanChangedMessage) error {
	w.logger.InfoContext(ctx, "Processing plan changed message",
		"message_id", msg.ID, log.FieldDocID, msg.DocID, log.FieldOperation, msg.Operation, "years", msg.Years)

	years := msg.Years
	if msg.Operation == amqp.OpResync {
		years = nil
	}
	err := w.sync(ctx, years)
	metrics.ObserveMessage(err)
	metrics.ObserveSync(TriggerMessage, err)
	return err
}

// FullResync rewrites the tab of every year holding billing.
func (w *SyncWorker) FullResync(ctx context.Context, trigger string) error {
	err := w.sync(ctx, nil)
	metrics.ObserveSync(trigger, err)
	if err != nil {
		w.logger.ErrorContext(ctx, "Full resync failed", log.FieldOperation, log.OpSync, "trigger", trigger, log.FieldError, err)
		return err
	}
	w.logger.InfoContext(ctx, "Full resync complete", log.FieldOperation, log.OpSync, "trigger", trigger)
	return nil
}

// sync writes the given years; nil means every year of the aggregate.
// Each year is attempted and the failures are joined.
func (w *SyncWorker) sync(ctx context.Context, years []int) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	agg, err := w.loader.Load(ctx)
	if err != nil {
		return fmt.Errorf("load plans: %w", err)
	}
	if years == nil {
		years = agg.Years()
	}

	var errs []error
	for _, y := range years {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := w.syncYear(ctx, agg, y); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (w *SyncWorker) syncYear(ctx context.Context, agg *billing.Aggregate, year int) error {
	rows := billing.Project(agg, billing.Filter{Year: year}, w.locale)
	header, values := sheets.Table(rows, w.locale)
	name := sheets.YearSheetName(w.baseName, year)
	if err := w.writer.ReplaceRows(ctx, name, header, values); err != nil {
		return fmt.Errorf("sync %s: %w", name, err)
	}
	w.logger.DebugContext(ctx, "Year mirrored", log.FieldYear, year, log.FieldCount, len(rows))
	return nil
}

// Schedule registers the full resync on spec and returns the unstarted
// scheduler.
func (w *SyncWorker) Schedule(spec string) (*cron.Cron, error) {
	if spec == "" {
		spec = DefaultSchedule
	}
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		defer cancel()
		_ = w.FullResync(ctx, TriggerSchedule)
	})
	if err != nil {
		return nil, fmt.Errorf("unable to schedule resync %q: %w", spec, err)
	}
	return c, nil
}
