package usecases

import (
	"context"
	"errors"
	"time"

	"github.com/0xcro3dile/docurag-go/internal/domain/entities"
	"github.com/0xcro3dile/docurag-go/internal/domain/ports"
	"github.com/0xcro3dile/docurag-go/internal/logger"
)

// Refresher is the part of IndexManager the auto-refresher drives.
type Refresher interface {
	Refresh(ctx context.Context, pdfDir string) (*entities.BuildReport, error)
}

// AutoRefresher rebuilds the index when PDFs in a directory change.
// Bursts of events within Debounce trigger a single rebuild.
type AutoRefresher struct {
	Watcher   ports.FileWatcher
	Refresher Refresher
	Dir       string
	Debounce  time.Duration
}

// Run blocks until ctx is cancelled or the watcher stops.
func (a *AutoRefresher) Run(ctx context.Context) error {
	events, err := a.Watcher.Watch(ctx, a.Dir)
	if err != nil {
		return err
	}
	debounce := a.Debounce
	if debounce <= 0 {
		debounce = 2 * time.Second
	}

	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			logger.Debug("PDF %s: %s", ev.Operation, ev.Path)
			timer.Reset(debounce)
		case <-timer.C:
			report, err := a.Refresher.Refresh(ctx, a.Dir)
			switch {
			case errors.Is(err, entities.ErrConflict):
				logger.Info("Rebuild already running, retrying in %v", debounce)
				timer.Reset(debounce)
			case err != nil:
				logger.Error("Automatic rebuild failed: %v", err)
			default:
				logger.Info("Automatic rebuild indexed %d chunks from %d documents", report.ChunksIndexed, report.DocumentsProcessed)
			}
		}
	}
}
