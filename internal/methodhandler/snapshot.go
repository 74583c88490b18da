// internal/methodhandler/snapshot.go
package methodhandler

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Snapshot is the joint capture of source and screenshot taken after a command.
// A failed retrieval leaves its payload empty and records the cause in the matching Err field.
type Snapshot struct {
	Source        string
	SourceErr     error
	Screenshot    string
	ScreenshotErr error
}

// captureSnapshot retrieves source and screenshot concurrently. Each retrieval is
// isolated from the other, except that a lost session aborts the whole capture.
func (h *Handler) captureSnapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot

	// No group context here. One retrieval failing must not cancel the other.
	g := new(errgroup.Group)

	g.Go(func() error {
		src, err := h.driver.Source(ctx)
		if err != nil {
			if IsSessionLost(err) {
				return err
			}
			h.logger.Debug("Source retrieval failed, continuing with partial snapshot.", zap.Error(err))
			snap.SourceErr = err
			return nil
		}
		snap.Source = src
		return nil
	})

	g.Go(func() error {
		shot, err := h.driver.TakeScreenshot(ctx)
		if err != nil {
			if IsSessionLost(err) {
				return err
			}
			h.logger.Debug("Screenshot retrieval failed, continuing with partial snapshot.", zap.Error(err))
			snap.ScreenshotErr = err
			return nil
		}
		snap.Screenshot = shot
		return nil
	})

	if err := g.Wait(); err != nil {
		h.logger.Warn("Session lost while capturing snapshot.", zap.Error(err))
		return Snapshot{}, fmt.Errorf("capturing snapshot: %w", err)
	}
	return snap, nil
}
