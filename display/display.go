package display

import (
	"context"

	"github.com/liamcoop/recalc/internal/logger"
	"github.com/liamcoop/recalc/recalc"
)

// Multi shows every pass on each of its displays, in order
type Multi []recalc.Display

func (m Multi) Refresh(ctx context.Context, result *recalc.Result) {
	for _, d := range m {
		d.Refresh(ctx, result)
	}
}

// LogDisplay writes one structured line per pass
type LogDisplay struct{}

func (LogDisplay) Refresh(ctx context.Context, result *recalc.Result) {
	args := []any{
		"session", result.SessionID,
		"pass", result.PassID,
		"refreshed", result.Refreshed,
		"skipped", result.Skipped,
		"duration_ms", result.Duration.Milliseconds(),
	}
	if result.Trigger != "" {
		args = append(args, "trigger", result.Trigger)
	}
	if result.Group != "" {
		args = append(args, "group", result.Group)
	}

	if len(result.Failed) > 0 {
		failed := make([]string, len(result.Failed))
		for i, f := range result.Failed {
			failed[i] = f.Computation + ": " + f.Reason
		}
		logger.Warn("Recalculation pass had failures", append(args, "failed", failed)...)
		return
	}
	logger.Info("Recalculation pass", args...)
}
