package collector

import (
	"context"

	"go.uber.org/zap"

	"thermo-poller/internal/tasks"
)

// Options re-exposes the tasks.Options type for external callers.
type Options = tasks.Options

// Run starts the collector with the given options using the internal tasks implementation.
// It blocks until ctx is canceled or the serial port cannot be opened.
func Run(ctx context.Context, opts Options, logger *zap.Logger) error {
	return tasks.InitAndRunCollector(ctx, opts, logger)
}
