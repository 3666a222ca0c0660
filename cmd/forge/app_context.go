package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/gradeforge/gradeforge/internal/config"
	"github.com/gradeforge/gradeforge/internal/logger"
	"github.com/gradeforge/gradeforge/internal/orchestrator"
	"github.com/gradeforge/gradeforge/internal/store"
)

// AppContext bundles the long-lived services built at startup.
type AppContext struct {
	Config *config.Config
	Logger *logger.Logger
	Ref    *orchestrator.Reference
	User   store.User[store.AuthenticatedRole]
}

// CommandContext returns the command context (falling back to
// Background), stamped with a fresh correlation id if it doesn't
// already carry one, together with a component-scoped logger tagged
// with that id.
func (a *AppContext) CommandContext(cmd *cobra.Command, component string) (context.Context, *logger.Logger) {
	ctx := context.Background()
	if cmd != nil && cmd.Context() != nil {
		ctx = cmd.Context()
	}
	if logger.CorrelationID(ctx) == "" {
		ctx = logger.WithCorrelationID(ctx, logger.NewCorrelationID())
	}
	return ctx, a.LoggerFor(component).WithContext(ctx)
}

// LoggerFor derives a child logger with the supplied component name.
func (a *AppContext) LoggerFor(component string) *logger.Logger {
	if a == nil || a.Logger == nil {
		return nil
	}
	return a.Logger.WithFields(map[string]any{"component": component})
}
