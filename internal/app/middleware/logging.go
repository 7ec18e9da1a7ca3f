package middleware

import (
	"context"
	"log/slog"
	"time"

	"kisaanconnect/internal/app/commands"
	"kisaanconnect/internal/app/queries"
)

// Logging records the key, duration and outcome of every command.
func Logging(logger *slog.Logger) CommandMiddleware {
	return func(next commands.Bus) commands.Bus {
		nextFn := wrapCommand(next)
		return commandFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			start := time.Now()
			res, err := nextFn(ctx, cmd)
			if logger != nil {
				if err != nil {
					logger.Warn("command failed", "command", cmd.Key(), "duration", time.Since(start), "error", err)
				} else {
					logger.Debug("command handled", "command", cmd.Key(), "duration", time.Since(start))
				}
			}
			return res, err
		})
	}
}

func QueryLogging(logger *slog.Logger) QueryMiddleware {
	return func(next queries.Bus) queries.Bus {
		nextFn := wrapQuery(next)
		return queryFunc(func(ctx context.Context, q queries.Query) (any, error) {
			start := time.Now()
			res, err := nextFn(ctx, q)
			if logger != nil && err != nil {
				logger.Warn("query failed", "query", q.Key(), "duration", time.Since(start), "error", err)
			}
			return res, err
		})
	}
}
