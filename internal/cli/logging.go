package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/zoobzio/capitan"

	"github.com/zoobzio/magma"
)

// newLogger builds the process logger. format is "text" or "json".
func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}
}

// bridgeSignals logs flow signals that the flows do not log themselves.
// Run failures and missing paths are already logged by each flow.
func bridgeSignals(logger *slog.Logger) {
	flowAttrs := func(e *capitan.Event) []any {
		id, _ := magma.KeyFlowID.From(e)
		attrs := []any{"flow", id}
		if route, ok := magma.KeyRoute.From(e); ok {
			attrs = append(attrs, "route", route)
		}
		return attrs
	}

	capitan.Hook(magma.WatchArmed, func(ctx context.Context, e *capitan.Event) {
		logger.InfoContext(ctx, "watching sources", flowAttrs(e)...)
	})

	capitan.Hook(magma.WatchStopped, func(ctx context.Context, e *capitan.Event) {
		logger.InfoContext(ctx, "stopped watching", flowAttrs(e)...)
	})

	capitan.Hook(magma.StateChanged, func(ctx context.Context, e *capitan.Event) {
		oldState, _ := magma.KeyOldState.From(e)
		newState, _ := magma.KeyNewState.From(e)
		logger.DebugContext(ctx, "state changed",
			append(flowAttrs(e), "from", oldState, "to", newState)...)
	})

	capitan.Hook(magma.ChangeReceived, func(ctx context.Context, e *capitan.Event) {
		op, _ := magma.KeyOp.From(e)
		path, _ := magma.KeyPath.From(e)
		logger.DebugContext(ctx, "change received",
			append(flowAttrs(e), "op", op, "path", path)...)
	})

	capitan.Hook(magma.RunSucceeded, func(ctx context.Context, e *capitan.Event) {
		files, _ := magma.KeyFiles.From(e)
		duration, _ := magma.KeyDuration.From(e)
		logger.InfoContext(ctx, "built",
			append(flowAttrs(e), "files", files, "duration", duration)...)
	})

	capitan.Hook(magma.ArtifactSaved, func(ctx context.Context, e *capitan.Event) {
		size, _ := magma.KeyBytes.From(e)
		logger.DebugContext(ctx, "artifact saved", append(flowAttrs(e), "bytes", size)...)
	})
}
