package logx

import (
	"context"

	"pkt.systems/qermital/schema"
	"pkt.systems/pslog"
)

type contextKey int

const (
	sessionKey contextKey = iota
	paneKey
)

// Ctx returns the logger bound to the provided context.
func Ctx(ctx context.Context) pslog.Logger {
	return pslog.Ctx(ctx)
}

// WithSession annotates the context logger with the session id if present.
func WithSession(ctx context.Context, id schema.SessionID) pslog.Logger {
	log := pslog.Ctx(ctx)
	if id != 0 {
		if current, ok := ctx.Value(sessionKey).(schema.SessionID); ok && current == id {
			return log
		}
		log = log.With("session", id.String())
	}
	return log
}

// WithPaneSession annotates the context logger with pane and session.
func WithPaneSession(ctx context.Context, pane schema.PaneKind, id schema.SessionID) pslog.Logger {
	log := WithSession(ctx, id)
	if pane != "" {
		if current, ok := ctx.Value(paneKey).(schema.PaneKind); ok && current == pane {
			return log
		}
		log = log.With("pane", string(pane))
	}
	return log
}

// WithSurface annotates the logger with surface metadata when available.
func WithSurface(log pslog.Logger, id schema.SurfaceID, window uint64) pslog.Logger {
	if id != 0 {
		log = log.With("surface", uint64(id))
	}
	if window != 0 {
		log = log.With("window", window)
	}
	return log
}

// WithPID annotates the logger with a process id when available.
func WithPID(log pslog.Logger, pid int) pslog.Logger {
	if pid > 0 {
		log = log.With("pid", pid)
	}
	return log
}

// ContextWithSession stores the session marker on the context for log de-duplication.
func ContextWithSession(ctx context.Context, id schema.SessionID) context.Context {
	if ctx == nil || id == 0 {
		return ctx
	}
	return context.WithValue(ctx, sessionKey, id)
}

// ContextWithPane stores the pane marker on the context for log de-duplication.
func ContextWithPane(ctx context.Context, pane schema.PaneKind) context.Context {
	if ctx == nil || pane == "" {
		return ctx
	}
	return context.WithValue(ctx, paneKey, pane)
}

// ContextWithSessionLogger attaches the logger and the pane/session markers to the context.
func ContextWithSessionLogger(ctx context.Context, log pslog.Logger, pane schema.PaneKind, id schema.SessionID) context.Context {
	ctx = pslog.ContextWithLogger(ctx, log)
	return ContextWithPane(ContextWithSession(ctx, id), pane)
}

// CopyContextFields copies pane/session markers from src to dst.
func CopyContextFields(dst context.Context, src context.Context) context.Context {
	if src == nil {
		return dst
	}
	if id, ok := src.Value(sessionKey).(schema.SessionID); ok && id != 0 {
		dst = ContextWithSession(dst, id)
	}
	if pane, ok := src.Value(paneKey).(schema.PaneKind); ok && pane != "" {
		dst = ContextWithPane(dst, pane)
	}
	return dst
}
