package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"gatekey.org/internal/auth"
	"gatekey.org/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// requestIDFromContext extracts the audit request id from context if present.
func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes an audit log entry enriched with the request id and the
// acting principal (id, email, admin flag) from context.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	entry := map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339Nano),
		"type":  "audit",
		"event": event,
	}
	if rid := requestIDFromContext(ctx); rid != "" {
		entry["request_id"] = rid
	}
	if p, ok := auth.PrincipalFromContext(ctx); ok && p != nil {
		entry["user_id"] = p.UserID
		if p.Email != "" {
			entry["actor_email"] = p.Email
		}
		if p.IsAdmin {
			entry["actor_admin"] = true
		}
	}
	if len(fields) > 0 {
		copyFields := make(map[string]any, len(fields))
		for k, v := range fields {
			copyFields[k] = v
		}
		entry["fields"] = copyFields
	} else {
		entry["fields"] = map[string]any{}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	obs.Logger().Println(string(data))
	return nil
}

// LogDecision records an authorization outcome. Callers decide which
// decisions are worth the trail; the HTTP layer logs denials.
func LogDecision(ctx context.Context, d auth.Decision, fields map[string]any) error {
	merged := map[string]any{
		"allowed": d.Allowed,
		"reason":  d.Reason,
	}
	for k, v := range fields {
		merged[k] = v
	}
	return LogEvent(ctx, "authz.decision", merged)
}
