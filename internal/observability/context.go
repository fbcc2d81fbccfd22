package observability

import (
	"context"
)

// Context keys for observability data.
type contextKey string

const (
	runIDKey    contextKey = "run_id"
	categoryKey contextKey = "category"
	triggerKey  contextKey = "trigger"
)

// WithRunID adds a refresh run ID to the context.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// RunIDFromContext retrieves the refresh run ID from context.
// Returns empty string if not present.
func RunIDFromContext(ctx context.Context) string {
	return stringValue(ctx, runIDKey)
}

// WithCategory adds the category being refreshed to the context.
func WithCategory(ctx context.Context, categoryID string) context.Context {
	return context.WithValue(ctx, categoryKey, categoryID)
}

// CategoryFromContext retrieves the category ID from context.
// Returns empty string if not present.
func CategoryFromContext(ctx context.Context) string {
	return stringValue(ctx, categoryKey)
}

// WithTrigger records what started a run ("manual", "schedule", "startup").
func WithTrigger(ctx context.Context, trigger string) context.Context {
	return context.WithValue(ctx, triggerKey, trigger)
}

// TriggerFromContext retrieves the run trigger from context.
// Returns empty string if not present.
func TriggerFromContext(ctx context.Context) string {
	return stringValue(ctx, triggerKey)
}

// RunContext contains the identifying data of a refresh run.
type RunContext struct {
	RunID    string
	Category string
	Trigger  string
}

// RunContextFromContext extracts all run context from the context.
func RunContextFromContext(ctx context.Context) RunContext {
	return RunContext{
		RunID:    RunIDFromContext(ctx),
		Category: CategoryFromContext(ctx),
		Trigger:  TriggerFromContext(ctx),
	}
}

func stringValue(ctx context.Context, key contextKey) string {
	if v := ctx.Value(key); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
