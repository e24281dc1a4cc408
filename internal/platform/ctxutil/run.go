package ctxutil

import "context"

type runDataKey struct{}

// RunData identifies the ingestion run a store call belongs to.
type RunData struct {
	RunID string
}

func WithRunData(ctx context.Context, rd *RunData) context.Context {
	return context.WithValue(ctx, runDataKey{}, rd)
}

func GetRunData(ctx context.Context) *RunData {
	if ctx == nil {
		return nil
	}
	if rd, ok := ctx.Value(runDataKey{}).(*RunData); ok {
		return rd
	}
	return nil
}

// RunID returns the run id carried by ctx, or "".
func RunID(ctx context.Context) string {
	if rd := GetRunData(ctx); rd != nil {
		return rd.RunID
	}
	return ""
}
