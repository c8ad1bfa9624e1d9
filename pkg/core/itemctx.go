package core

import "context"

type itemCtxKey struct{}

// WithItem returns a context carrying the item being processed. Adapters
// use it to tag log lines without threading the item through every call.
func WithItem(ctx context.Context, item *WorkItem) context.Context {
	return context.WithValue(ctx, itemCtxKey{}, item)
}

// ItemFromContext returns the item carried by ctx, or nil outside of
// item processing.
func ItemFromContext(ctx context.Context) *WorkItem {
	item, _ := ctx.Value(itemCtxKey{}).(*WorkItem)
	return item
}

// ItemIDFromContext returns the active item's ID, or an empty string.
func ItemIDFromContext(ctx context.Context) string {
	item := ItemFromContext(ctx)
	if item == nil {
		return ""
	}
	return item.ID
}
