package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestItemFromContext(t *testing.T) {
	item := &WorkItem{ID: "sku-42", LookupKey: "0012345678905"}
	ctx := WithItem(context.Background(), item)

	got := ItemFromContext(ctx)
	assert.Same(t, item, got)
	assert.Equal(t, "sku-42", ItemIDFromContext(ctx))
}

func TestItemFromContextOutsideProcessing(t *testing.T) {
	ctx := context.Background()

	assert.Nil(t, ItemFromContext(ctx))
	assert.Equal(t, "", ItemIDFromContext(ctx))
}
