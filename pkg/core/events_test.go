package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEventTypesImplementEvent(t *testing.T) {
	item := &WorkItem{ID: "sku-1", LookupKey: "4006381333931"}

	events := []Event{
		&RunStarted{RunID: "run-1", Mode: ModeAll, Total: 10},
		&ItemStarted{Item: item, Attempt: 1},
		&ItemSucceeded{Item: item, ImageRef: "s3://images/sku-1.png", Duration: time.Second},
		&ItemFailed{Item: item, Reason: ReasonNoImageFound},
		&ItemRetrying{Item: item, Attempt: 2, NextAttemptAt: time.Now()},
		&ItemCancelled{Item: item},
		&CheckpointWritten{ItemID: "sku-1", Status: StatusSucceeded},
		&RunFinished{RunID: "run-1", Phase: "completed"},
	}

	for _, ev := range events {
		assert.NotNil(t, ev)
	}
}
