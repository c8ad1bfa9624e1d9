package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aager/image-backfill/pkg/core"
)

func TestParseMode(t *testing.T) {
	mode, err := ParseMode(5, false, false)
	require.NoError(t, err)
	assert.Equal(t, core.ModeTest, mode.Kind)
	assert.Equal(t, 5, mode.Limit)
	assert.Equal(t, "test(5)", mode.String())

	mode, err = ParseMode(0, true, false)
	require.NoError(t, err)
	assert.Equal(t, core.ModeAll, mode.Kind)
	assert.Equal(t, "all", mode.String())

	mode, err = ParseMode(0, false, true)
	require.NoError(t, err)
	assert.Equal(t, core.ModeResume, mode.Kind)
	assert.Equal(t, "resume", mode.String())
}

func TestParseModeRejectsNoneSelected(t *testing.T) {
	_, err := ParseMode(0, false, false)
	assert.Error(t, err)
}

func TestParseModeRejectsMultipleSelected(t *testing.T) {
	_, err := ParseMode(3, true, false)
	assert.Error(t, err)

	_, err = ParseMode(0, true, true)
	assert.Error(t, err)
}
