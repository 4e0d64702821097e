package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoggerFormatsAndCarriesFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := New(zap.New(core)).WithField("match_id", "m1").WithFields(map[string]interface{}{"round": 3})

	logger.Info("round %d won by %s", 3, "alpha")
	logger.Debug("tick")

	require.Equal(t, 2, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "round 3 won by alpha", entry.Message)
	assert.Equal(t, "m1", entry.ContextMap()["match_id"])
	assert.Equal(t, map[string]interface{}{"match_id": "m1", "round": 3}, logger.Fields())
}

func TestNewProductionRejectsBadLevel(t *testing.T) {
	_, err := NewProduction("loud")
	assert.Error(t, err)

	logger, err := NewProduction("warn")
	require.NoError(t, err)
	logger.Warn("ok")
}
