package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/limmutable/collabiq/internal/config"
)

func TestNewLogger_JSONFormatBuilds(t *testing.T) {
	logger, err := NewLogger(config.LogConfig{Format: "json", Level: "info"})
	assert.NoError(t, err)
	assert.NotNil(t, logger)
}

func TestNewLogger_ConsoleFormatBuilds(t *testing.T) {
	logger, err := NewLogger(config.LogConfig{Format: "console", Level: "debug"})
	assert.NoError(t, err)
	assert.NotNil(t, logger)
}

func TestNewLogger_InvalidLevelFallsBackToInfo(t *testing.T) {
	logger, err := NewLogger(config.LogConfig{Format: "json", Level: "not-a-level"})
	assert.NoError(t, err)
	assert.NotNil(t, logger)
}

func TestInit_DisabledReturnsNoopProviders(t *testing.T) {
	logger, _ := NewLogger(config.LogConfig{Format: "json", Level: "info"})
	p, err := Init(Config{Enabled: false}, logger)
	assert.NoError(t, err)
	assert.NotNil(t, p)
}

func TestShutdown_NoopProvidersIsSafe(t *testing.T) {
	p := &Providers{}
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestShutdown_NilReceiverIsSafe(t *testing.T) {
	var p *Providers
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestBuildVersion_ReturnsNonEmptyString(t *testing.T) {
	assert.NotEmpty(t, buildVersion())
}
