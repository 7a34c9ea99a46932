package telemetry_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ImranRahimov1995/SearchNewsRAG/internal/telemetry"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*telemetry.Config)
		wantErr bool
	}{
		{"disabled skips validation", func(c *telemetry.Config) {
			c.Enabled = false
			c.Endpoint = ""
		}, false},
		{"valid local insecure", func(c *telemetry.Config) {}, false},
		{"insecure remote rejected", func(c *telemetry.Config) {
			c.Endpoint = "collector.example.com:4317"
		}, true},
		{"bad protocol", func(c *telemetry.Config) {
			c.Protocol = "udp"
		}, true},
		{"sampling rate out of range", func(c *telemetry.Config) {
			c.SamplingRate = 1.5
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := telemetry.Config{Enabled: true, Insecure: true}
			cfg.ApplyDefaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNew_Disabled(t *testing.T) {
	tel, err := telemetry.New(context.Background(), telemetry.Config{}, nil)
	require.NoError(t, err)
	require.NotNil(t, tel)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, tel.Shutdown(ctx))
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := telemetry.Config{Enabled: true, Insecure: true, Endpoint: "remote.host:4317"}
	_, err := telemetry.New(context.Background(), cfg, nil)
	assert.Error(t, err)
}

func TestShutdown_NilReceiver(t *testing.T) {
	var tel *telemetry.Telemetry
	assert.NoError(t, tel.Shutdown(context.Background()))
}
