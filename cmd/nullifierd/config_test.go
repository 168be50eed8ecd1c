package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateAcceptsDefaults(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestValidateRejectsShortEpochDuration(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EpochDuration = "500ms"
	require.Error(t, cfg.Validate())

	cfg.EpochDuration = "1s"
	require.NoError(t, cfg.Validate())

	cfg.EpochDuration = "bogus"
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsBadStoreBackend(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StoreBackend = "postgres"
	require.Error(t, cfg.Validate(), "postgres backend needs a DSN")

	cfg.PostgresDSN = "host=localhost dbname=privcore"
	require.NoError(t, cfg.Validate())

	cfg.StoreBackend = "redis"
	require.Error(t, cfg.Validate())
}
