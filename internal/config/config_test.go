package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("EH_JWT_KEY", "k")
	c, err := Load(nil)
	require.NoError(t, err)
	require.Equal(t, ":8080", c.HTTPAddr)
	require.Equal(t, BackendMemory, c.Store)
	require.Equal(t, BackendMemory, c.LimiterStore)
	require.True(t, c.GeoLookup)
	require.Equal(t, 30*24*time.Hour, c.AnonTTL)
}

func TestLoad_FlagsOverrideEnv(t *testing.T) {
	t.Setenv("EH_JWT_KEY", "k")
	t.Setenv("EH_STORE", "mongo")
	t.Setenv("EH_ANON_TTL", "1h")
	c, err := Load([]string{"-store", "postgres", "-limiter-store", "postgres", "-http-addr", ":1"})
	require.NoError(t, err)
	require.Equal(t, BackendPostgres, c.Store)
	require.Equal(t, BackendPostgres, c.LimiterStore)
	require.Equal(t, ":1", c.HTTPAddr)
	require.Equal(t, time.Hour, c.AnonTTL)
}

func TestLoad_Validation(t *testing.T) {
	t.Setenv("EH_JWT_KEY", "")
	_, err := Load(nil)
	require.Error(t, err)

	t.Setenv("EH_JWT_KEY", "k")
	_, err = Load([]string{"-store", "sqlite"})
	require.Error(t, err)
	_, err = Load([]string{"-limiter-store", "redis"})
	require.Error(t, err)
	_, err = Load([]string{"-limiter-store", "postgres"})
	require.Error(t, err)
	_, err = Load([]string{"-limiter-store", "redis", "-redis-addr", "localhost:6379"})
	require.NoError(t, err)
}

func TestParse_KeepsPositionalArgs(t *testing.T) {
	t.Setenv("EH_JWT_KEY", "")
	c, err := Parse([]string{"-store", "mongo", "set-plan", "u1", "pro"})
	require.NoError(t, err)
	require.Equal(t, BackendMongo, c.Store)
	require.Equal(t, []string{"set-plan", "u1", "pro"}, c.Args)
	require.Error(t, c.Validate())
}
