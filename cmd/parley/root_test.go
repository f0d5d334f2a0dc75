package main

import (
	"testing"

	"github.com/dkeye/parley/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlagsOverrideDefaults(t *testing.T) {
	v := config.New()
	cmd := newRootCmd(v)

	assert.Equal(t, 8090, v.GetInt("port"), "unset flag keeps the default")

	require.NoError(t, cmd.ParseFlags([]string{"--port", "9100", "--log-level", "debug"}))
	assert.Equal(t, 9100, v.GetInt("port"))
	assert.Equal(t, "debug", v.GetString("log_level"))
}
