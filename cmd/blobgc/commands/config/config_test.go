package config

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/blobgc/pkg/config"
)

func TestGenerateSchema(t *testing.T) {
	data, err := generateSchema()
	require.NoError(t, err)

	var schema map[string]any
	require.NoError(t, json.Unmarshal(data, &schema))
	assert.Equal(t, "blobgc Configuration", schema["title"])

	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	for _, key := range []string{"logging", "database", "storage", "gc"} {
		assert.Contains(t, props, key)
	}
}

func TestConfigWarnings(t *testing.T) {
	cfg := config.GetDefaultConfig()
	assert.Empty(t, configWarnings(cfg))

	cfg.GC.MaxClockSkew = -1
	cfg.GC.RunLock = false
	cfg.Database.Password = "secret"

	warnings := configWarnings(cfg)
	require.Len(t, warnings, 3)
	assert.True(t, strings.Contains(warnings[0], "clock skew"))
}

func TestSubcommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range Cmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"init", "edit", "validate", "show", "schema"} {
		assert.True(t, names[want], "missing subcommand %q", want)
	}
}
