package cmd

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionText(t *testing.T) {
	out, err := execRoot(t, "version", "--extended")
	require.NoError(t, err)
	assert.Contains(t, out, "addonsync dev\n")
	assert.Contains(t, out, "Config schema: 1.0.0\n")
	assert.Contains(t, out, "Go version: ")
}

func TestVersionJSON(t *testing.T) {
	out, err := execRoot(t, "version", "--json")
	require.NoError(t, err)

	var v map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &v), out)
	assert.Equal(t, "dev", v["version"])
	assert.NotEmpty(t, v["goVersion"])
	assert.NotEmpty(t, v["platform"])
}
