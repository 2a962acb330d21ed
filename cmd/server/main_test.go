package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := runCmd(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "deepbridge dev\n", out)
}

func TestModelsCommand_Defaults(t *testing.T) {
	out, err := runCmd(t, "models")
	require.NoError(t, err)
	assert.Contains(t, out, "policy: passthrough")
	assert.Contains(t, out, "deepseek-chat (owned_by system)")
	assert.Contains(t, out, "deepseek-reasoner (owned_by system)")
	assert.NotContains(t, out, "mapping:")
}

func TestModelsCommand_MappingFlag(t *testing.T) {
	out, err := runCmd(t, "models", "--model-policy", "Mapping")
	require.NoError(t, err)
	assert.Contains(t, out, "policy: mapping")
	assert.Contains(t, out, "deepseek-reasoner -> DeepSeek-R1")
	assert.Contains(t, out, "deepseek-chat -> DeepSeek-V3")
}

func TestModelsCommand_ConfigFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deepbridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte("models:\n  policy: mapping\n"), 0o600))
	t.Setenv("DEEPBRIDGE_MODEL_POLICY", "passthrough")

	out, err := runCmd(t, "models", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "policy: passthrough")
}

func TestBuildConfig_Errors(t *testing.T) {
	_, err := runCmd(t, "models", "--model-policy", "strict")
	assert.Error(t, err)

	_, err = runCmd(t, "models", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestModelsCommand_PolicyEnvCase(t *testing.T) {
	t.Setenv("DEEPBRIDGE_MODEL_POLICY", "Mapping")

	out, err := runCmd(t, "models")
	require.NoError(t, err)
	assert.Contains(t, out, "policy: mapping")
}
