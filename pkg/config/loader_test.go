package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir string, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	path := filepath.Join(dir, "agent_0.cfg")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func validRawConfig() map[string]any {
	return map[string]any{
		"pilot_id":            "pilot.0001",
		"session_id":          "rp.session.0001",
		"runtime":             60,
		"cores":               16,
		"lrms":                "Fork",
		"scheduler":           "CONTINUOUS",
		"spawner":             "POPEN",
		"task_launch_method":  "FORK",
		"mpi_launch_method":   "MPIRUN",
		"agent_launch_method": "FORK",
		"agents":              map[string]any{},
		"db_poll_sleeptime":   10.0,
		"pilot_sandbox":       "/tmp/pilot.0001",
	}
}

func TestLoad_Success(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, validRawConfig())

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "pilot.0001", cfg.PilotID)
	assert.Equal(t, 16, cfg.Cores)
	assert.Equal(t, "Fork", cfg.LRMS)
	assert.Positive(t, cfg.Derived.QueuePollSleeptime)
	assert.Equal(t, 64*1024, cfg.Derived.TailSize)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.cfg"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfigNotFound)
}

func TestLoad_InvalidJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agent_0.cfg")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidJSON)
}

func TestLoad_ValidationFailures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(map[string]any)
	}{
		{"missing pilot_id", func(m map[string]any) { delete(m, "pilot_id") }},
		{"zero runtime", func(m map[string]any) { m["runtime"] = 0 }},
		{"zero cores", func(m map[string]any) { m["cores"] = 0 }},
		{"missing lrms", func(m map[string]any) { delete(m, "lrms") }},
		{"missing pilot_sandbox", func(m map[string]any) { delete(m, "pilot_sandbox") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			raw := validRawConfig()
			tt.mutate(raw)
			path := writeConfig(t, dir, raw)

			_, err := Load(path)
			require.Error(t, err)
			var verr *ValidationError
			assert.ErrorAs(t, err, &verr)
		})
	}
}

func TestLoad_ExpandsEnvInIdentifiers(t *testing.T) {
	t.Setenv("PILOT_SUFFIX", "007")
	dir := t.TempDir()
	raw := validRawConfig()
	raw["pilot_id"] = "pilot.${PILOT_SUFFIX}"
	path := writeConfig(t, dir, raw)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "pilot.007", cfg.PilotID)
}

func TestLoad_SubAgentTargetValidation(t *testing.T) {
	dir := t.TempDir()
	raw := validRawConfig()
	raw["agents"] = map[string]any{
		"update": map[string]any{"target": "orbit"},
	}
	path := writeConfig(t, dir, raw)

	_, err := Load(path)
	require.Error(t, err)
}
