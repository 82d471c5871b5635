/*
Copyright © 2025 3 Leaps <info@3leaps.net>
*/
package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/fulmenhq/draftfix/pkg/exitcode"
)

func TestConfigCommandFormats(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "draftfix.yaml"), []byte("target: macos\njobs: 3\n"), 0o644))
	t.Setenv("DRAFTFIX_S3_SECRET_KEY", "supersecretvalue")

	decoders := map[string]func([]byte, interface{}) error{
		"yaml": yaml.Unmarshal,
		"toml": toml.Unmarshal,
		"json": json.Unmarshal,
	}
	for format, decode := range decoders {
		t.Run(format, func(t *testing.T) {
			out, _, code := execute(t, "config", "--format", format)
			require.Equal(t, exitcode.Success, code, out)

			var settings map[string]interface{}
			require.NoError(t, decode([]byte(out), &settings))
			assert.Equal(t, "mac", settings["target"], "aliases are normalized")
			assert.EqualValues(t, 3, settings["jobs"])
			assert.NotContains(t, out, "supersecretvalue")
		})
	}
}

func TestConfigCommandErrors(t *testing.T) {
	dir := isolate(t)

	t.Run("explicit file missing", func(t *testing.T) {
		_, _, code := execute(t, "--config", filepath.Join(dir, "absent.yaml"), "config")
		assert.Equal(t, exitcode.ConfigError, code)
	})

	t.Run("invalid value", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.yaml")
		require.NoError(t, os.WriteFile(bad, []byte("policy: yolo\n"), 0o644))
		_, _, code := execute(t, "--config", bad, "config")
		assert.Equal(t, exitcode.ConfigError, code)
	})

	t.Run("invalid env override", func(t *testing.T) {
		t.Setenv("DRAFTFIX_TARGET", "amiga")
		_, _, code := execute(t, "config")
		assert.Equal(t, exitcode.ConfigError, code)
	})

	t.Run("unknown format", func(t *testing.T) {
		_, _, code := execute(t, "config", "--format", "ini")
		assert.Equal(t, exitcode.ConfigError, code)
	})
}

func TestEnvFileFlag(t *testing.T) {
	dir := isolate(t)
	envFile := filepath.Join(dir, "custom.env")
	require.NoError(t, os.WriteFile(envFile, []byte("DRAFTFIX_CONCURRENCY=7\n"), 0o644))
	t.Cleanup(func() { _ = os.Unsetenv("DRAFTFIX_CONCURRENCY") })

	out, _, code := execute(t, "--env-file", envFile, "config", "--format", "json")
	require.Equal(t, exitcode.Success, code)
	var settings map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &settings))
	assert.EqualValues(t, 7, settings["concurrency"])
}
