package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points the home directory at a temp dir and moves into an empty cwd,
// so no stray draftfix.yaml is picked up.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("DRAFTFIX_HOME", filepath.Join(dir, "home"))
	t.Chdir(dir)
	return dir
}

func TestLoadConfigDefaults(t *testing.T) {
	isolate(t)

	cfg, err := LoadConfig(LoadOptions{})
	require.NoError(t, err)

	assert.Equal(t, "windows", cfg.Target)
	assert.Equal(t, "patch", cfg.Policy)
	assert.Equal(t, 4, cfg.Concurrency)
	assert.Equal(t, 1, cfg.Jobs)
	assert.Equal(t, "fixed_drafts", cfg.Output.Dir)
	assert.Equal(t, "_fixed", cfg.Output.Suffix)
	assert.Equal(t, 180*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, 3, cfg.Fetch.Retries)
	assert.Equal(t, time.Second, cfg.Fetch.Backoff)
	assert.Equal(t, DefaultExcludes, cfg.Archive.Exclude)
	assert.False(t, cfg.Placeholder.Enabled)
	require.Len(t, cfg.Fetch.HostHeaders, 1)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigFileAndEnvOverride(t *testing.T) {
	dir := isolate(t)

	yaml := []byte(`target: mac
policy: offline
concurrency: 8
output:
  dir: out
fetch:
  timeout: 30s
  host_headers:
    - host: cdn.example.com
      headers:
        referer: https://example.com/
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "draftfix.yaml"), yaml, 0o644))
	t.Setenv("DRAFTFIX_CONCURRENCY", "2")

	cfg, err := LoadConfig(LoadOptions{})
	require.NoError(t, err)

	assert.Equal(t, "mac", cfg.Target)
	assert.Equal(t, "offline", cfg.Policy)
	assert.Equal(t, 2, cfg.Concurrency, "env must win over file")
	assert.Equal(t, "out", cfg.Output.Dir)
	assert.Equal(t, 30*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, "https://example.com/", cfg.Fetch.HeadersFor("img.cdn.example.com")["referer"])
}

func TestLoadConfigExplicitFileMissing(t *testing.T) {
	dir := isolate(t)
	_, err := LoadConfig(LoadOptions{ConfigFile: filepath.Join(dir, "nope.yaml")})
	assert.Error(t, err)
}

func TestLoadConfigEnvFile(t *testing.T) {
	dir := isolate(t)
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("DRAFTFIX_S3_ACCESS_KEY=AKIAEXAMPLE\n"), 0o644))
	t.Cleanup(func() { _ = os.Unsetenv("DRAFTFIX_S3_ACCESS_KEY") })

	cfg, err := LoadConfig(LoadOptions{EnvFile: envFile})
	require.NoError(t, err)
	assert.Equal(t, "AKIAEXAMPLE", cfg.S3.AccessKey)

	_, err = LoadConfig(LoadOptions{EnvFile: filepath.Join(dir, "missing.env")})
	assert.NoError(t, err, "a missing env file is not an error")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "alias target", mutate: func(c *Config) { c.Target = "darwin" }},
		{name: "unknown target", mutate: func(c *Config) { c.Target = "beos" }, wantErr: true},
		{name: "unknown policy", mutate: func(c *Config) { c.Policy = "yolo" }, wantErr: true},
		{name: "zero concurrency", mutate: func(c *Config) { c.Concurrency = 0 }, wantErr: true},
		{name: "zero jobs", mutate: func(c *Config) { c.Jobs = 0 }, wantErr: true},
		{name: "zero timeout", mutate: func(c *Config) { c.Fetch.Timeout = 0 }, wantErr: true},
		{name: "negative retries", mutate: func(c *Config) { c.Fetch.Retries = -1 }, wantErr: true},
		{name: "empty output dir", mutate: func(c *Config) { c.Output.Dir = "" }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateNormalizesTarget(t *testing.T) {
	cfg := Default()
	cfg.Target = "macos"
	cfg.Policy = " Diagnose "
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "mac", cfg.Target)
	assert.Equal(t, "diagnose", cfg.Policy)
}

func TestHeadersFor(t *testing.T) {
	f := FetchConfig{HostHeaders: []HostHeaders{
		{Host: "example.com", Headers: map[string]string{"referer": "a"}},
		{Host: "cdn.example.com", Headers: map[string]string{"accept": "video/*"}},
	}}

	assert.Equal(t, map[string]string{"referer": "a", "accept": "video/*"}, f.HeadersFor("CDN.example.com"))
	assert.Equal(t, map[string]string{"referer": "a"}, f.HeadersFor("example.com"))
	assert.Empty(t, f.HeadersFor("notexample.com"))
}

func TestSettingsMasksSecrets(t *testing.T) {
	cfg := Default()
	cfg.S3.SecretKey = "super-secret"

	s3 := cfg.Settings()["s3"].(map[string]interface{})
	assert.Equal(t, "****", s3["secret_key"])
	assert.Equal(t, "", s3["access_key"])

	fetch := cfg.Settings()["fetch"].(map[string]interface{})
	assert.Equal(t, "3m0s", fetch["timeout"])
}

func TestDefaultIsACopy(t *testing.T) {
	a := Default()
	a.Archive.Exclude[0] = "changed"
	b := Default()
	assert.Equal(t, "__MACOSX/**", b.Archive.Exclude[0])
}
