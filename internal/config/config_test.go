// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestConfig sets CACHEKIT_CFG to point to a test config file.
// Returns cleanup function that should be deferred.
func setupTestConfig(t *testing.T, testdataFile string) (cleanup func()) {
	t.Helper()

	absPath, err := filepath.Abs(filepath.Join("testdata", testdataFile))
	assert.NoError(t, err, "failed to get absolute path for test config")

	t.Setenv("CACHEKIT_CFG", absPath)

	// Reset the global Config to force reload
	Config = Type{}

	return func() {
		Config = Type{}
	}
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name      string
		testFile  string
		checkFunc func(*testing.T, Type)
	}{
		{
			name:     "simple string values",
			testFile: "simple.yaml",
			checkFunc: func(t *testing.T, cfg Type) {
				assert.NotEmpty(t, cfg.Source)
				assert.Equal(t, "weather", cfg.Data["app"])
				assert.Equal(t, "/var/cache/cachekit", cfg.Data["root"])
			},
		},
		{
			name:     "nested structure",
			testFile: "nested.yaml",
			checkFunc: func(t *testing.T, cfg Type) {
				push, ok := cfg.Data["push"].(map[string]interface{})
				assert.True(t, ok, "push should be a map")
				assert.Equal(t, "team-cache", push["bucket"])
			},
		},
		{
			name:     "mixed types",
			testFile: "mixed-types.yaml",
			checkFunc: func(t *testing.T, cfg Type) {
				assert.Equal(t, 1, cfg.Data["version"])
				assert.Equal(t, true, cfg.Data["broadcast"])
				assert.Equal(t, 30.5, cfg.Data["timeout"])
				tags, ok := cfg.Data["tags"].([]interface{})
				assert.True(t, ok)
				assert.Len(t, tags, 2)
			},
		},
		{
			name:     "empty file",
			testFile: "empty.yaml",
			checkFunc: func(t *testing.T, cfg Type) {
				assert.NotEmpty(t, cfg.Source, "should have a source path")
				assert.Empty(t, cfg.Data)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cleanup := setupTestConfig(t, tt.testFile)
			defer cleanup()

			cfg, err := Load()
			assert.NoError(t, err)
			tt.checkFunc(t, cfg)
		})
	}
}

func TestLoad_NoConfigFile(t *testing.T) {
	t.Setenv("CACHEKIT_CFG", "/nonexistent/path/cachekit.yaml")
	Config = Type{}

	_, err := Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "config file not found")
}

func TestLoad_CFGIsDirectory(t *testing.T) {
	t.Setenv("CACHEKIT_CFG", "testdata")
	Config = Type{}

	_, err := Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "points to a directory")
}

func TestLoad_StandardLocations(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("app: found\n"), 0o600))

	t.Setenv("CACHEKIT_CFG", "")
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("APPDATA", "")
	t.Setenv("HOME", dir)
	Config = Type{}
	defer func() { Config = Type{} }()

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, FileName), cfg.Source)
	assert.Equal(t, "found", cfg.Data["app"])
}

func TestLoad_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte("app: [unclosed"), 0o600))
	Config = Type{}
	defer func() { Config = Type{} }()

	_, err := Load(path)
	assert.Error(t, err)
}

func TestGetString(t *testing.T) {
	tests := []struct {
		name         string
		testFile     string
		key          string
		defaultValue []string
		want         string
		wantErr      bool
	}{
		{"simple string value", "simple.yaml", "app", nil, "weather", false},
		{"nested string value", "nested.yaml", "push.region", nil, "us-west-2", false},
		{"missing key with default", "simple.yaml", "missing", []string{"default-value"}, "default-value", false},
		{"missing key without default", "simple.yaml", "missing", nil, "", true},
		{"non-string value", "mixed-types.yaml", "version", nil, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cleanup := setupTestConfig(t, tt.testFile)
			defer cleanup()

			got, err := GetString(tt.key, tt.defaultValue...)

			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGetInt(t *testing.T) {
	tests := []struct {
		name         string
		testFile     string
		key          string
		defaultValue []int
		want         int
		wantErr      bool
	}{
		{"int value", "mixed-types.yaml", "version", nil, 1, false},
		{"float value converted to int", "mixed-types.yaml", "timeout", nil, 30, false},
		{"nested int value", "nested.yaml", "push.max_retries", nil, 5, false},
		{"missing key with default", "simple.yaml", "missing", []int{60}, 60, false},
		{"missing key without default", "simple.yaml", "missing", nil, 0, true},
		{"non-int value", "simple.yaml", "app", nil, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cleanup := setupTestConfig(t, tt.testFile)
			defer cleanup()

			got, err := GetInt(tt.key, tt.defaultValue...)

			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGetStringSlice(t *testing.T) {
	cleanup := setupTestConfig(t, "mixed-types.yaml")
	defer cleanup()

	got, err := GetStringSlice("tags")
	require.NoError(t, err)
	assert.Equal(t, []string{"api:v1", "region:us-east"}, got)

	got, err = GetStringSlice("app")
	require.NoError(t, err)
	assert.Equal(t, []string{"test-project"}, got)

	got, err = GetStringSlice("missing", []string{"x"})
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, got)

	_, err = GetStringSlice("version")
	assert.Error(t, err)
}

func TestConfig_GetWithNamespace(t *testing.T) {
	cleanup := setupTestConfig(t, "nested.yaml")
	defer cleanup()

	_, err := Load()
	assert.NoError(t, err)

	SetNamespace("push")
	val, err := Config.get("bucket")
	assert.NoError(t, err)
	assert.Equal(t, "team-cache", val)

	SetNamespace("pull")
	val, err = Config.get("bucket")
	assert.NoError(t, err)
	assert.Equal(t, "shared-cache", val)
}

func TestConfig_GetNestedPath(t *testing.T) {
	cleanup := setupTestConfig(t, "deep-nested.yaml")
	defer cleanup()

	_, err := Load()
	assert.NoError(t, err)

	val, err := Config.get("level1.level2.level3.value")
	assert.NoError(t, err)
	assert.Equal(t, "deep-value", val)
}

func TestConfig_LazyLoad(t *testing.T) {
	cleanup := setupTestConfig(t, "simple.yaml")
	defer cleanup()

	val, err := GetString("app")
	assert.NoError(t, err)
	assert.Equal(t, "weather", val)
	assert.NotEmpty(t, Config.Source, "Config should be loaded")
}

func TestGetString_NamespaceFallback(t *testing.T) {
	cleanup := setupTestConfig(t, "namespace.yaml")
	defer cleanup()

	_, err := Load()
	assert.NoError(t, err)
	SetNamespace("clear")

	val, err := GetString("setting")
	assert.NoError(t, err)
	assert.Equal(t, "clear-value", val)

	val, err = GetString("specific")
	assert.NoError(t, err)
	assert.Equal(t, "clear-specific", val)

	tags, err := GetStringSlice("tags")
	assert.NoError(t, err)
	assert.Equal(t, []string{"api:"}, tags)

	SetNamespace("")
	val, err = GetString("setting")
	assert.NoError(t, err)
	assert.Equal(t, "global-value", val)

	_, err = GetString("nonexistent")
	assert.Error(t, err)
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("CACHEKIT_APP", "weather")
	t.Setenv("CACHEKIT_ROOT", "/tmp/ck")
	t.Setenv("CACHEKIT_BUILD_TIMEOUT", "1500ms")
	t.Setenv("CACHEKIT_NO_STATS", "true")
	t.Setenv("CACHEKIT_LOG", "")

	e, err := LoadEnv()
	require.NoError(t, err)
	assert.Equal(t, "weather", e.App)
	assert.Equal(t, "/tmp/ck", e.Root)
	assert.Equal(t, 1500*time.Millisecond, e.BuildTimeout)
	assert.True(t, e.NoStats)
}

func TestLoadEnv_Invalid(t *testing.T) {
	t.Setenv("CACHEKIT_BUILD_TIMEOUT", "soon")
	_, err := LoadEnv()
	assert.Error(t, err)
}
