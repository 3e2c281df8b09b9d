package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCmdLine(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		p, err := parseCmdLine(nil)
		require.NoError(t, err)
		assert.Equal(t, "stdio", p.cfg.Transport)
		assert.NotEmpty(t, p.cfg.CachePath)
		assert.False(t, p.cfg.UseIndex)
	})
	t.Run("flags override defaults", func(t *testing.T) {
		p, err := parseCmdLine([]string{"-cache", "/tmp/cache.json", "-transport", "http", "-listen", "localhost:9999", "-index"})
		require.NoError(t, err)
		assert.Equal(t, "/tmp/cache.json", p.cfg.CachePath)
		assert.Equal(t, "http", p.cfg.Transport)
		assert.Equal(t, "localhost:9999", p.cfg.Listen)
		assert.True(t, p.cfg.UseIndex)
	})
	t.Run("unknown transport fails validation", func(t *testing.T) {
		_, err := parseCmdLine([]string{"-transport", "carrier-pigeon"})
		assert.Error(t, err)
	})
	t.Run("version skips validation", func(t *testing.T) {
		p, err := parseCmdLine([]string{"-V", "-transport", "bogus"})
		require.NoError(t, err)
		assert.True(t, p.printVersion)
	})
}

func TestDefaultCachePath(t *testing.T) {
	assert.Contains(t, defaultCachePath(), "cache-v3.json")
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "x.json"), expandHome(filepath.Join("~", "x.json")))
	assert.Equal(t, "/abs/x.json", expandHome("/abs/x.json"))
	assert.Equal(t, ":memory:", expandHome(":memory:"))
}
