package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.True(t, cfg.Metrics.Enabled)

	caseProfile, ok := cfg.TableProfileFor("case")
	require.True(t, ok)
	require.NotNil(t, caseProfile.Close)
	assert.Equal(t, "已结案", caseProfile.Close.ClosedValue)
	assert.Equal(t, "未结", caseProfile.CreateDefaults["案件状态"])
	assert.Contains(t, caseProfile.AppendFields, "进展")

	variant, ok := caseProfile.CloseVariants["enforcement_end"]
	require.True(t, ok)
	assert.Equal(t, "执行终本", variant.ClosedValue)
	assert.Equal(t, "preserve_seizure", variant.ReminderPolicy)
}

func TestTableProfileForAlias(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	p, ok := cfg.TableProfileFor("案件")
	require.True(t, ok)
	assert.Equal(t, "case", p.Kind)

	p, ok = cfg.TableProfileFor("团队总览")
	require.True(t, ok)
	assert.True(t, p.ReadOnly)

	_, ok = cfg.TableProfileFor("不存在")
	assert.False(t, ok)
}

func TestLoadFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "omniagent.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9000
log_level: debug
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestProviderReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "omniagent.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: info\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	p := NewProvider(cfg, path, nil)
	assert.Equal(t, "info", p.Current().LogLevel)

	require.NoError(t, os.WriteFile(path, []byte("log_level: warn\n"), 0o644))
	require.NoError(t, p.Reload())
	assert.Equal(t, "warn", p.Current().LogLevel)
}
