package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, validator.New().Struct(cfg))
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(filepath.Join(dir, "does-not-exist.yaml"))
	require.NoError(t, err)
	require.Equal(t, "sensitive", cfg.CaseSensitivity)
	require.Equal(t, "in_memory", cfg.Backstore.Mode)
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
case_sensitivity: insensitive_preserving
backstore:
  mode: host_fs
  host_fs_root: /var/lib/agentfs/upper
  prefer_native_snapshots: false
copyup:
  mode_strategy: clone_and_umask
  umask: 18
interpose:
  max_copy_bytes: 16Mi
cache:
  attr_timeout: 2s
`
	require.NoError(t, writeFile(path, yaml))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "insensitive_preserving", cfg.CaseSensitivity)
	require.Equal(t, "host_fs", cfg.Backstore.Mode)
	require.Equal(t, "/var/lib/agentfs/upper", cfg.Backstore.HostFsRoot)
	require.False(t, cfg.Backstore.PreferNativeSnapshots)
	require.Equal(t, "clone_and_umask", cfg.CopyUp.ModeStrategy)
	require.EqualValues(t, 16<<20, cfg.Interpose.MaxCopyBytes.Uint64())
	require.Equal(t, 2*time.Second, cfg.Cache.AttrTimeout)
}

func TestLoadRejectsInvalidBackstoreMode(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, writeFile(path, "backstore:\n  mode: not_a_mode\n"))

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRequiresHostFsRootForHostFsMode(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, writeFile(path, "backstore:\n  mode: host_fs\n"))

	_, err := Load(path)
	require.Error(t, err)
}

func TestSaveRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	cfg := Default()
	cfg.Backstore.Mode = "host_fs"
	cfg.Backstore.HostFsRoot = dir
	require.NoError(t, Save(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.Backstore.Mode, loaded.Backstore.Mode)
	require.Equal(t, cfg.Backstore.HostFsRoot, loaded.Backstore.HostFsRoot)
}

func TestNamespaceConfigTranslation(t *testing.T) {
	cfg := Default()
	cfg.CaseSensitivity = "insensitive_preserving"
	cfg.CopyUp.ModeStrategy = "fixed"
	cfg.CopyUp.FixedMode = 0o644

	nsCfg := cfg.NamespaceConfig()
	require.Equal(t, 1, int(nsCfg.CaseMode)) // CaseInsensitivePreserving
	require.EqualValues(t, 0o644, nsCfg.CopyUp.FixedMode)
}

func TestHandleConfigTranslation(t *testing.T) {
	cfg := Default()
	cfg.EnforceWindowsShareModes = true
	cfg.RootBypassPermissions = true

	hCfg := cfg.HandleConfig()
	require.True(t, hCfg.EnforceWindowsShareModes)
	require.True(t, hCfg.RootBypassPermissions)
}

func TestBackstoreManagerConfigTranslation(t *testing.T) {
	cfg := Default()
	cfg.Backstore.Mode = "ram_disk"
	cfg.Backstore.RamDiskMountPoint = "/mnt/agentfs"
	cfg.Backstore.RamDiskSize = 256 << 20
	cfg.Backstore.RamDiskFsType = "tmpfs"

	bsCfg := cfg.BackstoreManagerConfig()
	require.Equal(t, "/mnt/agentfs", bsCfg.RamDiskMountPoint)
	require.Equal(t, 256, bsCfg.RamDiskSizeMB)
	require.Equal(t, "tmpfs", bsCfg.RamDiskFsType)
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}
