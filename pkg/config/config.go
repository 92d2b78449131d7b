// Package config loads the AgentFS filesystem configuration (spec.md §6
// FsConfig) the same way the teacher loads its server configuration:
// viper-backed, layered environment > file > default precedence,
// validated with go-playground/validator, with human-readable durations and
// byte sizes accepted in the config file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/blocksense-network/agentfs/internal/bytesize"
	"github.com/blocksense-network/agentfs/pkg/backstore"
	"github.com/blocksense-network/agentfs/pkg/handle"
	"github.com/blocksense-network/agentfs/pkg/namespace"
)

// FsConfig is the filesystem-wide configuration spec.md §6 names. It governs
// one AgentFS core instance: case sensitivity, permission policy, the
// backstore backing upper data, copy-up strategy, interpose/FD-forwarding
// policy, adapter cache TTL hints, and whether events are tracked at all.
//
// Configuration sources, highest precedence first:
//  1. Environment variables (AGENTFS_*)
//  2. Configuration file (YAML)
//  3. Default() values
//
// Load builds its own viper instance and binds no command-line flags.
type FsConfig struct {
	// CaseSensitivity selects path-component comparison: "sensitive" or
	// "insensitive_preserving".
	CaseSensitivity string `mapstructure:"case_sensitivity" validate:"required,oneof=sensitive insensitive_preserving" yaml:"case_sensitivity"`

	// RootBypassPermissions lets a caller with uid 0 bypass mode-bit checks.
	RootBypassPermissions bool `mapstructure:"root_bypass_permissions" yaml:"root_bypass_permissions"`

	// EnforceWindowsShareModes makes share-mode admission mandatory for
	// every handle, not only ones marked Windows-origin.
	EnforceWindowsShareModes bool `mapstructure:"enforce_windows_share_modes" yaml:"enforce_windows_share_modes"`

	// SymlinkDepthCap is handed to namespace.Config.SymlinkDepth. The
	// namespace graph does not read that field: symlink resolution is
	// always capped at namespace.DefaultSymlinkDepth. Default: 40.
	SymlinkDepthCap int `mapstructure:"symlink_depth_cap" validate:"omitempty,gt=0" yaml:"symlink_depth_cap"`

	// TrackEvents controls whether the Event Bus emits at all; disabling it
	// is a pure no-op for watcher-less embedders.
	TrackEvents bool `mapstructure:"track_events" yaml:"track_events"`

	// Cache holds per-adapter attribute/entry/negative-lookup TTL hints.
	Cache CacheTTLConfig `mapstructure:"cache" yaml:"cache"`

	// Backstore selects and configures the upper-data storage backing.
	Backstore BackstoreConfig `mapstructure:"backstore" yaml:"backstore"`

	// CopyUp controls how copy-up derives a new upper node's mode and ACL
	// from its lower counterpart.
	CopyUp CopyUpConfig `mapstructure:"copyup" yaml:"copyup"`

	// Interpose controls FD-forwarding policy for the interpose shim.
	Interpose InterposeConfig `mapstructure:"interpose" yaml:"interpose"`

	// Policy holds the remaining miscellaneous policy knobs spec.md §6
	// groups under `policy`.
	Policy PolicyConfig `mapstructure:"policy" yaml:"policy"`

	// Logging controls the core's structured log output.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// WatchLowerChanges starts an fsnotify watch over the Lower Provider's
	// host directory (effective only when that provider is a
	// *lower.HostFsProvider), so out-of-band edits made directly on the
	// lower filesystem are surfaced on the event bus alongside the core's
	// own upper mutations. Off by default: most embedders overlay a
	// directory no other process touches, and the watch costs one fsnotify
	// handle per lower subdirectory.
	WatchLowerChanges bool `mapstructure:"watch_lower_changes" yaml:"watch_lower_changes"`
}

// CacheTTLConfig is spec.md §6's `cache { attr_timeout, entry_timeout,
// negative_timeout }` block: per-adapter TTL hints the core hands back on
// Statfs/attribute passthrough for adapters that cache kernel-side.
type CacheTTLConfig struct {
	AttrTimeout     time.Duration `mapstructure:"attr_timeout" yaml:"attr_timeout"`
	EntryTimeout    time.Duration `mapstructure:"entry_timeout" yaml:"entry_timeout"`
	NegativeTimeout time.Duration `mapstructure:"negative_timeout" yaml:"negative_timeout"`
}

// BackstoreConfig is spec.md §6's `backstore { mode, prefer_native_snapshots
// }` block, plus the per-mode fields each Mode needs.
type BackstoreConfig struct {
	// Mode selects the storage backing: "in_memory", "host_fs", or "ram_disk".
	Mode string `mapstructure:"mode" validate:"required,oneof=in_memory host_fs ram_disk" yaml:"mode"`

	// HostFsRoot is the directory backing HostFs mode.
	HostFsRoot string `mapstructure:"host_fs_root" validate:"required_if=Mode host_fs" yaml:"host_fs_root,omitempty"`

	// RamDiskMountPoint, RamDiskSizeMB, RamDiskFsType configure RamDisk mode.
	RamDiskMountPoint string            `mapstructure:"ram_disk_mount_point" validate:"required_if=Mode ram_disk" yaml:"ram_disk_mount_point,omitempty"`
	RamDiskSize       bytesize.ByteSize `mapstructure:"ram_disk_size" yaml:"ram_disk_size,omitempty"`
	RamDiskFsType     string            `mapstructure:"ram_disk_fs_type" yaml:"ram_disk_fs_type,omitempty"`

	// PreferNativeSnapshots asks the Backstore Manager to delegate to a
	// native snapshot facility when the selected mode supports one.
	PreferNativeSnapshots bool `mapstructure:"prefer_native_snapshots" yaml:"prefer_native_snapshots"`
}

// CopyUpConfig is spec.md §6's `copyup { mode_strategy, acl_strategy }`
// block.
type CopyUpConfig struct {
	// ModeStrategy is one of "clone", "clone_and_umask", "fixed".
	ModeStrategy string `mapstructure:"mode_strategy" validate:"required,oneof=clone clone_and_umask fixed" yaml:"mode_strategy"`
	// AclStrategy is one of "clone", "drop", "map_basic".
	AclStrategy string `mapstructure:"acl_strategy" validate:"required,oneof=clone drop map_basic" yaml:"acl_strategy"`
	// Umask applies when ModeStrategy is "clone_and_umask". Octal notation
	// (e.g. "0022") is accepted in the config file.
	Umask uint32 `mapstructure:"umask" yaml:"umask,omitempty"`
	// FixedMode applies when ModeStrategy is "fixed".
	FixedMode uint32 `mapstructure:"fixed_mode" yaml:"fixed_mode,omitempty"`
}

// InterposeConfig is spec.md §6's `interpose { forwarding, max_copy_bytes,
// require_reflink }` block.
type InterposeConfig struct {
	// Forwarding is "eager_upperize" or "disabled".
	Forwarding string `mapstructure:"forwarding" validate:"required,oneof=eager_upperize disabled" yaml:"forwarding"`
	// MaxCopyBytes bounds fd_open's fallback bounded copy.
	MaxCopyBytes bytesize.ByteSize `mapstructure:"max_copy_bytes" yaml:"max_copy_bytes"`
	// RequireReflink fails fd_open rather than falling back to a bounded
	// copy when the backstore can't reflink.
	RequireReflink bool `mapstructure:"require_reflink" yaml:"require_reflink"`
}

// PolicyConfig is spec.md §6's `policy { windows_open_redirect }` block.
type PolicyConfig struct {
	WindowsOpenRedirect bool `mapstructure:"windows_open_redirect" yaml:"windows_open_redirect"`
}

// LoggingConfig controls the core's structured logging, mirroring the
// teacher's logging config shape.
type LoggingConfig struct {
	// Level is the minimum log level to output.
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive).
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format: text or json.
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written: stdout, stderr, or a path.
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// Default returns the configuration an embedder gets with no config file and
// no environment overrides: in-memory backstore, case-sensitive, advisory
// (non-enforced) share modes, events tracked, conservative interpose policy.
func Default() *FsConfig {
	return &FsConfig{
		CaseSensitivity:          "sensitive",
		RootBypassPermissions:    false,
		EnforceWindowsShareModes: false,
		SymlinkDepthCap:          namespace.DefaultSymlinkDepth,
		TrackEvents:              true,
		Cache: CacheTTLConfig{
			AttrTimeout:     time.Second,
			EntryTimeout:    time.Second,
			NegativeTimeout: time.Second,
		},
		Backstore: BackstoreConfig{
			Mode:                  "in_memory",
			PreferNativeSnapshots: true,
		},
		CopyUp: CopyUpConfig{
			ModeStrategy: "clone",
			AclStrategy:  "clone",
		},
		Interpose: InterposeConfig{
			Forwarding:     "eager_upperize",
			MaxCopyBytes:   bytesize.ByteSize(64 << 20),
			RequireReflink: false,
		},
		Policy: PolicyConfig{
			WindowsOpenRedirect: false,
		},
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "text",
			Output: "stderr",
		},
		WatchLowerChanges: false,
	}
}

// Load reads configuration from configPath (or the default search path if
// empty), environment variables (AGENTFS_ prefix), and defaults, with
// environment variables overriding the file and the file overriding
// defaults, then validates the result.
func Load(configPath string) (*FsConfig, error) {
	v := viper.New()
	setDefaults(v)
	setupViper(v, configPath)

	if _, err := readConfigFile(v); err != nil {
		return nil, err
	}

	cfg := Default()
	decodeHook := mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
	if err := v.Unmarshal(cfg, viper.DecodeHook(decodeHook)); err != nil {
		return nil, fmt.Errorf("config: decode failed: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	return cfg, nil
}

// MustLoad is Load but panics on error; callers that have already validated
// the config path (e.g. a CLI flag parse) use this to avoid a second error
// path.
func MustLoad(configPath string) *FsConfig {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err)
	}
	return cfg
}

// Save writes cfg to path in YAML, respecting the yaml struct tags.
func Save(cfg *FsConfig, path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: create directory: %w", err)
		}
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("case_sensitivity", d.CaseSensitivity)
	v.SetDefault("root_bypass_permissions", d.RootBypassPermissions)
	v.SetDefault("enforce_windows_share_modes", d.EnforceWindowsShareModes)
	v.SetDefault("symlink_depth_cap", d.SymlinkDepthCap)
	v.SetDefault("track_events", d.TrackEvents)
	v.SetDefault("backstore.mode", d.Backstore.Mode)
	v.SetDefault("backstore.prefer_native_snapshots", d.Backstore.PreferNativeSnapshots)
	v.SetDefault("copyup.mode_strategy", d.CopyUp.ModeStrategy)
	v.SetDefault("copyup.acl_strategy", d.CopyUp.AclStrategy)
	v.SetDefault("interpose.forwarding", d.Interpose.Forwarding)
	v.SetDefault("interpose.require_reflink", d.Interpose.RequireReflink)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.output", d.Logging.Output)
	v.SetDefault("watch_lower_changes", d.WatchLowerChanges)
}

// setupViper configures environment variable binding and config file search,
// mirroring the teacher's setupViper.
func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("AGENTFS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	configDir := defaultConfigDir()
	v.AddConfigPath(configDir)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("config: read file: %w", err)
	}
	return true, nil
}

func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

func defaultConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "agentfs")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "agentfs")
}

// NamespaceConfig translates FsConfig into the namespace.Config the Graph
// constructor takes.
func (c *FsConfig) NamespaceConfig() namespace.Config {
	caseMode := namespace.CaseSensitive
	if c.CaseSensitivity == "insensitive_preserving" {
		caseMode = namespace.CaseInsensitivePreserving
	}
	depth := c.SymlinkDepthCap
	if depth <= 0 {
		depth = namespace.DefaultSymlinkDepth
	}

	modeStrategy := namespace.ModeClone
	switch c.CopyUp.ModeStrategy {
	case "clone_and_umask":
		modeStrategy = namespace.ModeCloneAndUmask
	case "fixed":
		modeStrategy = namespace.ModeFixed
	}
	aclStrategy := namespace.AclClone
	switch c.CopyUp.AclStrategy {
	case "drop":
		aclStrategy = namespace.AclDrop
	case "map_basic":
		aclStrategy = namespace.AclMapBasic
	}

	return namespace.Config{
		CaseMode:     caseMode,
		SymlinkDepth: depth,
		CopyUp: namespace.CopyUpConfig{
			ModeStrategy: modeStrategy,
			AclStrategy:  aclStrategy,
			Umask:        c.CopyUp.Umask,
			FixedMode:    c.CopyUp.FixedMode,
		},
	}
}

// HandleConfig translates FsConfig into the handle.Config the Handle & Lock
// Manager constructor takes.
func (c *FsConfig) HandleConfig() handle.Config {
	return handle.Config{
		EnforceWindowsShareModes: c.EnforceWindowsShareModes,
		RootBypassPermissions:    c.RootBypassPermissions,
	}
}

// BackstoreManagerConfig translates FsConfig into the backstore.Config the
// Backstore Manager constructor takes.
func (c *FsConfig) BackstoreManagerConfig() backstore.Config {
	mode := backstore.InMemory
	switch c.Backstore.Mode {
	case "host_fs":
		mode = backstore.HostFs
	case "ram_disk":
		mode = backstore.RamDisk
	}
	return backstore.Config{
		Mode:              mode,
		HostFsRoot:        c.Backstore.HostFsRoot,
		RamDiskMountPoint: c.Backstore.RamDiskMountPoint,
		RamDiskSizeMB:     int(c.Backstore.RamDiskSize.Uint64() >> 20),
		RamDiskFsType:     c.Backstore.RamDiskFsType,
		PreferNativeSnaps: c.Backstore.PreferNativeSnapshots,
	}
}
