// Package config loads and validates the archiver configuration: the
// server connection, the output layout, and the per-scope channel
// download options with their inheritance chain
// (built-in defaults → global → per-kind → per-team → per-channel).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/mmdl/mattermost-dl/pkg/model"
)

// ErrConfiguration marks invalid or missing configuration; callers
// report it without a stack of wrapping context.
var ErrConfiguration = errors.New("invalid configuration")

// ConfigName is the stem of the discovered configuration file.
const ConfigName = "mattermost-dl"

// acceptedVersion is the config file format version this build reads.
const acceptedVersion = "1"

// Config is the archiver configuration.
//
// Sources, in order of precedence:
//  1. CLI flags
//  2. MATTERMOST_* environment variables
//  3. Configuration file (YAML, JSON or TOML)
//  4. Built-in defaults
type Config struct {
	// Version of the config file format. Empty means current.
	Version string `mapstructure:"version" json:"version,omitempty"`

	Connection ConnectionConfig `mapstructure:"connection" json:"connection"`
	Throttling ThrottlingConfig `mapstructure:"throttling" json:"throttling,omitempty"`
	Output     OutputConfig     `mapstructure:"output"     json:"output,omitempty"`
	Report     ReportConfig     `mapstructure:"report"     json:"report,omitempty"`
	Logging    LoggingConfig    `mapstructure:"logging"    json:"logging,omitempty"`

	// Per-kind option scopes. Each layers over defaultChannelOptions.
	DefaultChannelOptions *ChannelOptionsPatch `mapstructure:"defaultChannelOptions" json:"defaultChannelOptions,omitempty"`
	UserChannelOptions    *ChannelOptionsPatch `mapstructure:"userChannelOptions"    json:"userChannelOptions,omitempty"`
	GroupChannelOptions   *ChannelOptionsPatch `mapstructure:"groupChannelOptions"   json:"groupChannelOptions,omitempty"`
	PrivateChannelOptions *ChannelOptionsPatch `mapstructure:"privateChannelOptions" json:"privateChannelOptions,omitempty"`
	PublicChannelOptions  *ChannelOptionsPatch `mapstructure:"publicChannelOptions"  json:"publicChannelOptions,omitempty"`

	// Channel selection. Nil Download* flags default to true.
	DownloadTeamChannels  *bool              `mapstructure:"downloadTeamChannels"  json:"downloadTeamChannels,omitempty"`
	Teams                 []TeamSpec         `mapstructure:"teams"                 json:"teams,omitempty"`
	DownloadUserChannels  *bool              `mapstructure:"downloadUserChannels"  json:"downloadUserChannels,omitempty"`
	Users                 []ChannelSpec      `mapstructure:"users"                 json:"users,omitempty"`
	DownloadGroupChannels *bool              `mapstructure:"downloadGroupChannels" json:"downloadGroupChannels,omitempty"`
	Groups                []GroupChannelSpec `mapstructure:"groups"                json:"groups,omitempty"`

	// DownloadEmojis fetches the server's whole custom emoji database,
	// independently of per-channel emoji options.
	DownloadEmojis bool `mapstructure:"downloadEmojis" json:"downloadEmojis,omitempty"`

	// Resolved option scopes, computed after loading.
	ChannelDefaults        ChannelOptions `mapstructure:"-" json:"-"`
	DirectChannelDefaults  ChannelOptions `mapstructure:"-" json:"-"`
	GroupChannelDefaults   ChannelOptions `mapstructure:"-" json:"-"`
	PrivateChannelDefaults ChannelOptions `mapstructure:"-" json:"-"`
	PublicChannelDefaults  ChannelOptions `mapstructure:"-" json:"-"`
}

// ConnectionConfig identifies the server and the account to log in
// with. Token auth still needs the username to resolve the local user.
type ConnectionConfig struct {
	// Hostname is the server base URL, scheme included.
	Hostname string `mapstructure:"hostname" json:"hostname" validate:"required" jsonschema:"required"`
	Username string `mapstructure:"username" json:"username" validate:"required" jsonschema:"required"`
	Password string `mapstructure:"password" json:"password,omitempty"`
	Token    string `mapstructure:"token"    json:"token,omitempty"`
}

// ThrottlingConfig spaces out paginated server requests.
type ThrottlingConfig struct {
	// LoopDelay is the pause between pages. Plain numbers in the config
	// file are milliseconds.
	LoopDelay time.Duration `mapstructure:"loopDelay" json:"loopDelay,omitempty"`
}

// OutputConfig controls where and how archives are written.
type OutputConfig struct {
	// Directory receives the archive files. Defaults to the working
	// directory.
	Directory string `mapstructure:"directory" json:"directory,omitempty"`
	// HumanFriendlyPosts adds redundant readable fields (user and
	// emoji names) to stored posts.
	HumanFriendlyPosts bool `mapstructure:"humanFriendlyPosts" json:"humanFriendlyPosts,omitempty"`
}

// ReportConfig controls progress reporting and interactive recovery.
type ReportConfig struct {
	// ProgressInterval is the number of posts between progress log
	// lines.
	ProgressInterval int `mapstructure:"progressInterval" json:"progressInterval,omitempty" validate:"omitempty,gt=0"`
	// ShowProgress forces progress reporting on or off; nil leaves the
	// default (on).
	ShowProgress *bool `mapstructure:"showProgress" json:"showProgress,omitempty"`
	// InteractiveRecovery prompts on data-losing decisions instead of
	// taking the configured default action.
	InteractiveRecovery bool `mapstructure:"interactiveRecovery" json:"interactiveRecovery,omitempty"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	// Level is the minimum level: DEBUG, INFO, WARN or ERROR.
	Level string `mapstructure:"level" json:"level,omitempty" validate:"omitempty,oneof=DEBUG INFO WARN ERROR debug info warn error"`
	// Format is text or json.
	Format string `mapstructure:"format" json:"format,omitempty" validate:"omitempty,oneof=text json"`
}

// MiscTeams reports whether teams not listed explicitly are archived.
func (c *Config) MiscTeams() bool {
	return c.DownloadTeamChannels == nil || *c.DownloadTeamChannels
}

// MiscDirectChannels reports whether unlisted direct channels are
// archived.
func (c *Config) MiscDirectChannels() bool {
	return c.DownloadUserChannels == nil || *c.DownloadUserChannels
}

// MiscGroupChannels reports whether unlisted group channels are
// archived.
func (c *Config) MiscGroupChannels() bool {
	return c.DownloadGroupChannels == nil || *c.DownloadGroupChannels
}

// Load loads the configuration from the given file, or from the
// default locations when configPath is empty, then applies environment
// overrides, defaults, option inheritance and validation.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if found {
		if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
		}
	}
	if cfg.Version != "" && cfg.Version != acceptedVersion {
		return nil, fmt.Errorf("%w: unsupported config version %q (this build reads version %s)",
			ErrConfiguration, cfg.Version, acceptedVersion)
	}

	applyEnvOverrides(&cfg)
	ApplyDefaults(&cfg)
	cfg.resolveScopes()

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnvOverrides lets credentials come from the environment so the
// config file can stay free of secrets.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MATTERMOST_SERVER"); v != "" {
		cfg.Connection.Hostname = v
	}
	if v := os.Getenv("MATTERMOST_USERNAME"); v != "" {
		cfg.Connection.Username = v
	}
	if v := os.Getenv("MATTERMOST_PASSWORD"); v != "" {
		cfg.Connection.Password = v
	}
	if v := os.Getenv("MATTERMOST_TOKEN"); v != "" {
		cfg.Connection.Token = v
	}
}

// resolveScopes computes the per-kind option defaults from the
// built-in root and the file-level patches.
func (c *Config) resolveScopes() {
	c.ChannelDefaults = c.DefaultChannelOptions.Apply(DefaultChannelOptions())
	c.DirectChannelDefaults = c.UserChannelOptions.Apply(c.ChannelDefaults)
	c.GroupChannelDefaults = c.GroupChannelOptions.Apply(c.ChannelDefaults)
	c.PrivateChannelDefaults = c.PrivateChannelOptions.Apply(c.ChannelDefaults)
	c.PublicChannelDefaults = c.PublicChannelOptions.Apply(c.ChannelDefaults)
}

// setupViper points viper at the explicit file or the discovery
// locations: working directory, then $XDG_CONFIG_HOME, then
// ~/.config.
func setupViper(v *viper.Viper, configPath string) {
	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	v.SetConfigName(ConfigName)
	v.AddConfigPath(".")
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		v.AddConfigPath(xdg)
	}
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config"))
	}
}

// readConfigFile reads the configuration file if one exists.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	return true, nil
}

// configDecodeHooks converts config-file values into the typed fields:
// recovery actions by name, times from milliseconds or ISO-8601,
// durations from milliseconds or duration strings, group locators from
// either an id or a member list.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		timeDecodeHook(),
		millisDurationDecodeHook(),
		groupLocatorDecodeHook(),
	)
}

func timeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(model.Time(0)) {
			return data, nil
		}
		// YAML resolves unquoted dates into time.Time already.
		if t, ok := data.(time.Time); ok {
			return model.TimeFromMillis(t.UnixMilli()), nil
		}
		switch from.Kind() {
		case reflect.String, reflect.Int, reflect.Int64, reflect.Float64:
			return model.ParseTime(data)
		default:
			return data, nil
		}
	}
}

// millisDurationDecodeHook reads durations; bare numbers are taken as
// milliseconds since that is what the server-side rate limits are
// quoted in.
func millisDurationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v) * time.Millisecond, nil
		case int64:
			return time.Duration(v) * time.Millisecond, nil
		case float64:
			return time.Duration(v) * time.Millisecond, nil
		default:
			return data, nil
		}
	}
}

func groupLocatorDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(GroupLocator{}) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return GroupLocator{ID: model.Id(v)}, nil
		case []interface{}:
			var members []model.EntityLocator
			for _, raw := range v {
				var member model.EntityLocator
				if err := mapstructure.Decode(raw, &member); err != nil {
					return nil, fmt.Errorf("group member locator: %w", err)
				}
				members = append(members, member)
			}
			return GroupLocator{Members: members}, nil
		default:
			return data, nil
		}
	}
}

// DefaultConfigPath is where `config init` writes and the last place
// discovery looks.
func DefaultConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, ConfigName+".yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ConfigName + ".yaml"
	}
	return filepath.Join(home, ".config", ConfigName+".yaml")
}

// normalizeLogLevel uppercases the configured level for the logger.
func normalizeLogLevel(level string) string {
	return strings.ToUpper(level)
}
