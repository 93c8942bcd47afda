// Package config resolves the settings of the messaging substrate a transport runs on.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

const (
	DefaultConfigurationName      = "default-mesh.yaml"
	DefaultDistributedSyncTimeout = 4 * time.Minute
)

//go:embed default-mesh.yaml
var defaultConfiguration []byte

var (
	ErrInvalidConfigurationString = errors.New("invalid configuration string")
)

// Source tells which configuration source a Stack was read from.
type Source int

const (
	SourceFile Source = iota
	SourceMarkup
	SourceString
	SourceDefault
)

func (s Source) String() string {
	switch s {
	case SourceFile:
		return "file"
	case SourceMarkup:
		return "markup"
	case SourceString:
		return "string"
	case SourceDefault:
		return "default"
	}
	return "unknown"
}

// Global holds the cluster-wide settings of a transport. At most one of
// ConfigurationFile, ConfigurationMarkup and ConfigurationString should be set; when
// several are, the first one in that order is used.
type Global struct {
	ClusterName            string
	NodeName               string
	DistributedSyncTimeout time.Duration
	ConfigurationFile      string
	// ConfigurationMarkup is an inline YAML document.
	ConfigurationMarkup string
	// ConfigurationString is a list of key=value pairs separated by semicolons.
	ConfigurationString string
}

// Stack holds the substrate settings.
type Stack struct {
	Source Source `mapstructure:"-"`
	// Origin names where the settings were read from: a file path, or the source name.
	Origin string `mapstructure:"-"`

	Kind                   string   `mapstructure:"kind"`
	BindAddress            string   `mapstructure:"bind_address"`
	BindPort               int      `mapstructure:"bind_port"`
	AdvertiseAddress       string   `mapstructure:"advertise_address"`
	AdvertisePort          int      `mapstructure:"advertise_port"`
	RPCPort                int      `mapstructure:"rpc_port"`
	JoinPeers              []string `mapstructure:"join_peers"`
	Discovery              string   `mapstructure:"discovery"`
	ConsulService          string   `mapstructure:"consul_service"`
	StreamingStateTransfer bool     `mapstructure:"streaming_state_transfer"`
	StateChunkSize         int      `mapstructure:"state_chunk_size"`
}

func newViper(fs afero.Fs) *viper.Viper {
	v := viper.New()
	v.SetFs(fs)
	v.SetDefault("kind", "mesh")
	v.SetDefault("bind_address", "0.0.0.0")
	v.SetDefault("bind_port", 7946)
	v.SetDefault("rpc_port", 7947)
	v.SetDefault("discovery", "static")
	v.SetDefault("consul_service", "grid")
	v.SetDefault("streaming_state_transfer", true)
	v.SetDefault("state_chunk_size", 64*1024)
	return v
}

// Load reads the substrate settings from the first configuration source present in
// global, falling back to the bundled default.
func Load(fs afero.Fs, global Global) (Stack, error) {
	v := newViper(fs)
	var stack Stack
	switch {
	case global.ConfigurationFile != "":
		path, err := LookupFile(fs, global.ConfigurationFile)
		if err != nil {
			return Stack{}, err
		}
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Stack{}, pkgerrors.Wrapf(err, "failed to read configuration file %q", path)
		}
		stack.Source, stack.Origin = SourceFile, path
	case global.ConfigurationMarkup != "":
		v.SetConfigType("yaml")
		if err := v.ReadConfig(strings.NewReader(global.ConfigurationMarkup)); err != nil {
			return Stack{}, pkgerrors.Wrap(err, "failed to parse configuration markup")
		}
		stack.Source, stack.Origin = SourceMarkup, SourceMarkup.String()
	case global.ConfigurationString != "":
		values, err := ParseString(global.ConfigurationString)
		if err != nil {
			return Stack{}, err
		}
		if err := v.MergeConfigMap(values); err != nil {
			return Stack{}, pkgerrors.Wrap(err, "failed to load configuration string")
		}
		stack.Source, stack.Origin = SourceString, SourceString.String()
	default:
		v.SetConfigType("yaml")
		if err := v.ReadConfig(bytes.NewReader(defaultConfiguration)); err != nil {
			return Stack{}, pkgerrors.Wrap(err, "failed to parse bundled configuration")
		}
		stack.Source, stack.Origin = SourceDefault, DefaultConfigurationName
	}
	source, origin := stack.Source, stack.Origin
	if err := v.Unmarshal(&stack); err != nil {
		return Stack{}, pkgerrors.Wrap(err, "invalid configuration")
	}
	stack.Source, stack.Origin = source, origin
	return stack, nil
}

// ParseString parses a configuration string made of key=value pairs separated by
// semicolons. Keys are case-insensitive.
func ParseString(s string) (map[string]interface{}, error) {
	out := map[string]interface{}{}
	for _, pair := range strings.Split(s, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		idx := strings.IndexByte(pair, '=')
		if idx <= 0 {
			return nil, pkgerrors.Wrapf(ErrInvalidConfigurationString, "malformed pair %q", pair)
		}
		key := strings.ToLower(strings.TrimSpace(pair[:idx]))
		out[key] = strings.TrimSpace(pair[idx+1:])
	}
	if len(out) == 0 {
		return nil, pkgerrors.Wrap(ErrInvalidConfigurationString, "no setting found")
	}
	return out, nil
}

// Validate checks a Global before it is used to start a transport.
func (g Global) Validate() error {
	if g.ClusterName == "" {
		return errors.New("cluster name must not be empty")
	}
	if g.DistributedSyncTimeout < 0 {
		return fmt.Errorf("invalid distributed sync timeout: %s", g.DistributedSyncTimeout)
	}
	return nil
}

// WithDefaults returns g with its unset fields filled.
func (g Global) WithDefaults() Global {
	if g.DistributedSyncTimeout == 0 {
		g.DistributedSyncTimeout = DefaultDistributedSyncTimeout
	}
	return g
}
