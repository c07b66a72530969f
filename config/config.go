// Package config loads provisiond settings from defaults, an optional YAML
// file and the environment, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	envldr "github.com/SENERGY-Platform/go-env-loader"
	"gopkg.in/yaml.v3"

	"github.com/user/wifiprov/pairing"
	"github.com/user/wifiprov/provision"
	"github.com/user/wifiprov/util"
)

// Backends understood by provisiond.
const (
	BackendSim   = "sim"
	BackendBlueZ = "bluez"
)

type Config struct {
	DataDir  string `yaml:"data_dir" env_var:"WIFIPROV_DIR"`
	LogLevel string `yaml:"log_level" env_var:"WIFIPROV_LOG_LEVEL"`
	Backend  string `yaml:"backend" env_var:"WIFIPROV_BACKEND"`
	// Wireless interface managed through NetworkManager.
	Interface string `yaml:"interface" env_var:"WIFIPROV_INTERFACE"`

	Name         string        `yaml:"name" env_var:"WIFIPROV_NAME"`
	Appearance   int           `yaml:"appearance" env_var:"WIFIPROV_APPEARANCE"`
	AdvInterval  time.Duration `yaml:"adv_interval" env_var:"WIFIPROV_ADV_INTERVAL"`
	PollInterval time.Duration `yaml:"poll_interval" env_var:"WIFIPROV_POLL_INTERVAL"`
	ScanTimeout  time.Duration `yaml:"scan_timeout" env_var:"WIFIPROV_SCAN_TIMEOUT"`
	JoinTimeout  time.Duration `yaml:"join_timeout" env_var:"WIFIPROV_JOIN_TIMEOUT"`

	IOCapability string        `yaml:"io_capability" env_var:"WIFIPROV_IO_CAPABILITY"`
	MITM         bool          `yaml:"mitm" env_var:"WIFIPROV_MITM"`
	Bond         bool          `yaml:"bond" env_var:"WIFIPROV_BOND"`
	ConfirmDelay time.Duration `yaml:"confirm_delay" env_var:"WIFIPROV_CONFIRM_DELAY"`

	TeardownOnConnected bool `yaml:"teardown_on_connected" env_var:"WIFIPROV_TEARDOWN_ON_CONNECTED"`
	SkipIfConnected     bool `yaml:"skip_if_connected" env_var:"WIFIPROV_SKIP_IF_CONNECTED"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		DataDir:             util.GetDataDir(),
		LogLevel:            "info",
		Backend:             BackendSim,
		Interface:           "wlan0",
		Name:                provision.DefaultName,
		AdvInterval:         provision.DefaultAdvInterval,
		PollInterval:        provision.DefaultPollInterval,
		ScanTimeout:         provision.DefaultScanTimeout,
		JoinTimeout:         provision.DefaultJoinTimeout,
		IOCapability:        "DisplayYesNo",
		ConfirmDelay:        pairing.DefaultConfirmDelay,
		TeardownOnConnected: true,
		SkipIfConnected:     true,
	}
}

// DefaultPath is config.yaml in the data directory.
func DefaultPath() string {
	return filepath.Join(util.GetDataDir(), "config.yaml")
}

// Load applies the YAML file at path over the defaults, then the environment.
// A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := envldr.LoadEnvUserParser(&cfg, nil, typeParsers(), nil); err != nil {
		return cfg, fmt.Errorf("config: environment: %w", err)
	}
	return cfg, cfg.Validate()
}

func typeParsers() map[reflect.Type]envldr.Parser {
	return map[reflect.Type]envldr.Parser{
		reflect.TypeFor[time.Duration](): durationParser,
	}
}

func durationParser(_ reflect.Type, val string, _ []string, _ map[string]string) (interface{}, error) {
	return time.ParseDuration(val)
}

var ioCapabilities = map[string]pairing.IOCapability{
	"displayonly":     pairing.IODisplayOnly,
	"displayyesno":    pairing.IODisplayYesNo,
	"keyboardonly":    pairing.IOKeyboardOnly,
	"noinputnooutput": pairing.IONoInputOutput,
	"keyboarddisplay": pairing.IOKeyboardDisplay,
}

// Security returns the pairing configuration.
func (c Config) Security() (pairing.Security, error) {
	io, ok := ioCapabilities[strings.ToLower(c.IOCapability)]
	if !ok {
		return pairing.Security{}, fmt.Errorf("config: unknown io capability %q", c.IOCapability)
	}
	return pairing.Security{IO: io, MITM: c.MITM, Bond: c.Bond}, nil
}

// Validate checks values that cannot be corrected silently.
func (c Config) Validate() error {
	var errs []error
	if c.Backend != BackendSim && c.Backend != BackendBlueZ {
		errs = append(errs, fmt.Errorf("config: unknown backend %q", c.Backend))
	}
	if c.Name == "" {
		errs = append(errs, errors.New("config: empty advertising name"))
	}
	if c.Appearance < -32768 || c.Appearance > 32767 {
		errs = append(errs, fmt.Errorf("config: appearance %d out of range", c.Appearance))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, errors.New("config: poll interval must be positive"))
	}
	if _, err := c.Security(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Provision returns the service configuration.
func (c Config) Provision() (provision.Config, error) {
	sec, err := c.Security()
	if err != nil {
		return provision.Config{}, err
	}
	return provision.Config{
		Name:                c.Name,
		Appearance:          int16(c.Appearance),
		Revision:            provision.DefaultRevision,
		AdvInterval:         c.AdvInterval,
		PollInterval:        c.PollInterval,
		ScanTimeout:         c.ScanTimeout,
		JoinTimeout:         c.JoinTimeout,
		Security:            sec,
		TeardownOnConnected: c.TeardownOnConnected,
		SkipIfConnected:     c.SkipIfConnected,
	}, nil
}

// ProfilePath is where the simulated NIC keeps its profiles.
func (c Config) ProfilePath() string {
	return util.GetProfileStorePath(c.DataDir)
}
