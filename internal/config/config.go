// Package config loads and saves transfer.conf, the user's defaults for
// ssh hardening, transport selection and logging.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"gopkg.in/ini.v1"

	"github.com/45Drives/studio-share-sub000/internal/command"
	"github.com/45Drives/studio-share-sub000/internal/logging"
	"github.com/45Drives/studio-share-sub000/internal/models"
)

// TransportAuto lets the resolver pick the transport.
const TransportAuto = "auto"

// Config is the parsed transfer.conf.
//
//	[ssh]
//	known_hosts =
//	connect_timeout_seconds = 10
//	server_alive_interval_seconds = 15
//	server_alive_count_max = 2
//
//	[transfer]
//	transport = auto
//	bwlimit_kbps = 0
//	port = 22
//	max_concurrent = 4
//
//	[logging]
//	level = info
//	json = false
type Config struct {
	SSH      SSHConfig
	Transfer TransferConfig
	Logging  LoggingConfig
}

// SSHConfig holds the ssh client hardening options.
type SSHConfig struct {
	// KnownHosts is empty for ~/.ssh/known_hosts.
	KnownHosts                 string
	ConnectTimeoutSeconds      int
	ServerAliveIntervalSeconds int
	ServerAliveCountMax        int
}

// TransferConfig holds request defaults.
type TransferConfig struct {
	// Transport is "auto" or a transport name accepted by
	// models.ParseTransportKind.
	Transport     string
	BwLimitKbps   int
	Port          int
	MaxConcurrent int
}

// LoggingConfig selects log verbosity and format.
type LoggingConfig struct {
	Level string
	JSON  bool
}

// Validation errors
var (
	ErrInvalidTransport      = errors.New("transport must be auto, rsync, scp, ssh-stream or sftp")
	ErrInvalidBwLimit        = errors.New("bwlimit_kbps must not be negative")
	ErrInvalidPort           = errors.New("port must be between 1 and 65535")
	ErrInvalidMaxConcurrent  = errors.New("max_concurrent must be between 1 and 32")
	ErrInvalidConnectTimeout = errors.New("connect_timeout_seconds must be between 1 and 600")
	ErrInvalidAliveInterval  = errors.New("server_alive_interval_seconds must be between 1 and 3600")
	ErrInvalidAliveCount     = errors.New("server_alive_count_max must be between 1 and 100")
)

// NewDefault returns a Config with default values.
func NewDefault() *Config {
	ssh := command.DefaultSSHOptions()
	return &Config{
		SSH: SSHConfig{
			ConnectTimeoutSeconds:      ssh.ConnectTimeout,
			ServerAliveIntervalSeconds: ssh.ServerAliveInterval,
			ServerAliveCountMax:        ssh.ServerAliveCountMax,
		},
		Transfer: TransferConfig{
			Transport:     TransportAuto,
			Port:          models.DefaultSSHPort,
			MaxConcurrent: 4,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads path. A missing file yields the defaults and no error; keys
// absent from the file keep their default values.
func Load(path string) (*Config, error) {
	cfg := NewDefault()

	if path == "" {
		var err error
		if path, err = DefaultPath(); err != nil {
			return cfg, nil
		}
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	f, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", filepath.Base(path), err)
	}

	ssh := f.Section("ssh")
	cfg.SSH.KnownHosts = ssh.Key("known_hosts").String()
	cfg.SSH.ConnectTimeoutSeconds = ssh.Key("connect_timeout_seconds").MustInt(cfg.SSH.ConnectTimeoutSeconds)
	cfg.SSH.ServerAliveIntervalSeconds = ssh.Key("server_alive_interval_seconds").MustInt(cfg.SSH.ServerAliveIntervalSeconds)
	cfg.SSH.ServerAliveCountMax = ssh.Key("server_alive_count_max").MustInt(cfg.SSH.ServerAliveCountMax)

	tr := f.Section("transfer")
	cfg.Transfer.Transport = tr.Key("transport").MustString(TransportAuto)
	cfg.Transfer.BwLimitKbps = tr.Key("bwlimit_kbps").MustInt(0)
	cfg.Transfer.Port = tr.Key("port").MustInt(models.DefaultSSHPort)
	cfg.Transfer.MaxConcurrent = tr.Key("max_concurrent").MustInt(cfg.Transfer.MaxConcurrent)

	lg := f.Section("logging")
	cfg.Logging.Level = lg.Key("level").MustString("info")
	cfg.Logging.JSON = lg.Key("json").MustBool(false)

	return cfg, nil
}

// Save writes cfg to path through a temporary file and a rename. The file
// is readable by the owner only.
func (cfg *Config) Save(path string) error {
	if path == "" {
		var err error
		if path, err = DefaultPath(); err != nil {
			return fmt.Errorf("failed to determine config path: %w", err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f := ini.Empty()
	ssh, err := f.NewSection("ssh")
	if err != nil {
		return err
	}
	ssh.Key("known_hosts").SetValue(cfg.SSH.KnownHosts)
	ssh.Key("connect_timeout_seconds").SetValue(strconv.Itoa(cfg.SSH.ConnectTimeoutSeconds))
	ssh.Key("server_alive_interval_seconds").SetValue(strconv.Itoa(cfg.SSH.ServerAliveIntervalSeconds))
	ssh.Key("server_alive_count_max").SetValue(strconv.Itoa(cfg.SSH.ServerAliveCountMax))

	tr, err := f.NewSection("transfer")
	if err != nil {
		return err
	}
	tr.Key("transport").SetValue(cfg.Transfer.Transport)
	tr.Key("bwlimit_kbps").SetValue(strconv.Itoa(cfg.Transfer.BwLimitKbps))
	tr.Key("port").SetValue(strconv.Itoa(cfg.Transfer.Port))
	tr.Key("max_concurrent").SetValue(strconv.Itoa(cfg.Transfer.MaxConcurrent))

	lg, err := f.NewSection("logging")
	if err != nil {
		return err
	}
	lg.Key("level").SetValue(cfg.Logging.Level)
	lg.Key("json").SetValue(strconv.FormatBool(cfg.Logging.JSON))

	tmp := path + ".tmp"
	if err := f.SaveTo(tmp); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if runtime.GOOS != "windows" {
		if err := os.Chmod(tmp, 0o600); err != nil {
			os.Remove(tmp)
			return fmt.Errorf("failed to set config permissions: %w", err)
		}
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

// Validate returns the first invalid setting as one of the Err values.
func (cfg *Config) Validate() error {
	if cfg.Transfer.Transport != TransportAuto {
		if _, ok := models.ParseTransportKind(cfg.Transfer.Transport); !ok {
			return ErrInvalidTransport
		}
	}
	if cfg.Transfer.BwLimitKbps < 0 {
		return ErrInvalidBwLimit
	}
	if cfg.Transfer.Port < 1 || cfg.Transfer.Port > 65535 {
		return ErrInvalidPort
	}
	if cfg.Transfer.MaxConcurrent < 1 || cfg.Transfer.MaxConcurrent > 32 {
		return ErrInvalidMaxConcurrent
	}
	if cfg.SSH.ConnectTimeoutSeconds < 1 || cfg.SSH.ConnectTimeoutSeconds > 600 {
		return ErrInvalidConnectTimeout
	}
	if cfg.SSH.ServerAliveIntervalSeconds < 1 || cfg.SSH.ServerAliveIntervalSeconds > 3600 {
		return ErrInvalidAliveInterval
	}
	if cfg.SSH.ServerAliveCountMax < 1 || cfg.SSH.ServerAliveCountMax > 100 {
		return ErrInvalidAliveCount
	}
	return nil
}

// SSHOptions converts the [ssh] section for command construction.
func (cfg *Config) SSHOptions() command.SSHOptions {
	return command.SSHOptions{
		ConnectTimeout:      cfg.SSH.ConnectTimeoutSeconds,
		ServerAliveInterval: cfg.SSH.ServerAliveIntervalSeconds,
		ServerAliveCountMax: cfg.SSH.ServerAliveCountMax,
	}
}

// ForcedTransport returns the configured transport, or false for auto.
func (cfg *Config) ForcedTransport() (models.TransportKind, bool) {
	if cfg.Transfer.Transport == "" || cfg.Transfer.Transport == TransportAuto {
		return "", false
	}
	return models.ParseTransportKind(cfg.Transfer.Transport)
}

// LogMode returns the configured log format.
func (cfg *Config) LogMode() logging.Mode {
	if cfg.Logging.JSON {
		return logging.ModeJSON
	}
	return logging.ModeConsole
}
