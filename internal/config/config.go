package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied to fields left empty in the file or skipped at the prompt
const (
	DefaultBindAddress    = "0.0.0.0"
	DefaultUDPPort        = 5005
	DefaultMaxHosts       = 8
	DefaultMaxPackageSize = 4096
	DefaultQueueSize      = 20
	DefaultReceiveTimeout = 1   // seconds
	DefaultJoinTimeout    = 8   // seconds
	DefaultPeerTimeout    = 120 // seconds
)

// ErrNotFound is returned by Load when the configuration file does not exist
var ErrNotFound = errors.New("config file not found")

// Config represents the complete service configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	HTTP    HTTPConfig    `yaml:"http"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig contains UDP server configuration
type ServerConfig struct {
	BindAddress    string `yaml:"bind_address"`
	UDPPort        int    `yaml:"udp_port"`
	MaxHosts       int    `yaml:"max_hosts"`
	MaxPackageSize int    `yaml:"max_package_size"`
	QueueSize      int    `yaml:"queue_size"`
	ReceiveTimeout int    `yaml:"receive_timeout"` // seconds
	JoinTimeout    int    `yaml:"join_timeout"`    // seconds
	PeerTimeout    int    `yaml:"peer_timeout"`    // seconds, 0 disables eviction
}

// HTTPConfig contains HTTP monitoring API configuration
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns a configuration with every tunable set to its default
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			BindAddress:    DefaultBindAddress,
			UDPPort:        DefaultUDPPort,
			MaxHosts:       DefaultMaxHosts,
			MaxPackageSize: DefaultMaxPackageSize,
			QueueSize:      DefaultQueueSize,
			ReceiveTimeout: DefaultReceiveTimeout,
			JoinTimeout:    DefaultJoinTimeout,
			PeerTimeout:    DefaultPeerTimeout,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// Load reads and parses the configuration file. Keys missing from the file
// keep their defaults. A missing file yields an error wrapping ErrNotFound.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Prompt builds a configuration interactively. It asks for the bind
// address, UDP port and maximum number of hosts; an empty answer keeps the
// default. Everything else uses defaults.
func Prompt(in io.Reader, out io.Writer) (*Config, error) {
	config := Default()
	reader := bufio.NewReader(in)

	fmt.Fprintln(out, "There is no config file for the server, enter interface, port number and max hosts")

	address, err := ask(reader, out, "Enter host IP x.x.x.x", config.Server.BindAddress)
	if err != nil {
		return nil, err
	}
	config.Server.BindAddress = address

	port, err := askInt(reader, out, "Enter port number", config.Server.UDPPort)
	if err != nil {
		return nil, err
	}
	config.Server.UDPPort = port

	hosts, err := askInt(reader, out, "Enter max hosts to connect with", config.Server.MaxHosts)
	if err != nil {
		return nil, err
	}
	config.Server.MaxHosts = hosts

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func ask(reader *bufio.Reader, out io.Writer, question, def string) (string, error) {
	fmt.Fprintf(out, "%s [%s]: ", question, def)

	line, err := reader.ReadString('\n')
	// EOF without an answer keeps the default
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read answer: %w", err)
	}

	line = strings.TrimSpace(line)
	if line == "" {
		return def, nil
	}
	return line, nil
}

func askInt(reader *bufio.Reader, out io.Writer, question string, def int) (int, error) {
	answer, err := ask(reader, out, question, strconv.Itoa(def))
	if err != nil {
		return 0, err
	}

	value, err := strconv.Atoi(answer)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", answer)
	}
	return value, nil
}

// Validate performs validation of the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	if s.BindAddress == "" {
		return fmt.Errorf("bind_address cannot be empty")
	}

	if net.ParseIP(s.BindAddress) == nil && s.BindAddress != "localhost" {
		return fmt.Errorf("bind_address must be an IP address, got '%s'", s.BindAddress)
	}

	if s.UDPPort < 1 || s.UDPPort > 65535 {
		return fmt.Errorf("udp_port must be between 1 and 65535, got %d", s.UDPPort)
	}

	if s.MaxHosts < 1 {
		return fmt.Errorf("max_hosts must be at least 1, got %d", s.MaxHosts)
	}

	if s.MaxPackageSize < 64 || s.MaxPackageSize > 65507 {
		return fmt.Errorf("max_package_size must be between 64 and 65507 bytes, got %d", s.MaxPackageSize)
	}

	if s.QueueSize < 1 {
		return fmt.Errorf("queue_size must be at least 1, got %d", s.QueueSize)
	}

	if s.ReceiveTimeout < 1 {
		return fmt.Errorf("receive_timeout must be at least 1 second, got %d", s.ReceiveTimeout)
	}

	if s.JoinTimeout < 1 {
		return fmt.Errorf("join_timeout must be at least 1 second, got %d", s.JoinTimeout)
	}

	if s.PeerTimeout < 0 {
		return fmt.Errorf("peer_timeout cannot be negative, got %d", s.PeerTimeout)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetReceiveTimeoutDuration returns the socket read timeout as a time.Duration
func (s *ServerConfig) GetReceiveTimeoutDuration() time.Duration {
	return time.Duration(s.ReceiveTimeout) * time.Second
}

// GetJoinTimeoutDuration returns the worker join timeout as a time.Duration
func (s *ServerConfig) GetJoinTimeoutDuration() time.Duration {
	return time.Duration(s.JoinTimeout) * time.Second
}

// GetPeerTimeoutDuration returns the peer idle timeout as a time.Duration
func (s *ServerConfig) GetPeerTimeoutDuration() time.Duration {
	return time.Duration(s.PeerTimeout) * time.Second
}

// Address returns the UDP listen address in host:port form
func (s *ServerConfig) Address() string {
	return net.JoinHostPort(s.BindAddress, strconv.Itoa(s.UDPPort))
}
