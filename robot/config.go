package robot

import (
	"errors"
	"net"
	"strings"
	"time"

	"github.com/kinetra/go-arm/logger"
	"github.com/kinetra/go-arm/rcp"
)

// ErrConfigNil indicates that a nil Config was provided.
var ErrConfigNil = errors.New("config is nil")

// Config represents the configuration parameters for a robot client
// connection.
type Config struct {
	// host specifies the host of the robot.
	host string

	// port specifies the TCP port number of the robot's command channel.
	// Defaults to rcp.DefaultPort.
	port int

	// udpPort specifies the local UDP port for the realtime channel.
	// 0 selects an ephemeral port. The chosen port is announced to the robot
	// in the connect handshake.
	// Defaults to 0.
	udpPort int

	// connectTimeout defines the timeout for establishing the TCP command
	// connection. It should be between 0.1 and 30 seconds.
	// Defaults to 3 seconds.
	connectTimeout time.Duration

	// handshakeTimeout defines the timeout for the connect handshake response.
	// It should be between 0.1 and 30 seconds.
	// Defaults to 5 seconds.
	handshakeTimeout time.Duration

	// responseTimeout defines the reply timeout for auxiliary commands on the
	// command channel. It should be between 0.01 and 120 seconds.
	// Defaults to 5 seconds.
	responseTimeout time.Duration

	// stateTimeout defines the bounded wait for the next robot state on the
	// realtime channel. A realtime deployment should tune it strictly below
	// the robot's control cycle period so a lost connection is detected
	// within one cycle. It should be between 0.1 milliseconds and 10 seconds.
	// Defaults to 1 second.
	stateTimeout time.Duration

	// writeTimeout defines the timeout for writes on either channel.
	// It should be between 0.01 and 30 seconds.
	// Defaults to 1 second.
	writeTimeout time.Duration

	// pollTimeout defines how long each exchange cycle waits for pending
	// data on the command channel before moving on to the realtime channel.
	// It should stay well below the robot's control cycle period. It should
	// be between 0.1 and 100 milliseconds.
	// Defaults to 1 millisecond.
	pollTimeout time.Duration

	// logger provides a logger instance for client events and errors.
	logger logger.Logger
}

// NewConfig creates a new client configuration with the given robot host and
// optional functional options.
//
// It initializes a Config with default values and then applies the provided
// options to customize the configuration.
//
// Returns a pointer to the initialized Config and an error if any occurred
// during the configuration process.
func NewConfig(host string, opts ...Option) (*Config, error) {
	cfg := &Config{
		port:             rcp.DefaultPort,
		udpPort:          0,
		connectTimeout:   3 * time.Second,
		handshakeTimeout: 5 * time.Second,
		responseTimeout:  5 * time.Second,
		stateTimeout:     1 * time.Second,
		writeTimeout:     1 * time.Second,
		pollTimeout:      1 * time.Millisecond,
		logger:           logger.GetLogger(),
	}

	if err := withHost(host).apply(cfg); err != nil {
		return cfg, err
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return cfg, err
		}
	}

	return cfg, nil
}

// Option represents a functional option for configuring a Config.
type Option interface {
	apply(*Config) error
}

type optFunc struct {
	name      string
	applyFunc func(*Config) error
}

func (o *optFunc) apply(cfg *Config) error { return o.applyFunc(cfg) }

func newOptFunc(name string, f func(*Config) error) *optFunc {
	return &optFunc{
		name:      name,
		applyFunc: f,
	}
}

// withHost sets the robot host.
// It returns an Option that validates the host and updates the configuration.
// An error is returned if the configuration is nil or the host is invalid.
func withHost(host string) Option {
	return newOptFunc("withHost", func(cfg *Config) error {
		if cfg == nil {
			return ErrConfigNil
		}

		// Check if it's a valid IP address
		if ip := net.ParseIP(host); ip != nil {
			cfg.host = host
			return nil
		}

		// If not an IP, check if it's a valid domain name
		host = strings.TrimPrefix(host, ".")
		host = strings.TrimSuffix(host, ".")
		if _, err := net.LookupHost(host); err == nil {
			cfg.host = host
			return nil
		}

		return errors.New("invalid host")
	})
}

// WithPort sets the TCP port number of the robot's command channel.
// It returns an Option that validates the port number and updates the
// configuration.
// An error is returned if the port number is out of the valid range (1-65535)
// or if the configuration is nil.
//
// The default value is rcp.DefaultPort.
func WithPort(port int) Option {
	return newOptFunc("WithPort", func(cfg *Config) error {
		if cfg == nil {
			return ErrConfigNil
		}

		if port < 1 || port > 65535 {
			return errors.New("port is out of range [1, 65535]")
		}
		cfg.port = port

		return nil
	})
}

// WithUDPPort sets the local UDP port for the realtime channel.
// It returns an Option that validates the port number and updates the
// configuration. Port 0 selects an ephemeral port.
// An error is returned if the port number is out of the valid range (0-65535)
// or if the configuration is nil.
//
// The default value is 0.
func WithUDPPort(port int) Option {
	return newOptFunc("WithUDPPort", func(cfg *Config) error {
		if cfg == nil {
			return ErrConfigNil
		}

		if port < 0 || port > 65535 {
			return errors.New("udp port is out of range [0, 65535]")
		}
		cfg.udpPort = port

		return nil
	})
}

// WithConnectTimeout sets the timeout for establishing the TCP command
// connection.
// It returns an Option that validates the timeout value and updates the
// configuration.
// An error is returned if the timeout is outside the valid range
// (0.1-30 seconds) or if the configuration is nil.
//
// The default value is 3 seconds.
func WithConnectTimeout(val time.Duration) Option {
	return newOptFunc("WithConnectTimeout", func(cfg *Config) error {
		if cfg == nil {
			return ErrConfigNil
		}

		if val < 100*time.Millisecond || val > 30*time.Second {
			return errors.New("connect timeout out of range [0.1, 30]")
		}
		cfg.connectTimeout = val

		return nil
	})
}

// WithHandshakeTimeout sets the timeout for the connect handshake response.
// It returns an Option that validates the timeout value and updates the
// configuration.
// An error is returned if the timeout is outside the valid range
// (0.1-30 seconds) or if the configuration is nil.
//
// The default value is 5 seconds.
func WithHandshakeTimeout(val time.Duration) Option {
	return newOptFunc("WithHandshakeTimeout", func(cfg *Config) error {
		if cfg == nil {
			return ErrConfigNil
		}

		if val < 100*time.Millisecond || val > 30*time.Second {
			return errors.New("handshake timeout out of range [0.1, 30]")
		}
		cfg.handshakeTimeout = val

		return nil
	})
}

// WithResponseTimeout sets the reply timeout for auxiliary commands on the
// command channel.
// It returns an Option that validates the timeout value and updates the
// configuration.
// An error is returned if the timeout is outside the valid range
// (0.01-120 seconds) or if the configuration is nil.
//
// The default value is 5 seconds.
func WithResponseTimeout(val time.Duration) Option {
	return newOptFunc("WithResponseTimeout", func(cfg *Config) error {
		if cfg == nil {
			return ErrConfigNil
		}

		if val < 10*time.Millisecond || val > 120*time.Second {
			return errors.New("response timeout out of range [0.01, 120]")
		}
		cfg.responseTimeout = val

		return nil
	})
}

// WithStateTimeout sets the bounded wait for the next robot state on the
// realtime channel. Exceeding it is a fault, never a silent retry. A realtime
// deployment should tune it strictly below the robot's control cycle period.
// It returns an Option that validates the timeout value and updates the
// configuration.
// An error is returned if the timeout is outside the valid range
// (0.0001-10 seconds) or if the configuration is nil.
//
// The default value is 1 second.
func WithStateTimeout(val time.Duration) Option {
	return newOptFunc("WithStateTimeout", func(cfg *Config) error {
		if cfg == nil {
			return ErrConfigNil
		}

		if val < 100*time.Microsecond || val > 10*time.Second {
			return errors.New("state timeout out of range [0.0001, 10]")
		}
		cfg.stateTimeout = val

		return nil
	})
}

// WithWriteTimeout sets the timeout for writes on either channel.
// It returns an Option that validates the timeout value and updates the
// configuration.
// An error is returned if the timeout is outside the valid range
// (0.01-30 seconds) or if the configuration is nil.
//
// The default value is 1 second.
func WithWriteTimeout(val time.Duration) Option {
	return newOptFunc("WithWriteTimeout", func(cfg *Config) error {
		if cfg == nil {
			return ErrConfigNil
		}

		if val < 10*time.Millisecond || val > 30*time.Second {
			return errors.New("write timeout out of range [0.01, 30]")
		}
		cfg.writeTimeout = val

		return nil
	})
}

// WithPollTimeout sets the per-cycle wait for pending data on the command
// channel. Each exchange cycle blocks at most this long on the command
// channel before receiving the next robot state, so it must stay well below
// the robot's control cycle period.
// It returns an Option that validates the timeout value and updates the
// configuration.
// An error is returned if the timeout is outside the valid range
// (0.0001-0.1 seconds) or if the configuration is nil.
//
// The default value is 1 millisecond.
func WithPollTimeout(val time.Duration) Option {
	return newOptFunc("WithPollTimeout", func(cfg *Config) error {
		if cfg == nil {
			return ErrConfigNil
		}

		if val < 100*time.Microsecond || val > 100*time.Millisecond {
			return errors.New("poll timeout out of range [0.0001, 0.1]")
		}
		cfg.pollTimeout = val

		return nil
	})
}

// WithLogger sets the logger for the client.
// It returns an Option that updates the configuration with the provided
// logger.
// An error is returned if the configuration is nil.
//
// The default logger is the global logger instance.
func WithLogger(l logger.Logger) Option {
	return newOptFunc("WithLogger", func(cfg *Config) error {
		if cfg == nil {
			return ErrConfigNil
		}

		cfg.logger = l

		return nil
	})
}
