package common

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Defaults
// --------------------------------------------------------------------------

const (
	DefaultMaxFrameSize    = 65536
	DefaultRequestTimeout  = 10 * time.Second
	DefaultConnectWait     = 1 * time.Second
	DefaultDialTimeout     = 5 * time.Second
	DefaultShutdownTimeout = 3 * time.Second
)

// --------------------------------------------------------------------------
// Shared socket configuration
// --------------------------------------------------------------------------

// SocketConf holds buffer settings applied to every stream socket
type SocketConf struct {
	WriteBufferSize int
	ReadBufferSize  int
}

// TCPConf holds TCP specific socket settings
type TCPConf struct {
	TCPNoDelay      bool
	TCPKeepAliveSec int
	TCPLingerSec    int
}

// ReconnectConf configures the reconnect.Supervisor
type ReconnectConf struct {
	Enabled        bool
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	MaxAttempts    int // 0 means unlimited
}

// --------------------------------------------------------------------------
// Client configuration struct
// --------------------------------------------------------------------------

// ClientConfig configures a single conn.Connection
type ClientConfig struct {
	Endpoint string

	// RequestTimeout is used for requests issued without an explicit timeout
	RequestTimeout time.Duration
	// ConnectWait bounds how long a request waits for a connect attempt in progress
	ConnectWait time.Duration
	// DialTimeout bounds a single connect attempt
	DialTimeout time.Duration
	// WriteTimeout is the write deadline per frame, zero disables it
	WriteTimeout time.Duration
	// ShutdownTimeout bounds the Disconnecting state
	ShutdownTimeout time.Duration

	MaxFrameSize uint32

	Socket    SocketConf
	TCP       TCPConf
	Reconnect ReconnectConf

	LogLevel string
}

// WithDefaults returns a copy where all unset values are replaced by their defaults
func (c ClientConfig) WithDefaults() ClientConfig {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.ConnectWait <= 0 {
		c.ConnectWait = DefaultConnectWait
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.MaxFrameSize == 0 {
		c.MaxFrameSize = DefaultMaxFrameSize
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	return c
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Client Configuration")
	addField("Endpoint", c.Endpoint)
	addField("Request Timeout", c.RequestTimeout.String())
	addField("Connect Wait", c.ConnectWait.String())
	addField("Dial Timeout", c.DialTimeout.String())
	addField("Write Timeout", c.WriteTimeout.String())
	addField("Shutdown Timeout", c.ShutdownTimeout.String())
	addField("Max Frame Size", strconv.FormatUint(uint64(c.MaxFrameSize), 10))

	addSection("Socket")
	addField("Write Buffer", fmt.Sprintf("%d bytes", c.Socket.WriteBufferSize))
	addField("Read Buffer", fmt.Sprintf("%d bytes", c.Socket.ReadBufferSize))
	addField("TCP NoDelay", strconv.FormatBool(c.TCP.TCPNoDelay))
	addField("TCP KeepAlive", fmt.Sprintf("%d sec", c.TCP.TCPKeepAliveSec))
	addField("TCP Linger", fmt.Sprintf("%d sec", c.TCP.TCPLingerSec))

	addSection("Reconnect")
	addField("Enabled", strconv.FormatBool(c.Reconnect.Enabled))
	if c.Reconnect.Enabled {
		addField("Initial Backoff", c.Reconnect.InitialBackoff.String())
		addField("Max Backoff", c.Reconnect.MaxBackoff.String())
		addField("Max Attempts", strconv.Itoa(c.Reconnect.MaxAttempts))
	}

	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}

// --------------------------------------------------------------------------
// Server configuration struct
// --------------------------------------------------------------------------

// ServerConfig configures the frame server
type ServerConfig struct {
	// Endpoint the frame server listens on (host:port or socket path)
	Endpoint string
	// AdminEndpoint serves /metrics and /healthz, empty disables it
	AdminEndpoint string

	MaxFrameSize      uint32
	MaxWorkersPerConn int

	// TimeoutSecond is the per frame write deadline, 0 disables it
	TimeoutSecond int64

	// NoticeInterval makes the server broadcast a NOTICE frame periodically, 0 disables it
	NoticeInterval time.Duration

	Socket SocketConf
	TCP    TCPConf

	LogLevel string
}

// WithDefaults returns a copy where all unset values are replaced by their defaults
func (c ServerConfig) WithDefaults() ServerConfig {
	if c.MaxFrameSize == 0 {
		c.MaxFrameSize = DefaultMaxFrameSize
	}
	if c.MaxWorkersPerConn < 1 {
		c.MaxWorkersPerConn = 1
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	return c
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Frame Server")
	addField("Endpoint", c.Endpoint)
	addField("Admin Endpoint", c.AdminEndpoint)
	addField("Max Frame Size", strconv.FormatUint(uint64(c.MaxFrameSize), 10))
	addField("Workers Per Conn", strconv.Itoa(c.MaxWorkersPerConn))
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Notice Interval", c.NoticeInterval.String())

	addSection("Socket")
	addField("Write Buffer", fmt.Sprintf("%d bytes", c.Socket.WriteBufferSize))
	addField("Read Buffer", fmt.Sprintf("%d bytes", c.Socket.ReadBufferSize))
	addField("TCP NoDelay", strconv.FormatBool(c.TCP.TCPNoDelay))

	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}
