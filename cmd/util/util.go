package util

import (
	"fmt"
	"github.com/ValentinKolb/rconn/rpc/common"
	"github.com/ValentinKolb/rconn/rpc/serializer"
	"github.com/ValentinKolb/rconn/rpc/transport"
	"github.com/ValentinKolb/rconn/rpc/transport/tcp"
	"github.com/ValentinKolb/rconn/rpc/transport/unix"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"strings"
	"time"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50

	// EnvPrefix is the prefix of all environment variables (e.g. RCONN_ENDPOINT)
	EnvPrefix = "rconn"
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// InitConfig loads .env files and makes viper read RCONN_* environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// --------------------------------------------------------------------------
// Flags
// --------------------------------------------------------------------------

// SetupSocketFlags adds the socket flags shared by client and server
func SetupSocketFlags(cmd *cobra.Command) {
	key := "max-frame-size"
	cmd.PersistentFlags().Uint32(key, common.DefaultMaxFrameSize, WrapString("Largest accepted frame in bytes (header included). Larger frames close the connection"))

	key = "socket-write-buffer"
	cmd.PersistentFlags().Int(key, 512, WrapString("The size of the socket write buffer (in KB)"))

	key = "socket-read-buffer"
	cmd.PersistentFlags().Int(key, 512, WrapString("The size of the socket read buffer (in KB)"))

	key = "tcp-nodelay"
	cmd.PersistentFlags().Bool(key, true, WrapString("Whether to enable TCP_NODELAY (only for tcp)"))

	key = "tcp-keepalive"
	cmd.PersistentFlags().Int(key, 0, WrapString("The keepalive interval (in seconds, only for tcp)"))

	key = "tcp-linger"
	cmd.PersistentFlags().Int(key, 0, WrapString("The linger time (in seconds, only for tcp)"))
}

// SetupClientFlags adds the connection flags to a command
func SetupClientFlags(cmd *cobra.Command) {
	key := "endpoint"
	cmd.PersistentFlags().String(key, "localhost:8080", WrapString("The address of the rconn server (host:port for tcp, socket path for unix)"))

	key = "request-timeout"
	cmd.PersistentFlags().Duration(key, common.DefaultRequestTimeout, WrapString("How long a request waits for its response"))

	key = "connect-wait"
	cmd.PersistentFlags().Duration(key, common.DefaultConnectWait, WrapString("How long a request waits for a connect attempt in progress"))

	key = "dial-timeout"
	cmd.PersistentFlags().Duration(key, common.DefaultDialTimeout, WrapString("Timeout of a single connect attempt"))

	key = "write-timeout"
	cmd.PersistentFlags().Duration(key, 0, WrapString("Write deadline per frame (0 disables it)"))

	key = "shutdown-timeout"
	cmd.PersistentFlags().Duration(key, common.DefaultShutdownTimeout, WrapString("How long an orderly shutdown waits for the server to close"))

	key = "reconnect"
	cmd.PersistentFlags().Bool(key, true, WrapString("Reconnect automatically after the connection was lost"))

	key = "reconnect-initial-backoff"
	cmd.PersistentFlags().Duration(key, 100*time.Millisecond, WrapString("Delay before the first reconnect attempt, doubled for every further attempt"))

	key = "reconnect-max-backoff"
	cmd.PersistentFlags().Duration(key, 5*time.Second, WrapString("Upper bound of the reconnect delay"))

	key = "reconnect-max-attempts"
	cmd.PersistentFlags().Int(key, 0, WrapString("Give up after this many failed reconnects in a row (0 means never)"))

	SetupSocketFlags(cmd)
}

// --------------------------------------------------------------------------
// Config
// --------------------------------------------------------------------------

func getSocketConf() (common.SocketConf, common.TCPConf) {
	return common.SocketConf{
			WriteBufferSize: viper.GetInt("socket-write-buffer") * 1024,
			ReadBufferSize:  viper.GetInt("socket-read-buffer") * 1024,
		}, common.TCPConf{
			TCPNoDelay:      viper.GetBool("tcp-nodelay"),
			TCPKeepAliveSec: viper.GetInt("tcp-keepalive"),
			TCPLingerSec:    viper.GetInt("tcp-linger"),
		}
}

// GetClientConfig reads the client configuration from viper
func GetClientConfig() common.ClientConfig {
	socket, tcpConf := getSocketConf()

	conf := common.ClientConfig{
		Endpoint:        viper.GetString("endpoint"),
		RequestTimeout:  viper.GetDuration("request-timeout"),
		ConnectWait:     viper.GetDuration("connect-wait"),
		DialTimeout:     viper.GetDuration("dial-timeout"),
		WriteTimeout:    viper.GetDuration("write-timeout"),
		ShutdownTimeout: viper.GetDuration("shutdown-timeout"),
		MaxFrameSize:    viper.GetUint32("max-frame-size"),
		Socket:          socket,
		TCP:             tcpConf,
		Reconnect: common.ReconnectConf{
			Enabled:        viper.GetBool("reconnect"),
			InitialBackoff: viper.GetDuration("reconnect-initial-backoff"),
			MaxBackoff:     viper.GetDuration("reconnect-max-backoff"),
			MaxAttempts:    viper.GetInt("reconnect-max-attempts"),
		},
		LogLevel: viper.GetString("log-level"),
	}

	return conf.WithDefaults()
}

// GetServerConfig reads the server configuration from viper
func GetServerConfig() common.ServerConfig {
	socket, tcpConf := getSocketConf()

	conf := common.ServerConfig{
		Endpoint:          viper.GetString("endpoint"),
		AdminEndpoint:     viper.GetString("admin-endpoint"),
		MaxFrameSize:      viper.GetUint32("max-frame-size"),
		MaxWorkersPerConn: viper.GetInt("workers"),
		TimeoutSecond:     viper.GetInt64("timeout"),
		NoticeInterval:    viper.GetDuration("notice-interval"),
		Socket:            socket,
		TCP:               tcpConf,
		LogLevel:          viper.GetString("log-level"),
	}

	return conf.WithDefaults()
}

// --------------------------------------------------------------------------
// Serializer and transport selection
// --------------------------------------------------------------------------

// GetSerializer creates the body serializer based on configuration
func GetSerializer() (serializer.IBodySerializer, error) {
	name := viper.GetString("serializer")
	s, ok := serializer.New(name)
	if !ok {
		return nil, fmt.Errorf("invalid serializer %s", name)
	}
	return s, nil
}

// GetClientConnector creates the client connector based on configuration
func GetClientConnector() (transport.IClientConnector, error) {
	switch viper.GetString("transport") {
	case "tcp":
		return tcp.NewClientConnector(), nil
	case "unix":
		return unix.NewClientConnector(), nil
	default:
		return nil, fmt.Errorf("invalid transport %s", viper.GetString("transport"))
	}
}

// GetServerConnector creates the server connector based on configuration
func GetServerConnector() (transport.IServerConnector, error) {
	switch viper.GetString("transport") {
	case "tcp":
		return tcp.NewServerConnector(), nil
	case "unix":
		return unix.NewServerConnector(), nil
	default:
		return nil, fmt.Errorf("invalid transport %s", viper.GetString("transport"))
	}
}
