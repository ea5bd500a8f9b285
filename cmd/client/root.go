package client

import (
	"context"
	"fmt"
	"github.com/ValentinKolb/rconn/cmd/util"
	"github.com/ValentinKolb/rconn/rpc/common"
	"github.com/ValentinKolb/rconn/rpc/conn"
	"github.com/ValentinKolb/rconn/rpc/dispatch"
	"github.com/ValentinKolb/rconn/rpc/frame"
	"github.com/ValentinKolb/rconn/rpc/reconnect"
	"github.com/ValentinKolb/rconn/rpc/serializer"
	"github.com/ValentinKolb/rconn/rpc/transport"
	"github.com/spf13/cobra"
)

var (
	clientConfig   common.ClientConfig
	bodySerializer serializer.IBodySerializer
	connector      transport.IClientConnector

	// ClientCommands represents the client command group
	ClientCommands = &cobra.Command{
		Use:               "client",
		Short:             "Connect to an rconn server",
		Long:              `Connect to an rconn server. The configuration can be set via command line flags or environment variables. The format of the environment variables is RCONN_<flag> (e.g. RCONN_ENDPOINT=localhost:9000)`,
		PersistentPreRunE: setupClient,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add common connection flags to the client command
	util.SetupClientFlags(ClientCommands)

	// Add subcommands
	ClientCommands.AddCommand(pingCmd)
	ClientCommands.AddCommand(noticeCmd)
	ClientCommands.AddCommand(watchCmd)
	ClientCommands.AddCommand(perfCmd)
}

// setupClient reads the configuration shared by all client commands
func setupClient(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	clientConfig = util.GetClientConfig()
	if err := common.InitLoggers(clientConfig.LogLevel); err != nil {
		return err
	}

	var err error
	if bodySerializer, err = util.GetSerializer(); err != nil {
		return err
	}
	connector, err = util.GetClientConnector()
	return err
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// noticePrinter prints NOTICE frames pushed by the server
func noticePrinter(s serializer.IBodySerializer) dispatch.HandlerFunc {
	return func(_ context.Context, req frame.Frame) (*frame.Frame, error) {
		var notice common.PacketNotice
		if err := s.Deserialize(req.Body, &notice); err != nil {
			return nil, fmt.Errorf("invalid notice body: %w", err)
		}
		fmt.Printf("notice #%d: %s\n", notice.Seq, notice.Message)
		return nil, nil
	}
}

// statePrinter prints connection events
type statePrinter struct {
	conn.NopCallbacks
}

func (statePrinter) OnConnected(c *conn.Connection) {
	fmt.Printf("connected to %s\n", c.Endpoint())
}

func (statePrinter) OnClosed(c *conn.Connection, reason error) {
	if reason != nil {
		fmt.Printf("connection to %s lost: %v\n", c.Endpoint(), reason)
		return
	}
	fmt.Printf("connection to %s closed\n", c.Endpoint())
}

// dial opens a connection with the shared configuration and waits until it is connected.
// The returned stop function closes the connection and its supervisor.
func dial(ctx context.Context, dispatcher dispatch.Dispatcher, callbacks conn.Callbacks) (*conn.Connection, func(), error) {
	sup := reconnect.NewSupervisor(clientConfig.Reconnect, callbacks)
	c := conn.NewConnection(clientConfig, connector, dispatcher, sup)

	stop := func() {
		sup.Stop()
		_ = c.Close()
	}

	if err := c.Init(); err != nil {
		stop()
		return nil, nil, err
	}

	waitCtx, cancel := context.WithTimeout(ctx, clientConfig.DialTimeout)
	defer cancel()
	if err := c.WaitConnected(waitCtx); err != nil {
		stop()
		return nil, nil, fmt.Errorf("failed to connect to %s: %w", clientConfig.Endpoint, err)
	}

	return c, stop, nil
}

// ping sends one PING and decodes the PONG
func ping(ctx context.Context, c *conn.Connection, num int, str string) (common.PacketPong, error) {
	var pong common.PacketPong

	body, err := bodySerializer.Serialize(common.PacketPing{Num: num, Str: str})
	if err != nil {
		return pong, err
	}

	resp, err := c.Call(ctx, int32(common.PacketTypePing), body, 0)
	if err != nil {
		return pong, err
	}
	if resp.Type != int32(common.PacketTypePong) {
		return pong, fmt.Errorf("unexpected response type %d", resp.Type)
	}

	err = bodySerializer.Deserialize(resp.Body, &pong)
	return pong, err
}
