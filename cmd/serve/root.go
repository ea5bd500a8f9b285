package serve

import (
	"context"
	"errors"
	"fmt"
	cmdUtil "github.com/ValentinKolb/rconn/cmd/util"
	"github.com/ValentinKolb/rconn/rpc/common"
	"github.com/ValentinKolb/rconn/rpc/dispatch"
	"github.com/ValentinKolb/rconn/rpc/serializer"
	"github.com/ValentinKolb/rconn/rpc/server"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"
)

var Logger = logger.GetLogger("server")

var (
	serveCmdConfig common.ServerConfig
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start the rconn frame server",
		Long:    `Start the rconn frame server with the specified configuration. The server answers PING frames with PONG frames, logs NOTICE frames and can broadcast NOTICE frames to all clients. The configuration can be set via command line flags or environment variables. The format of the environment variables is RCONN_<flag> (e.g. RCONN_NOTICE_INTERVAL=5s)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(cmdUtil.InitConfig)

	// add flags
	key := "endpoint"
	ServeCmd.PersistentFlags().String(key, "0.0.0.0:8080", cmdUtil.WrapString("The address on which the frame server will listen (e.g. localhost:8080, /tmp/rconn.sock, ...)"))

	key = "admin-endpoint"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("The address of the admin HTTP server serving /metrics, /healthz and /sessions (empty disables it)"))

	key = "workers"
	ServeCmd.PersistentFlags().Int(key, 1, cmdUtil.WrapString("Maximum number of frames processed concurrently per connection. With more than one worker replies may leave in a different order than the requests arrived"))

	key = "timeout"
	ServeCmd.PersistentFlags().Int64(key, 5, cmdUtil.WrapString("Write deadline per frame in seconds (0 disables it)"))

	key = "notice-interval"
	ServeCmd.PersistentFlags().Duration(key, 0, cmdUtil.WrapString("Broadcast a NOTICE frame to all clients in this interval (0 disables it)"))

	cmdUtil.SetupSocketFlags(ServeCmd)
}

// processConfig reads the configuration from the command line flags and environment variables
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := cmdUtil.BindCommandFlags(cmd); err != nil {
		return err
	}

	serveCmdConfig = cmdUtil.GetServerConfig()
	if serveCmdConfig.Endpoint == "" {
		return fmt.Errorf("endpoint must not be empty")
	}
	return common.InitLoggers(serveCmdConfig.LogLevel)
}

// run starts the frame server and blocks until SIGINT or SIGTERM
func run(_ *cobra.Command, _ []string) error {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	s, err := cmdUtil.GetSerializer()
	if err != nil {
		return err
	}

	connector, err := cmdUtil.GetServerConnector()
	if err != nil {
		return err
	}

	router := dispatch.NewPingRouter(s).
		Handle(int32(common.PacketTypeNotice), dispatch.NoticeLogger(s))

	serv := server.NewServer(serveCmdConfig, connector, router)
	Logger.Infof(serveCmdConfig.String())

	if err := serv.Start(); err != nil {
		return err
	}
	defer serv.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// admin http server
	if serveCmdConfig.AdminEndpoint != "" {
		admin := &http.Server{
			Addr:              serveCmdConfig.AdminEndpoint,
			Handler:           NewAdminRouter(serv),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			Logger.Infof("admin server listening on %s", serveCmdConfig.AdminEndpoint)
			if err := admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				Logger.Errorf("admin server failed: %v", err)
				stop()
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = admin.Shutdown(shutdownCtx)
		}()
	}

	if serveCmdConfig.NoticeInterval > 0 {
		go broadcastNotices(ctx, serv, s, serveCmdConfig.NoticeInterval)
	}

	<-ctx.Done()
	Logger.Infof("shutting down")
	return nil
}

// broadcastNotices sends a NOTICE frame to every client until ctx is done
func broadcastNotices(ctx context.Context, serv *server.Server, s serializer.IBodySerializer, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var seq uint64
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			seq++
			body, err := s.Serialize(common.PacketNotice{
				Seq:     seq,
				Message: fmt.Sprintf("server time %s", now.Format(time.RFC3339)),
			})
			if err != nil {
				Logger.Errorf("failed to encode notice: %v", err)
				continue
			}
			n := serv.Broadcast(int32(common.PacketTypeNotice), body)
			Logger.Debugf("notice #%d sent to %d sessions", seq, n)
		}
	}
}
