package client

import (
	"fmt"
	"github.com/ValentinKolb/rconn/rpc/common"
	"github.com/ValentinKolb/rconn/rpc/dispatch"
	"github.com/spf13/cobra"
	"os"
	"os/signal"
	"syscall"
)

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stay connected and print NOTICE frames pushed by the server",
	Long:  "Stay connected and print NOTICE frames pushed by the server until interrupted. Lost connections are re-established unless --reconnect=false is set.",
	Args:  cobra.NoArgs,
	RunE:  runWatch,
}

func runWatch(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	router := dispatch.NewRouter().
		Handle(int32(common.PacketTypeNotice), noticePrinter(bodySerializer))

	c, stop, err := dial(ctx, router, statePrinter{})
	if err != nil {
		return err
	}
	defer stop()

	fmt.Printf("watching %s, press Ctrl+C to stop\n", c.Endpoint())
	<-ctx.Done()
	return nil
}
