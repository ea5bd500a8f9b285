package client

import (
	"fmt"
	"github.com/spf13/cobra"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"
)

var (
	pingCount    int
	pingInterval time.Duration

	// pingCmd represents the ping command
	pingCmd = &cobra.Command{
		Use:   "ping [message]",
		Short: "Send PING frames and print the PONG answers",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runPing,
	}
)

func init() {
	pingCmd.Flags().IntVarP(&pingCount, "count", "c", 4, "Number of pings to send (0 for no limit)")
	pingCmd.Flags().DurationVar(&pingInterval, "interval", time.Second, "Delay between two pings")
}

func runPing(cmd *cobra.Command, args []string) error {
	msg := "ping"
	if len(args) == 1 {
		msg = args[0]
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	c, stop, err := dial(ctx, nil, statePrinter{})
	if err != nil {
		return err
	}
	defer stop()

	var sent, failed int
loop:
	for i := 1; pingCount == 0 || i <= pingCount; i++ {
		sent++
		start := time.Now()
		pong, err := ping(ctx, c, i, msg+" "+strconv.Itoa(i))
		if err != nil {
			failed++
			fmt.Printf("ping %d failed: %v\n", i, err)
		} else {
			fmt.Printf("pong %d: %q time=%s\n", pong.Num, pong.Str, time.Since(start))
		}

		if pingCount != 0 && i == pingCount {
			break
		}
		select {
		case <-ctx.Done():
			break loop
		case <-time.After(pingInterval):
		}
	}

	t := c.Latency()
	fmt.Printf("\n%d sent, %d failed, min/avg/max = %s/%s/%s\n",
		sent, failed,
		time.Duration(t.Min()), time.Duration(t.Mean()), time.Duration(t.Max()))

	if failed > 0 {
		return fmt.Errorf("%d of %d pings failed", failed, sent)
	}
	return nil
}
