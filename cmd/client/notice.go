package client

import (
	"fmt"
	"github.com/ValentinKolb/rconn/rpc/common"
	"github.com/spf13/cobra"
	"strings"
)

var (
	noticeSeq uint64

	// noticeCmd represents the notice command
	noticeCmd = &cobra.Command{
		Use:   "notice [message...]",
		Short: "Send a NOTICE frame to the server (no answer expected)",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runNotice,
	}
)

func init() {
	noticeCmd.Flags().Uint64Var(&noticeSeq, "seq", 1, "Sequence number of the notice")
}

func runNotice(cmd *cobra.Command, args []string) error {
	c, stop, err := dial(cmd.Context(), nil, nil)
	if err != nil {
		return err
	}
	defer stop()

	body, err := bodySerializer.Serialize(common.PacketNotice{Seq: noticeSeq, Message: strings.Join(args, " ")})
	if err != nil {
		return err
	}

	if err := c.Send(int32(common.PacketTypeNotice), body); err != nil {
		return err
	}

	// orderly shutdown, the notice is flushed before the sending side closes
	if err := c.Disconnect(); err != nil {
		return err
	}
	fmt.Println("notice sent")
	return nil
}
