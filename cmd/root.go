package cmd

import (
	"fmt"
	"github.com/ValentinKolb/rconn/cmd/client"
	"github.com/ValentinKolb/rconn/cmd/serve"
	"github.com/ValentinKolb/rconn/cmd/util"
	"github.com/spf13/cobra"
	"os"
)

const (
	Version = "0.1.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "rconn",
		Short: "reconnectable framed connections",
		Long: fmt.Sprintf(`rconn (v%s)

A client connection for length-prefixed, typed frames over TCP or unix sockets
with request/response correlation, timeouts and reconnects, plus a frame
server to test it against.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of rconn",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("rconn v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(client.ClientCommands)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "serializer"
	RootCmd.PersistentFlags().String(key, "json", util.WrapString("serializer used for frame bodies (json, gob)"))
	key = "transport"
	RootCmd.PersistentFlags().String(key, "tcp", util.WrapString("transport to use (tcp, unix)"))
	key = "log-level"
	RootCmd.PersistentFlags().String(key, "info", util.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
