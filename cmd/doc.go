// Package cmd implements the command-line interface of rconn. It provides a
// frame server and client commands to exercise a reconnecting connection against it.
//
// The package is organized into several subpackages:
//
//   - serve: Starts the frame server (PING/PONG, NOTICE broadcast, admin HTTP endpoint)
//   - client: Client commands (ping, notice, watch, perf)
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See rconn -help for a list of all commands.
package cmd
