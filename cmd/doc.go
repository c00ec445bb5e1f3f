// Package cmd implements the command-line interface for binKV. It provides a
// hierarchical command structure with operations for running the server and
// interacting with it as a client.
//
// The package is organized into several subpackages:
//
//   - bin: Commands for bin operations (get, put, touch, ttl, sweep, ...)
//   - serve: Commands for starting and configuring the binKV server
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See binkv -help for a list of all commands.
package cmd
