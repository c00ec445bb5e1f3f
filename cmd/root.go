package cmd

import (
	"fmt"
	"github.com/StefanHein/binKV/cmd/bin"
	"github.com/StefanHein/binKV/cmd/serve"
	"github.com/StefanHein/binKV/cmd/util"
	"github.com/spf13/cobra"
	"os"
)

const (
	Version = "0.3.1"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "binkv",
		Short: "record store with per-bin expiration",
		Long: fmt.Sprintf(`binKV (v%s)

A record store written in Go that layers field-level (per-bin) time to live
on top of whole-record expiration, with lazy expiry on read and a background
sweep that physically reclaims expired bins.`, Version),
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of binKV",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("binKV v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(bin.BinCommands)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "serializer"
	RootCmd.PersistentFlags().String(key, "json", util.WrapString("serializer to use (json, gob, binary)"))
	key = "transport"
	RootCmd.PersistentFlags().String(key, "http", util.WrapString("transport to use (http, tcp, unix)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
