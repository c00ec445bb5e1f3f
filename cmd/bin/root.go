package bin

import (
	"github.com/StefanHein/binKV/cmd/util"
	"github.com/StefanHein/binKV/rpc/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	rpcClient client.IExpBinClient

	// BinCommands represents the bin command group
	BinCommands = &cobra.Command{
		Use:               "bin",
		Short:             "Perform bin operations against a binKV server",
		PersistentPreRunE: setupBinClient,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitClientConfig)

	// Add common RPC flags to the bin command
	util.SetupRPCClientFlags(BinCommands)

	// Record addressing flags
	BinCommands.PersistentFlags().String("namespace", "default", util.WrapString("Namespace of the record"))
	BinCommands.PersistentFlags().String("set", "", util.WrapString("Set of the record (may be empty)"))

	// Add subcommands
	BinCommands.AddCommand(getCmd)
	BinCommands.AddCommand(putCmd)
	BinCommands.AddCommand(putsCmd)
	BinCommands.AddCommand(touchCmd)
	BinCommands.AddCommand(ttlCmd)
	BinCommands.AddCommand(sweepCmd)
	BinCommands.AddCommand(infoCmd)
	BinCommands.AddCommand(perfTestCmd)
}

// setupBinClient initializes the RPC client
func setupBinClient(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	// Get client configuration components
	config := util.GetClientConfig()

	// Get serializer and transport
	s, err := util.GetSerializer()
	if err != nil {
		return err
	}

	t, err := util.GetTransport()
	if err != nil {
		return err
	}

	// Create the client
	rpcClient, err = client.NewExpBinClient(
		*config,
		t,
		s,
	)

	return err
}

// namespaceAndSet reads the record addressing flags
func namespaceAndSet() (string, string) {
	return viper.GetString("namespace"), viper.GetString("set")
}
