package bin

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/StefanHein/binKV/rpc/common"
	"github.com/spf13/cobra"
)

var (
	getCmd = &cobra.Command{
		Use:   "get [key] [bin...]",
		Short: "Reads the named bins of a record (expired bins read as absent)",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ns, set := namespaceAndSet()
			key := args[0]
			bins := args[1:]
			values, err := rpcClient.Get(ns, set, key, bins)
			if err != nil {
				return err
			}
			for i, name := range bins {
				if values[i] == nil {
					fmt.Printf("bin=%s, found=false\n", name)
				} else {
					fmt.Printf("bin=%s, found=true, value=%s\n", name, values[i])
				}
			}
			return nil
		},
	}
	putCmd = &cobra.Command{
		Use:   "put [key] [bin] [value]",
		Short: "Creates or updates a bin. The ttl flag sets the bin's lifetime",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ns, set := namespaceAndSet()
			ttlSec, err := cmd.Flags().GetInt64("ttl")
			if err != nil {
				return err
			}
			if err := rpcClient.Put(ns, set, args[0], args[1], []byte(args[2]), ttlSec); err != nil {
				return err
			}
			fmt.Println("put successfully")
			return nil
		},
	}
	putsCmd = &cobra.Command{
		Use:   "puts [key] [bin=value@ttl ...]",
		Short: "Applies a batch of puts to one record atomically. The @ttl suffix is optional (e.g. session=abc@60)",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ns, set := namespaceAndSet()
			ops := make([]common.BinOp, 0, len(args)-1)
			for _, arg := range args[1:] {
				name, rest, found := strings.Cut(arg, "=")
				if !found {
					return fmt.Errorf("invalid op %q (expected bin=value@ttl)", arg)
				}
				value, ttlSec, err := parseValueAndTTL(rest)
				if err != nil {
					return err
				}
				ops = append(ops, common.BinOp{Bin: name, Value: []byte(value), TTLSec: ttlSec})
			}
			if err := rpcClient.Puts(ns, set, args[0], ops); err != nil {
				return err
			}
			fmt.Println("puts successfully")
			return nil
		},
	}
	touchCmd = &cobra.Command{
		Use:   "touch [key] [bin@ttl ...]",
		Short: "Updates the expiry metadata of existing bins without changing their values",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ns, set := namespaceAndSet()
			ops := make([]common.BinOp, 0, len(args)-1)
			for _, arg := range args[1:] {
				name, ttlSec, err := parseBinAndTTL(arg)
				if err != nil {
					return err
				}
				ops = append(ops, common.BinOp{Bin: name, TTLSec: ttlSec})
			}
			if err := rpcClient.Touch(ns, set, args[0], ops); err != nil {
				return err
			}
			fmt.Println("touch successfully")
			return nil
		},
	}
	ttlCmd = &cobra.Command{
		Use:   "ttl [key] [bin]",
		Short: "Queries the remaining lifetime of a bin",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ns, set := namespaceAndSet()
			ttlSec, ok, err := rpcClient.BinTTL(ns, set, args[0], args[1])
			if err != nil {
				return err
			}
			if !ok {
				fmt.Printf("bin=%s, found=false\n", args[1])
			} else if ttlSec < 0 {
				fmt.Printf("bin=%s, found=true, ttl=never expires\n", args[1])
			} else {
				fmt.Printf("bin=%s, found=true, ttl=%ds\n", args[1], ttlSec)
			}
			return nil
		},
	}
	sweepCmd = &cobra.Command{
		Use:   "sweep [candidateBin...]",
		Short: "Launches a background sweep that physically reclaims expired candidate bins",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ns, set := namespaceAndSet()
			id, err := rpcClient.Sweep(ns, set, args)
			if err != nil {
				return err
			}
			fmt.Printf("sweep started, scan id=%d\n", id)

			wait, err := cmd.Flags().GetBool("wait")
			if err != nil || !wait {
				return err
			}
			timeoutSec, err := cmd.Flags().GetInt64("wait-timeout")
			if err != nil {
				return err
			}
			if err := rpcClient.AwaitSweep(id, timeoutSec); err != nil {
				return err
			}
			fmt.Println("sweep completed")
			return nil
		},
	}
	infoCmd = &cobra.Command{
		Use:   "info",
		Short: "Queries store metadata",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			meta, err := rpcClient.Info()
			if err != nil {
				return err
			}
			fmt.Println(string(meta))
			return nil
		},
	}
)

func init() {
	// defaults to preserve so a plain put never strips an existing bin TTL;
	// demotion requires an explicit --ttl 0
	putCmd.Flags().Int64("ttl", -1, "TTL in seconds: -1 preserve, 0 demote to normal, >0 expire after")
	sweepCmd.Flags().Bool("wait", false, "Wait for the sweep to complete")
	sweepCmd.Flags().Int64("wait-timeout", 0, "Timeout in seconds when waiting (0 waits indefinitely)")
}

// parseValueAndTTL splits "value@ttl" at the last @. Without a suffix the
// ttl is -1 (preserve), so a batch put never demotes a bin by accident.
func parseValueAndTTL(s string) (string, int64, error) {
	idx := strings.LastIndex(s, "@")
	if idx < 0 {
		return s, -1, nil
	}
	ttlSec, err := strconv.ParseInt(s[idx+1:], 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("invalid ttl in %q: %w", s, err)
	}
	return s[:idx], ttlSec, nil
}

// parseBinAndTTL splits "bin@ttl". Without a suffix the ttl is 0, which
// clears the bin's expiry metadata.
func parseBinAndTTL(s string) (string, int64, error) {
	name, ttl, found := strings.Cut(s, "@")
	if !found {
		return s, 0, nil
	}
	ttlSec, err := strconv.ParseInt(ttl, 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("invalid ttl in %q: %w", s, err)
	}
	return name, ttlSec, nil
}
