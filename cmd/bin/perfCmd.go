package bin

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/StefanHein/binKV/cmd/util"
	"github.com/StefanHein/binKV/rpc/common"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for binKV servers",
		RunE:    runPerf,
		PreRunE: processPerfConfig,
	}
	perfKeyPrefix  = "__test"
	perfNumThreads = 10
	perfKeySpread  = 100
	perfDuration   = 10 * time.Second
	perfSkip       = make([]string, 0)
)

func init() {
	// add flags
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. put,get)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of threads to use for the benchmark"))
	key = "keys"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How many different keys to use for the tests"))
	key = "duration"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("How long to run each benchmark (in seconds)"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	perfKeySpread = viper.GetInt("keys")
	perfNumThreads = viper.GetInt("threads")
	perfDuration = time.Duration(viper.GetInt("duration")) * time.Second
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	return nil
}

func runPerf(cmd *cobra.Command, _ []string) error {
	ns, set := namespaceAndSet()

	fmt.Println("Performance testing tool for binKV servers")

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(util.GetClientConfig().String())
	fmt.Printf("Threads: %d, Keys: %d, Duration: %s\n", perfNumThreads, perfKeySpread, perfDuration)
	fmt.Println()

	fmt.Println("starting tests...")

	getKey := func(i int) string {
		return fmt.Sprintf("%s-%d", perfKeyPrefix, i%perfKeySpread)
	}

	// Each benchmark gets its own timer so the results are independent
	results := make(map[string]gometrics.Timer)

	runBenchmark := func(name string, op func(counter int) error) {
		if shouldSkip(name) {
			fmt.Printf("%-20sskipped\n", name)
			return
		}

		timer := gometrics.NewTimer()
		results[name] = timer

		var wg sync.WaitGroup
		deadline := time.Now().Add(perfDuration)
		errCount := 0
		var errMu sync.Mutex

		for t := 0; t < perfNumThreads; t++ {
			wg.Add(1)
			go func(offset int) {
				defer wg.Done()
				counter := offset
				for time.Now().Before(deadline) {
					start := time.Now()
					err := op(counter)
					timer.UpdateSince(start)
					if err != nil {
						errMu.Lock()
						errCount++
						errMu.Unlock()
					}
					counter++
				}
			}(t * perfKeySpread)
		}
		wg.Wait()

		printPerfResult(name, timer, errCount)
	}

	runBenchmark("put", func(counter int) error {
		return rpcClient.Put(ns, set, getKey(counter), "bench", []byte("test"), 0)
	})
	runBenchmark("put-ttl", func(counter int) error {
		return rpcClient.Put(ns, set, getKey(counter), "bench", []byte("test"), 3600)
	})
	runBenchmark("get", func(counter int) error {
		_, err := rpcClient.Get(ns, set, getKey(counter), []string{"bench"})
		return err
	})
	runBenchmark("ttl", func(counter int) error {
		_, _, err := rpcClient.BinTTL(ns, set, getKey(counter), "bench")
		return err
	})
	runBenchmark("touch", func(counter int) error {
		// Refreshes the lifetime set by the put-ttl benchmark
		return rpcClient.Touch(ns, set, getKey(counter), []common.BinOp{{Bin: "bench", TTLSec: 3600}})
	})
	runBenchmark("sweep", func(counter int) error {
		id, err := rpcClient.Sweep(ns, set, []string{"bench"})
		if err != nil {
			return err
		}
		return rpcClient.AwaitSweep(id, 0)
	})

	// Write results to csv if specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	// Check if the test is in the skip list
	for _, skip := range perfSkip {
		if test == skip {
			return true
		}
	}
	return false
}

// printPerfResult prints the result of a benchmark test in a formatted way
func printPerfResult(test string, timer gometrics.Timer, errCount int) {
	fmt.Printf("%-20s%d ops\t%.0f ops/sec\tmean %s\tp99 %s\terrors %d\n",
		test,
		timer.Count(),
		timer.RateMean(),
		time.Duration(timer.Mean()),
		time.Duration(timer.Percentile(0.99)),
		errCount,
	)
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]gometrics.Timer) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	config := util.GetClientConfig()

	// Write header
	header := []string{
		"Test", "Ops", "OpsPerSec", "MeanNs", "P99Ns",
		"Endpoints", "TimeoutSec", "RetryCount", "ConnectionsPerEndpoint",
		"Serializer", "Transport", "Threads", "Keys",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	// Write test results
	for test, timer := range results {
		row := []string{
			test,
			strconv.FormatInt(timer.Count(), 10),
			fmt.Sprintf("%.0f", timer.RateMean()),
			fmt.Sprintf("%.0f", timer.Mean()),
			fmt.Sprintf("%.0f", timer.Percentile(0.99)),
			strings.Join(config.Endpoints, ";"),
			strconv.Itoa(config.TimeoutSecond),
			strconv.Itoa(config.RetryCount),
			strconv.Itoa(config.ConnectionsPerEndpoint),
			viper.GetString("serializer"),
			viper.GetString("transport"),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfKeySpread),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}

	return nil
}
