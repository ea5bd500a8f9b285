package client

import (
	"context"
	"encoding/csv"
	"fmt"
	"github.com/ValentinKolb/rconn/cmd/util"
	"github.com/ValentinKolb/rconn/rpc/conn"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

var (
	perfCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for rconn servers",
		Long:    "Opens one connection per thread and sends PING frames as fast as the server answers. Requests on one connection are sequential since a response is matched by its type.",
		RunE:    runPerf,
		PreRunE: processPerfConfig,
	}
	perfThreads     = 10
	perfDuration    = 10 * time.Second
	perfBodySize    = 16
	perfCSVPath     = ""
	perfPercentiles = []float64{0.5, 0.9, 0.99, 0.999}
)

func init() {
	// add flags
	key := "threads"
	perfCmd.Flags().Int(key, 10, util.WrapString("Number of connections used for the benchmark (one sender per connection)"))
	key = "duration"
	perfCmd.Flags().Duration(key, 10*time.Second, util.WrapString("How long the benchmark runs"))
	key = "body-size"
	perfCmd.Flags().Int(key, 16, util.WrapString("Length of the string sent in every PING (in bytes)"))
	key = "csv"
	perfCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	perfThreads = viper.GetInt("threads")
	perfDuration = viper.GetDuration("duration")
	perfBodySize = viper.GetInt("body-size")
	perfCSVPath = viper.GetString("csv")

	if perfThreads < 1 {
		return fmt.Errorf("threads must be at least 1")
	}
	return nil
}

// perfResult holds the outcome of one benchmark run
type perfResult struct {
	ops     int64
	failed  int64
	elapsed time.Duration
	latency gometrics.Timer
}

func runPerf(cmd *cobra.Command, _ []string) error {
	fmt.Println("Performance testing tool for rconn servers")

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(clientConfig.String())
	fmt.Printf("Threads: %d\n", perfThreads)
	fmt.Printf("Duration: %s\n", perfDuration)
	fmt.Println()

	// open all connections before the clock starts
	conns := make([]*conn.Connection, 0, perfThreads)
	for i := 0; i < perfThreads; i++ {
		c, stop, err := dial(cmd.Context(), nil, nil)
		if err != nil {
			return err
		}
		defer stop()
		conns = append(conns, c)
	}

	fmt.Println("starting test...")
	result := benchmark(cmd.Context(), conns, perfDuration, strings.Repeat("x", perfBodySize))
	printResult(result)

	if perfCSVPath != "" {
		if err := writeResultToCSV(perfCSVPath, result); err != nil {
			return err
		}
		fmt.Printf("results written to %s\n", perfCSVPath)
	}
	return nil
}

// benchmark pings on every connection until duration has passed
func benchmark(ctx context.Context, conns []*conn.Connection, duration time.Duration, payload string) perfResult {
	ctx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()

	timer := gometrics.NewTimer()
	var ops, failed atomic.Int64
	var wg sync.WaitGroup

	start := time.Now()
	for _, c := range conns {
		wg.Add(1)
		go func(c *conn.Connection) {
			defer wg.Done()
			for n := 0; ctx.Err() == nil; n++ {
				begin := time.Now()
				if _, err := ping(context.Background(), c, n, payload); err != nil {
					failed.Add(1)
					continue
				}
				timer.UpdateSince(begin)
				ops.Add(1)
			}
		}(c)
	}
	wg.Wait()

	return perfResult{
		ops:     ops.Load(),
		failed:  failed.Load(),
		elapsed: time.Since(start),
		latency: timer,
	}
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func (r perfResult) opsPerSec() float64 {
	if r.elapsed <= 0 {
		return 0
	}
	return float64(r.ops) / r.elapsed.Seconds()
}

// printResult prints the result of a benchmark in a formatted way
func printResult(r perfResult) {
	fmt.Println()
	fmt.Printf("%-20s%d (%d failed)\n", "requests", r.ops, r.failed)
	fmt.Printf("%-20s%.0f ops/sec\n", "throughput", r.opsPerSec())
	fmt.Printf("%-20s%s\n", "mean", time.Duration(r.latency.Mean()))
	fmt.Printf("%-20s%s\n", "min", time.Duration(r.latency.Min()))
	fmt.Printf("%-20s%s\n", "max", time.Duration(r.latency.Max()))

	ps := r.latency.Percentiles(perfPercentiles)
	for i, p := range perfPercentiles {
		fmt.Printf("%-20s%s\n", fmt.Sprintf("p%g", p*100), time.Duration(ps[i]))
	}
}

// writeResultToCSV writes the benchmark result to a CSV file
func writeResultToCSV(csvPath string, r perfResult) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{
		"Requests", "Failed", "OpsPerSec", "MeanNs", "P50Ns", "P90Ns", "P99Ns", "P999Ns",
		"Endpoint", "Threads", "DurationSec", "BodySize", "Serializer", "Transport",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	ps := r.latency.Percentiles(perfPercentiles)
	row := []string{
		strconv.FormatInt(r.ops, 10),
		strconv.FormatInt(r.failed, 10),
		fmt.Sprintf("%.0f", r.opsPerSec()),
		fmt.Sprintf("%.0f", r.latency.Mean()),
		fmt.Sprintf("%.0f", ps[0]),
		fmt.Sprintf("%.0f", ps[1]),
		fmt.Sprintf("%.0f", ps[2]),
		fmt.Sprintf("%.0f", ps[3]),
		clientConfig.Endpoint,
		strconv.Itoa(perfThreads),
		fmt.Sprintf("%.1f", r.elapsed.Seconds()),
		strconv.Itoa(perfBodySize),
		viper.GetString("serializer"),
		viper.GetString("transport"),
	}
	if err := writer.Write(row); err != nil {
		return fmt.Errorf("failed to write result row: %v", err)
	}
	return nil
}
