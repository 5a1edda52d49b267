package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/tendermint/tendermint/libs/log"
	jsonrpcclient "github.com/tendermint/tendermint/rpc/jsonrpc/client"

	"sumeragi/libs/utils"
	"sumeragi/rpc"
)

var (
	duration    int
	rate        int
	connections int
	accounts    int
	verbose     bool

	logger = log.NewNopLogger()
)

var rootCmd = &cobra.Command{
	Use:   "tm-bench [endpoints]",
	Short: "Submit random asset transactions to sumeragi nodes and report throughput",
	Example: `tm-bench -T 30 -r 100 localhost:26657
tm-bench -c 2 localhost:26657,localhost:26660`,
	Args: cobra.ExactArgs(1),
	RunE: runBench,
}

func init() {
	rootCmd.Flags().IntVarP(&connections, "connections", "c", 1, "Connections to open to each endpoint")
	rootCmd.Flags().IntVarP(&duration, "duration", "T", 10, "Exit after the specified amount of time in seconds")
	rootCmd.Flags().IntVarP(&rate, "rate", "r", 1000, "Txs per second to send in a connection")
	rootCmd.Flags().IntVar(&accounts, "accounts", 100, "Number of accounts the generated txs touch")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func runBench(cmd *cobra.Command, args []string) error {
	if verbose {
		logger = log.NewTMLogger(log.NewSyncWriter(os.Stdout))
	}
	endpoints := strings.Split(args[0], ",")

	startCount, err := commitCount(endpoints[0])
	if err != nil {
		return err
	}

	transacters := make([]*transacter, len(endpoints))
	for i, e := range endpoints {
		t := newTransacter(e, connections, rate, accounts)
		t.SetLogger(logger.With("endpoint", e))
		if err := t.Start(); err != nil {
			return err
		}
		transacters[i] = t
	}

	start := time.Now()
	time.Sleep(time.Duration(duration) * time.Second)
	for _, t := range transacters {
		t.Stop()
	}
	elapsed := time.Since(start)

	endCount, err := commitCount(endpoints[0])
	if err != nil {
		return err
	}

	var latencies []time.Duration
	refused := 0
	for _, t := range transacters {
		l, r := t.Latencies()
		latencies = append(latencies, l...)
		refused += r
	}
	printStatistics(latencies, refused, endCount-startCount, elapsed)
	return nil
}

func commitCount(endpoint string) (int64, error) {
	c, err := jsonrpcclient.New("tcp://" + endpoint)
	if err != nil {
		return 0, err
	}
	result := new(rpc.ResultCommitCount)
	if _, err := c.Call(context.Background(), "commit_count", map[string]interface{}{}, result); err != nil {
		return 0, fmt.Errorf("commit_count on %s: %w", endpoint, err)
	}
	return result.Count, nil
}

func printStatistics(latencies []time.Duration, refused int, committed int64, elapsed time.Duration) {
	ms := utils.Milliseconds(latencies...)
	fmt.Printf("Submitted: %d (refused %d)\n", len(ms), refused)
	fmt.Printf("Committed: %d in %v (%.1f tx/s)\n", committed, elapsed.Round(time.Millisecond),
		float64(committed)/elapsed.Seconds())
	if len(ms) == 0 {
		return
	}
	fmt.Printf("Submit latency (ms): avg %.2f  p50 %.2f  p99 %.2f  max %.2f\n",
		utils.Avg(ms...), utils.Median(ms...), utils.Percentile(99, ms...), utils.Max(ms...))
}
