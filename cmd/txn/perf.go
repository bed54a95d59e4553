package txn

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/kvproxy/cmd/util"
	"github.com/ValentinKolb/kvproxy/lib/kv"
	"github.com/google/uuid"
	"github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/time/rate"
	"google.golang.org/grpc/status"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Load generator for the transaction service",
		Long:    "Runs transactional workloads against a txn shard and reports latency per operation and the outcome of every transaction.",
		RunE:    runPerf,
		PreRunE: processPerfConfig,
	}
	perfConf = perfConfig{}
)

// workload names
const (
	workloadRead      = "read"
	workloadWrite     = "write"
	workloadMixed     = "mixed"
	workloadContended = "contended"
)

var workloads = []string{workloadRead, workloadWrite, workloadMixed, workloadContended}

func init() {
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Workloads to skip (comma separated - e.g. read,contended)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of concurrent clients"))
	key = "txns"
	perfTestCmd.Flags().Int(key, 1000, util.WrapString("Number of transactions per workload"))
	key = "ops-per-txn"
	perfTestCmd.Flags().Int(key, 4, util.WrapString("Number of reads and writes in every transaction"))
	key = "keys"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How many different keys to use for the tests"))
	key = "value-size"
	perfTestCmd.Flags().Int(key, 64, util.WrapString("Size of the written values in bytes"))
	key = "rate"
	perfTestCmd.Flags().Float64(key, 0, util.WrapString("Maximum transactions per second over all clients, 0 means unlimited"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

// perfConfig holds the parameters of a perf run
type perfConfig struct {
	Threads   int
	Txns      int
	OpsPerTxn int
	Keys      int
	ValueSize int
	Rate      float64
	Mode      kv.Mode
	Skip      []string
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	mode, err := util.GetMode()
	if err != nil {
		return err
	}

	perfConf = perfConfig{
		Threads:   viper.GetInt("threads"),
		Txns:      viper.GetInt("txns"),
		OpsPerTxn: viper.GetInt("ops-per-txn"),
		Keys:      viper.GetInt("keys"),
		ValueSize: viper.GetInt("value-size"),
		Rate:      viper.GetFloat64("rate"),
		Mode:      mode,
	}
	if skip := viper.GetString("skip"); skip != "" {
		perfConf.Skip = strings.Split(skip, ",")
	}

	if perfConf.Threads < 1 || perfConf.Txns < 1 || perfConf.OpsPerTxn < 1 || perfConf.Keys < 1 {
		return fmt.Errorf("threads, txns, ops-per-txn and keys must be positive")
	}
	return nil
}

func runPerf(_ *cobra.Command, _ []string) error {
	fmt.Println("Load generator for kvproxy transactions")

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(util.GetClientConfig().String())
	fmt.Printf("Mode: %s, Threads: %d, Txns: %d, Ops/Txn: %d, Keys: %d\n",
		perfConf.Mode, perfConf.Threads, perfConf.Txns, perfConf.OpsPerTxn, perfConf.Keys)
	fmt.Println()

	runner := newPerfRunner(txnClient, perfConf)
	results := make([]perfResult, 0, len(workloads))

	for _, name := range workloads {
		if perfConf.skips(name) {
			fmt.Printf("%-12sskipped\n", name)
			continue
		}
		result, err := runner.run(context.Background(), name)
		if err != nil {
			return fmt.Errorf("workload %s failed: %w", name, err)
		}
		result.print()
		results = append(results, result)
	}

	// Write results to csv is specified
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
// Runner
// --------------------------------------------------------------------------

// txnAPI is the part of the txn client used by the load generator
type txnAPI interface {
	Begin(mode kv.Mode) (uint32, error)
	Get(txnID uint32, key []byte) ([]byte, error)
	Put(txnID uint32, key, value []byte) error
	Delete(txnID uint32, key []byte) error
	Commit(txnID uint32) error
	Rollback(txnID uint32) error
}

type perfRunner struct {
	client  txnAPI
	conf    perfConfig
	prefix  string
	value   []byte
	limiter *rate.Limiter
}

func newPerfRunner(client txnAPI, conf perfConfig) *perfRunner {
	r := &perfRunner{
		client: client,
		conf:   conf,
		// unique per run, concurrent runs do not share keys
		prefix: "__perf-" + uuid.NewString()[:8],
		value:  make([]byte, conf.ValueSize),
	}
	if conf.Rate > 0 {
		burst := int(conf.Rate)
		if burst < 1 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(conf.Rate), burst)
	}
	return r
}

// perfResult holds the measurements of one workload
type perfResult struct {
	Name     string
	Elapsed  time.Duration
	Registry metrics.Registry
}

func (r *perfRunner) keys(workload string) [][]byte {
	keys := make([][]byte, r.conf.Keys)
	for i := range keys {
		keys[i] = []byte(fmt.Sprintf("%s-%s-%d", r.prefix, workload, i))
	}
	return keys
}

// run executes one workload and removes its keys afterwards
func (r *perfRunner) run(ctx context.Context, workload string) (perfResult, error) {
	keys := r.keys(workload)
	if workload == workloadContended && len(keys) > 2 {
		keys = keys[:2]
	}

	// seed all keys, reads should find values
	if err := r.batch(keys, func(id uint32, key []byte) error { return r.client.Put(id, key, r.value) }); err != nil {
		return perfResult{}, fmt.Errorf("failed to seed keys: %w", err)
	}
	defer func() {
		if err := r.batch(keys, func(id uint32, key []byte) error { return r.client.Delete(id, key) }); err != nil {
			fmt.Printf("failed to remove keys of %s: %v\n", workload, err)
		}
	}()

	reg := metrics.NewRegistry()
	var next atomic.Int64
	var wg sync.WaitGroup
	start := time.Now()

	for t := 0; t < r.conf.Threads; t++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				n := next.Add(1)
				if n > int64(r.conf.Txns) {
					return
				}
				if r.limiter != nil {
					if err := r.limiter.Wait(ctx); err != nil {
						return
					}
				}
				r.transaction(workload, keys, int(n), reg)
			}
		}()
	}
	wg.Wait()

	return perfResult{Name: workload, Elapsed: time.Since(start), Registry: reg}, ctx.Err()
}

// transaction runs the n-th transaction of a workload and records its outcome
func (r *perfRunner) transaction(workload string, keys [][]byte, n int, reg metrics.Registry) {
	start := time.Now()
	defer metrics.GetOrRegisterTimer("txn", reg).UpdateSince(start)

	var id uint32
	err := timed(reg, "begin", func() (err error) {
		id, err = r.client.Begin(r.conf.Mode)
		return err
	})
	if err != nil {
		outcome(reg, err)
		return
	}

	for i := 0; i < r.conf.OpsPerTxn && err == nil; i++ {
		key := keys[(n*r.conf.OpsPerTxn+i)%len(keys)]
		write := workload == workloadWrite ||
			(workload == workloadMixed && i%2 == 1) ||
			(workload == workloadContended && i%2 == 1)
		if write {
			err = timed(reg, "put", func() error { return r.client.Put(id, key, r.value) })
		} else {
			err = timed(reg, "get", func() error {
				_, err := r.client.Get(id, key)
				return err
			})
		}
	}

	if err != nil {
		// the session may already be gone, the outcome is the operation's error
		_ = r.client.Rollback(id)
		outcome(reg, err)
		return
	}

	outcome(reg, timed(reg, "commit", func() error { return r.client.Commit(id) }))
}

// batch applies fn to all keys in transactions of at most 100 keys
func (r *perfRunner) batch(keys [][]byte, fn func(id uint32, key []byte) error) error {
	for lo := 0; lo < len(keys); lo += 100 {
		hi := min(lo+100, len(keys))
		id, err := r.client.Begin(kv.ModeOptimistic)
		if err != nil {
			return err
		}
		for _, key := range keys[lo:hi] {
			if err = fn(id, key); err != nil {
				break
			}
		}
		if err != nil {
			_ = r.client.Rollback(id)
			return err
		}
		if err := r.client.Commit(id); err != nil {
			return err
		}
	}
	return nil
}

// timed runs fn and records its latency under name
func timed(reg metrics.Registry, name string, fn func() error) error {
	start := time.Now()
	err := fn()
	metrics.GetOrRegisterTimer(name, reg).UpdateSince(start)
	return err
}

// outcome counts a finished transaction by its status code
func outcome(reg metrics.Registry, err error) {
	metrics.GetOrRegisterCounter("outcome."+status.Code(err).String(), reg).Inc(1)
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func (c perfConfig) skips(workload string) bool {
	for _, skip := range c.Skip {
		if strings.TrimSpace(skip) == workload {
			return true
		}
	}
	return false
}

// outcomes returns the outcome counters of a result sorted by code
func (r perfResult) outcomes() []string {
	var out []string
	r.Registry.Each(func(name string, m interface{}) {
		if c, ok := m.(metrics.Counter); ok {
			out = append(out, fmt.Sprintf("%s=%d", strings.TrimPrefix(name, "outcome."), c.Count()))
		}
	})
	sort.Strings(out)
	return out
}

// timers returns the timer names of a result in a stable order
func (r perfResult) timers() []string {
	var names []string
	r.Registry.Each(func(name string, m interface{}) {
		if _, ok := m.(metrics.Timer); ok {
			names = append(names, name)
		}
	})
	sort.Strings(names)
	return names
}

// print prints the result of a workload in a formatted way
func (r perfResult) print() {
	txns := metrics.GetOrRegisterTimer("txn", r.Registry).Snapshot()
	fmt.Printf("%-12s%d txns in %s (%.0f txns/sec)\t%s\n",
		r.Name, txns.Count(), r.Elapsed.Round(time.Millisecond),
		float64(txns.Count())/r.Elapsed.Seconds(), strings.Join(r.outcomes(), " "))

	for _, name := range r.timers() {
		t := r.Registry.Get(name).(metrics.Timer).Snapshot()
		ps := t.Percentiles([]float64{0.5, 0.99})
		fmt.Printf("  %-10s n=%-8d mean=%-12s p50=%-12s p99=%s\n", name, t.Count(),
			time.Duration(t.Mean()), time.Duration(ps[0]), time.Duration(ps[1]))
	}
}

// writeResultsToCSV writes benchmark results to a CSV file, one row per workload and operation
func writeResultsToCSV(csvPath string, results []perfResult) error {
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
		"Workload", "Operation", "Count", "MeanNs", "P50Ns", "P99Ns", "ElapsedNs", "Outcomes",
		"Endpoints", "Serializer", "Transport", "Mode", "Threads", "OpsPerTxn", "Keys",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	for _, result := range results {
		for _, name := range result.timers() {
			t := result.Registry.Get(name).(metrics.Timer).Snapshot()
			ps := t.Percentiles([]float64{0.5, 0.99})
			row := []string{
				result.Name,
				name,
				strconv.FormatInt(t.Count(), 10),
				fmt.Sprintf("%.0f", t.Mean()),
				fmt.Sprintf("%.0f", ps[0]),
				fmt.Sprintf("%.0f", ps[1]),
				strconv.FormatInt(result.Elapsed.Nanoseconds(), 10),
				strings.Join(result.outcomes(), ";"),
				strings.Join(config.Transport.Endpoints, ";"),
				viper.GetString("serializer"),
				viper.GetString("transport"),
				perfConf.Mode.String(),
				strconv.Itoa(perfConf.Threads),
				strconv.Itoa(perfConf.OpsPerTxn),
				strconv.Itoa(perfConf.Keys),
			}
			if err := writer.Write(row); err != nil {
				return fmt.Errorf("failed to write row for workload %s: %v", result.Name, err)
			}
		}
	}

	return nil
}
