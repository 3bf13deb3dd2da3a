package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"kvbench/client/logger"
	"kvbench/client/runner"
	benchCfg "kvbench/control/config"
	"kvbench/control/constants"

	"github.com/spf13/cobra"
)

var runFlags struct {
	configFile   string
	experiment   string
	delegation   uint8
	capacityLog2 int
	threads      int
	opsPerBatch  int
	server       string
	seed         int64
	resultsDir   string
	phaseMetrics string
	upsertPolicy string
	dialTimeout  time.Duration
	logFile      string
	logLevel     string
	read         int
	insert       int
	remove       int
	update       int
	upsert       int
	prefill      float64
}

var RunCmd = &cobra.Command{
	Use:   "run [flags]",
	Short: "Run one benchmark",
	Long: "Register with the delegation server, prefill it, run the timed operation mix and append the result row to <results-dir>/results_<delegation>/<experiment>.csv. " +
		"Settings come from the persisted config, then --config, then flags. " +
		"Any of --read, --insert, --remove, --update, --upsert or --prefill replaces the whole Custom mix, the ones not given count as 0.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := resolveRunConfig(cmd)
		if err != nil {
			return err
		}
		return runBenchmark(cmd, cfg)
	},
}

func init() {
	f := RunCmd.Flags()
	f.StringVar(&runFlags.configFile, "config", "", "JSON or YAML file with run settings")
	f.StringVarP(&runFlags.experiment, "experiment", "k", constants.EXPERIMENT_READ_HEAVY, "Experiment: ReadHeavy, InsertHeavy, UpdateHeavy, Uniform or Custom")
	f.Uint8VarP(&runFlags.delegation, "delegation", "d", constants.DEFAULT_DELEGATION, "Delegation server variant, also names the results directory")
	f.IntVarP(&runFlags.capacityLog2, "capacity", "c", constants.DEFAULT_CAPACITY_LOG2, "Log2 of the table capacity")
	f.IntVarP(&runFlags.threads, "threads", "t", constants.DEFAULT_THREADS, "Number of worker connections")
	f.IntVarP(&runFlags.opsPerBatch, "ops-st", "o", constants.DEFAULT_OPS_PER_BATCH, "Operations per batch")
	f.StringVar(&runFlags.server, "server", constants.DEFAULT_ENDPOINT, "Delegation server address")
	f.Int64Var(&runFlags.seed, "seed", constants.DEFAULT_SEED, "Master RNG seed, 0 picks one from the clock")
	f.StringVar(&runFlags.resultsDir, "results-dir", constants.DEFAULT_RESULTS_DIR, "Directory holding the results_<delegation> folders")
	f.StringVar(&runFlags.phaseMetrics, "phase-metrics", "", "Write per worker and phase statistics to this CSV file")
	f.StringVar(&runFlags.upsertPolicy, "upsert-policy", constants.UPSERT_POLICY_REJECT, "What to do with upsert slots: reject or skip")
	f.DurationVar(&runFlags.dialTimeout, "dial-timeout", constants.DEFAULT_DIAL_TIMEOUT, "Timeout of a single connection attempt")
	f.StringVar(&runFlags.logFile, "log-file", "", "Also write the log to this file")
	f.StringVar(&runFlags.logLevel, "log-level", constants.DEFAULT_LOG_LEVEL, "Log level: debug, info, warn or error")
	f.IntVar(&runFlags.read, "read", 0, "Custom experiment: percentage of reads")
	f.IntVar(&runFlags.insert, "insert", 0, "Custom experiment: percentage of inserts")
	f.IntVar(&runFlags.remove, "remove", 0, "Custom experiment: percentage of removes")
	f.IntVar(&runFlags.update, "update", 0, "Custom experiment: percentage of updates")
	f.IntVar(&runFlags.upsert, "upsert", 0, "Custom experiment: percentage of upserts")
	f.Float64Var(&runFlags.prefill, "prefill", 0, "Custom experiment: fraction of the capacity inserted before the timed phase")
}

// resolveRunConfig layers the persisted config, the --config file and the
// flags that were set explicitly, then validates the result.
func resolveRunConfig(cmd *cobra.Command) (*benchCfg.BenchctlConfig, error) {
	cfg := benchCfg.GetDefaultConfig()
	if GConfig.ctlConfig != nil {
		c := *GConfig.ctlConfig
		cfg = &c
	}
	if runFlags.configFile != "" {
		fileCfg, err := benchCfg.ReadConfig(runFlags.configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", runFlags.configFile, err)
		}
		cfg = fileCfg
	}

	f := cmd.Flags()
	set := func(name string, apply func()) {
		if f.Changed(name) {
			apply()
		}
	}
	set("experiment", func() { cfg.Experiment = runFlags.experiment })
	set("delegation", func() { cfg.Delegation = runFlags.delegation })
	set("capacity", func() { cfg.CapacityLog2 = runFlags.capacityLog2 })
	set("threads", func() { cfg.Threads = runFlags.threads })
	set("ops-st", func() { cfg.OpsPerBatch = runFlags.opsPerBatch })
	set("server", func() { cfg.Endpoint = runFlags.server })
	set("seed", func() { cfg.Seed = runFlags.seed })
	set("results-dir", func() { cfg.ResultsDir = runFlags.resultsDir })
	set("phase-metrics", func() { cfg.PhaseMetricsFile = runFlags.phaseMetrics })
	set("upsert-policy", func() { cfg.UpsertPolicy = runFlags.upsertPolicy })
	set("dial-timeout", func() { cfg.DialTimeout = benchCfg.Duration(runFlags.dialTimeout) })
	set("log-file", func() { cfg.LogFile = runFlags.logFile })
	set("log-level", func() { cfg.LogLevel = runFlags.logLevel })
	// the mix flags describe a whole Custom mix, unset percentages are 0
	mixFlags := []string{"read", "insert", "remove", "update", "upsert", "prefill"}
	if cfg.Experiment == constants.EXPERIMENT_CUSTOM && slices.ContainsFunc(mixFlags, f.Changed) {
		cfg.MixConfig = benchCfg.MixConfig{}
	}
	set("read", func() { cfg.Read = runFlags.read })
	set("insert", func() { cfg.Insert = runFlags.insert })
	set("remove", func() { cfg.Remove = runFlags.remove })
	set("update", func() { cfg.Update = runFlags.update })
	set("upsert", func() { cfg.Upsert = runFlags.upsert })
	set("prefill", func() { cfg.Prefill = runFlags.prefill })

	if err := benchCfg.ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func runBenchmark(cmd *cobra.Command, cfg *benchCfg.BenchctlConfig) error {
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	log, err := logger.NewLogger(cfg.LogFile, level)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Close()

	runCfg, err := cfg.ToRunConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	benchRunner, err := runner.NewBenchmarkRunner(runCfg, log)
	if err != nil {
		return err
	}
	log.Infow("Starting benchmark run",
		"run_id", benchRunner.RunID(),
		"seed", benchRunner.Seed(),
		"endpoint", runCfg.Endpoint,
		"delegation", runCfg.Delegation)

	result, err := benchRunner.Run(ctx)
	if err != nil {
		log.Errorw("Benchmark run failed", "error", err)
		return err
	}

	resultPath := runner.ResultPath(runCfg.ResultsDir, runCfg.Delegation, runCfg.Experiment)
	if err := runner.AppendResult(resultPath, result); err != nil {
		return err
	}
	log.Infow("Result appended", "path", resultPath)

	fmt.Printf("The elapsed is %v\n", result.Elapsed.Seconds())
	fmt.Printf("Throughput: %v\n", result.Throughput)
	return nil
}
