package constants

import "time"

const (
	// config
	DEFAULT_CONFIG_DIR        = ".benchctl"
	DEFAULT_CONFIG_FILE       = "config.json"
	DEFAULT_SEED        int64 = 0x207B096061CDA310

	// server
	DEFAULT_ENDPOINT           = "0.0.0.0:7879"
	DEFAULT_LISTEN_ADDR        = "127.0.0.1:7879"
	DEFAULT_DIAL_TIMEOUT       = 5 * time.Second
	DEFAULT_DELEGATION   uint8 = 1

	// run sizing
	DEFAULT_CAPACITY_LOG2 = 15 // 32768 slots
	DEFAULT_THREADS       = 1
	DEFAULT_OPS_PER_BATCH = 1

	// Experiment names accepted by -k, custom takes its percentages from the config
	EXPERIMENT_READ_HEAVY   = "ReadHeavy"   // 98% reads
	EXPERIMENT_INSERT_HEAVY = "InsertHeavy" // 80% inserts on an empty table
	EXPERIMENT_UPDATE_HEAVY = "UpdateHeavy" // 50% updates
	EXPERIMENT_UNIFORM      = "Uniform"     // 20% of every operation
	EXPERIMENT_CUSTOM       = "Custom"

	UPSERT_POLICY_REJECT = "reject"
	UPSERT_POLICY_SKIP   = "skip"

	// output
	DEFAULT_RESULTS_DIR = "."
	DEFAULT_LOG_LEVEL   = "info"
)
