package config

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"kvbench/client/runner"
	"kvbench/control/constants"

	validator "github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// MixConfig holds the percentages of a Custom experiment. The fields are
// ignored for the predefined experiments.
type MixConfig struct {
	Read    int     `json:"read" yaml:"read" validate:"gte=0,lte=100"`
	Insert  int     `json:"insert" yaml:"insert" validate:"gte=0,lte=100"`
	Remove  int     `json:"remove" yaml:"remove" validate:"gte=0,lte=100"`
	Update  int     `json:"update" yaml:"update" validate:"gte=0,lte=100"`
	Upsert  int     `json:"upsert" yaml:"upsert" validate:"gte=0,lte=100"`
	Prefill float64 `json:"prefill" yaml:"prefill" validate:"gte=0,lte=1"`
}

type BenchctlConfig struct {
	// Seed of the master RNG, 0 picks one from the clock
	Seed        int64    `json:"seed" yaml:"seed" validate:"gte=0"`
	Endpoint    string   `json:"endpoint" yaml:"endpoint" validate:"required,valid_endpoint"`
	DialTimeout Duration `json:"dial_timeout" yaml:"dial_timeout" validate:"required"`
	Delegation  uint8    `json:"delegation" yaml:"delegation"`
	Experiment  string   `json:"experiment" yaml:"experiment" validate:"required,valid_experiment"`
	MixConfig   `yaml:",inline"`
	// UpsertPolicy is reject or skip
	UpsertPolicy string `json:"upsert_policy" yaml:"upsert_policy" validate:"required,oneof=reject skip"`
	CapacityLog2 int    `json:"capacity_log2" yaml:"capacity_log2" validate:"required,gte=1,lte=40"`
	Threads      int    `json:"threads" yaml:"threads" validate:"required,gt=0"`
	OpsPerBatch  int    `json:"ops_per_batch" yaml:"ops_per_batch" validate:"required,gt=0"`
	// Output parameters
	ResultsDir       string `json:"results_dir" yaml:"results_dir" validate:"required"`
	PhaseMetricsFile string `json:"phase_metrics_file" yaml:"phase_metrics_file" validate:"omitempty,filepath"`
	LogFile          string `json:"log_file" yaml:"log_file" validate:"omitempty,filepath"`
	LogLevel         string `json:"log_level" yaml:"log_level" validate:"required,oneof=debug info warn error"`
}

// Custom validation tags
const (
	experimentTag    = "valid_experiment"
	endpointTag      = "valid_endpoint"
	mixTag           = "valid_mix"
	upsertSupportTag = "upsert_supported"
)

// RegisterCustomValidators registers all custom validators for BenchctlConfig
func RegisterCustomValidators(v *validator.Validate) error {
	if err := v.RegisterValidation(experimentTag, validateExperiment); err != nil {
		return fmt.Errorf("failed to register experiment validator: %w", err)
	}

	if err := v.RegisterValidation(endpointTag, validateEndpoint); err != nil {
		return fmt.Errorf("failed to register endpoint validator: %w", err)
	}

	v.RegisterStructValidation(validateWorkload, BenchctlConfig{})
	return nil
}

// validateExperiment ensures the experiment is one of the known kinds
func validateExperiment(fl validator.FieldLevel) bool {
	experiment := fl.Field().String()
	for _, kind := range runner.WorkloadKinds {
		if string(kind) == experiment {
			return true
		}
	}
	return false
}

// validateEndpoint ensures the endpoint is host:port with a valid port
func validateEndpoint(fl validator.FieldLevel) bool {
	host, port, err := net.SplitHostPort(fl.Field().String())
	if err != nil || host == "" {
		return false
	}

	portNum, err := strconv.Atoi(port)
	if err != nil || portNum < 1 || portNum > 65535 {
		return false
	}

	if net.ParseIP(host) != nil {
		return true
	}
	for _, r := range host {
		if !(r == '.' || r == '-' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			return false
		}
	}
	return true
}

// validateWorkload checks the resolved percentages sum to 100 and that the
// upsert policy accepts them.
func validateWorkload(sl validator.StructLevel) {
	cfg := sl.Current().Interface().(BenchctlConfig)
	workload, err := cfg.Workload()
	if err != nil {
		// unknown experiments are reported by the field validator
		return
	}
	if err := workload.Validate(); err != nil {
		sl.ReportError(cfg.MixConfig, "MixConfig", "mix", mixTag, "")
		return
	}
	if err := runner.UpsertPolicy(cfg.UpsertPolicy).CheckUpserts(workload); err != nil {
		sl.ReportError(cfg.UpsertPolicy, "UpsertPolicy", "upsert_policy", upsertSupportTag, "")
	}
}

// Workload resolves the experiment to its percentages
func (cfg *BenchctlConfig) Workload() (runner.WorkloadSpec, error) {
	kind := runner.WorkloadKind(cfg.Experiment)
	if kind == runner.Custom {
		return runner.WorkloadSpec{
			Read:    cfg.Read,
			Insert:  cfg.Insert,
			Remove:  cfg.Remove,
			Update:  cfg.Update,
			Upsert:  cfg.Upsert,
			Prefill: cfg.Prefill,
		}, nil
	}
	return runner.Preset(kind)
}

func GetDefaultConfig() *BenchctlConfig {
	return &BenchctlConfig{
		Seed:         constants.DEFAULT_SEED,
		Endpoint:     constants.DEFAULT_ENDPOINT,
		DialTimeout:  Duration(constants.DEFAULT_DIAL_TIMEOUT),
		Delegation:   constants.DEFAULT_DELEGATION,
		Experiment:   constants.EXPERIMENT_READ_HEAVY,
		MixConfig:    MixConfig{Read: 98, Insert: 1, Remove: 1, Prefill: 0.75},
		UpsertPolicy: constants.UPSERT_POLICY_REJECT,
		CapacityLog2: constants.DEFAULT_CAPACITY_LOG2,
		Threads:      constants.DEFAULT_THREADS,
		OpsPerBatch:  constants.DEFAULT_OPS_PER_BATCH,
		ResultsDir:   constants.DEFAULT_RESULTS_DIR,
		LogLevel:     constants.DEFAULT_LOG_LEVEL,
	}
}

func ValidateConfig(config *BenchctlConfig) error {
	v := validator.New()
	if err := RegisterCustomValidators(v); err != nil {
		return fmt.Errorf("failed to register custom validators: %w", err)
	}

	return v.Struct(config)
}

// ToRunConfig converts a validated configuration into the runner's
func (cfg *BenchctlConfig) ToRunConfig() (*runner.BenchmarkRunConfig, error) {
	workload, err := cfg.Workload()
	if err != nil {
		return nil, err
	}
	return &runner.BenchmarkRunConfig{
		Experiment:       runner.WorkloadKind(cfg.Experiment),
		Workload:         workload,
		UpsertPolicy:     runner.UpsertPolicy(cfg.UpsertPolicy),
		Endpoint:         cfg.Endpoint,
		DialTimeout:      time.Duration(cfg.DialTimeout),
		Delegation:       cfg.Delegation,
		CapacityLog2:     cfg.CapacityLog2,
		Threads:          cfg.Threads,
		OpsPerBatch:      cfg.OpsPerBatch,
		Seed:             cfg.Seed,
		ResultsDir:       cfg.ResultsDir,
		PhaseMetricsFile: cfg.PhaseMetricsFile,
	}, nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// ReadConfig loads a JSON or, by extension, YAML file on top of the defaults
// and validates the result.
func ReadConfig(path string) (*BenchctlConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	benchctlConfig := GetDefaultConfig()
	if isYAML(path) {
		err = yaml.Unmarshal(data, benchctlConfig)
	} else {
		err = json.Unmarshal(data, benchctlConfig)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	err = ValidateConfig(benchctlConfig)
	if err != nil {
		return nil, err
	}
	return benchctlConfig, nil
}

func (cfg *BenchctlConfig) WriteConfig(path string) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
