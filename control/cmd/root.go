package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"

	benchCfg "kvbench/control/config"
	"kvbench/control/constants"

	"github.com/spf13/cobra"
)

// GlobalConfig holds the persisted benchctl configuration shared by all commands
type GlobalConfig struct {
	ctlConfigPath string
	ctlConfig     *benchCfg.BenchctlConfig
}

func (g *GlobalConfig) GetConfigFilePath() string {
	return path.Join(g.ctlConfigPath, constants.DEFAULT_CONFIG_FILE)
}

var GConfig = &GlobalConfig{}

// skipConfigLoad marks commands that run without the persisted configuration,
// either because they replace it or because they never read it.
const skipConfigLoad = "benchctl/skip-config-load"

var rootCmd = &cobra.Command{
	Use:   "benchctl",
	Short: "Benchctl is a CLI tool for benchmarking delegation key-value servers",
	Long:  "A CLI tool for running fixed-size operation mixes against a delegation key-value server, recording throughput and serving a reference server for local runs",
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) == 0 {
			cmd.Help()
			os.Exit(0)
		}
	},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Annotations[skipConfigLoad] != "" {
			return nil
		}
		return loadGlobalConfig()
	},
	SilenceUsage: true,
}

func init() {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	rootCmd.PersistentFlags().StringVar(&GConfig.ctlConfigPath, "config-dir", path.Join(home, constants.DEFAULT_CONFIG_DIR), "Directory holding the persisted benchctl configuration")

	rootCmd.AddCommand(RunCmd)
	rootCmd.AddCommand(ServeCmd)
	rootCmd.AddCommand(ConfigCmd)
}

// loadGlobalConfig reads the persisted configuration if there is one. Only a
// missing file leaves ctlConfig nil, an unreadable or invalid one is an error.
func loadGlobalConfig() error {
	configPath := GConfig.GetConfigFilePath()
	cfg, err := benchCfg.ReadConfig(configPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", configPath, err)
	}
	GConfig.ctlConfig = cfg
	return nil
}

func Execute() error {
	return rootCmd.Execute()
}
