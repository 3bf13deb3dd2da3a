package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"reflect"
	"strings"

	benchCfg "kvbench/control/config"
	constants "kvbench/control/constants"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var errNoConfig = errors.New("config not found, please run 'benchctl config init' first")

var ConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage benchctl configuration",
	Long:  "View and modify benchctl configuration settings",
}

var configSetCmd = &cobra.Command{
	Use:   "set field=value",
	Short: "Set a configuration field",
	Long:  "Set the value of a specific configuration field (e.g., config set threads=4 or config set dial_timeout=2s)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if GConfig.ctlConfig == nil {
			return errNoConfig
		}
		name, value, ok := strings.Cut(args[0], "=")
		if !ok {
			return fmt.Errorf("invalid format. Use: field=value")
		}
		updated, err := setConfigField(GConfig.ctlConfig, name, value)
		if err != nil {
			return err
		}
		if err := updated.WriteConfig(GConfig.GetConfigFilePath()); err != nil {
			return err
		}
		GConfig.ctlConfig = updated
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get field",
	Short: "Get a configuration field value",
	Long:  "Get the current value of a specific configuration field",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if GConfig.ctlConfig == nil {
			return errNoConfig
		}
		field, err := lookupField(GConfig.ctlConfig, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%v\n", field.value.Interface())
		return nil
	},
}

var configLoadFileCmd = &cobra.Command{
	Use:         "load-file path/to/config.{json,yaml}",
	Short:       "Load configuration from file",
	Long:        "Load and replace current configuration with contents from specified JSON or YAML file",
	Args:        cobra.ExactArgs(1),
	Annotations: map[string]string{skipConfigLoad: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		newConfig, err := benchCfg.ReadConfig(args[0])
		if err != nil {
			return fmt.Errorf("failed to load config file: %w", err)
		}
		if err := initConfigDir(); err != nil {
			return err
		}
		if err := newConfig.WriteConfig(GConfig.GetConfigFilePath()); err != nil {
			return err
		}
		GConfig.ctlConfig = newConfig
		return nil
	},
}

var configViewCmd = &cobra.Command{
	Use:   "view",
	Short: "View current configuration",
	Long:  "View the current configuration in JSON format",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if GConfig.ctlConfig == nil {
			return errNoConfig
		}
		data, err := json.MarshalIndent(GConfig.ctlConfig, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		fmt.Println(string(data))
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all configuration fields",
	Long:  "List all available configuration fields with their types and current values",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if GConfig.ctlConfig == nil {
			return errNoConfig
		}
		fmt.Printf("%-20s %-15s %-10s %s\n", "FIELD", "TYPE", "REQUIRED", "CURRENT VALUE")
		fmt.Println(strings.Repeat("-", 80))
		for _, f := range configFields(GConfig.ctlConfig) {
			fmt.Printf("%-20s %-15s %-10v %v\n", f.name, f.value.Type(), f.required, f.value.Interface())
		}
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:         "init",
	Short:       "Initialize default configuration",
	Long:        "Initialize the configuration with default values and save it in JSON format in the config directory",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{skipConfigLoad: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := initConfigDir(); err != nil {
			return err
		}
		return initConfigFile()
	},
}

var configResetCmd = &cobra.Command{
	Use:         "reset",
	Short:       "Reset to default configuration",
	Long:        "Reset the configuration with default values and save it in JSON format in the config directory",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{skipConfigLoad: "true"},
	RunE:        configInitCmd.RunE,
}

func init() {
	ConfigCmd.AddCommand(configInitCmd)
	ConfigCmd.AddCommand(configResetCmd)
	ConfigCmd.AddCommand(configSetCmd)
	ConfigCmd.AddCommand(configGetCmd)
	ConfigCmd.AddCommand(configLoadFileCmd)
	ConfigCmd.AddCommand(configViewCmd)
	ConfigCmd.AddCommand(configListCmd)
}

// configField is a settable field of BenchctlConfig, named by its file key
type configField struct {
	name     string
	required bool
	value    reflect.Value
}

// configFields lists the fields of cfg in file order. Embedded structs are
// flattened the same way the JSON and YAML files flatten them.
func configFields(cfg *benchCfg.BenchctlConfig) []configField {
	var fields []configField
	var walk func(v reflect.Value)
	walk = func(v reflect.Value) {
		t := v.Type()
		for i := range t.NumField() {
			sf := t.Field(i)
			if sf.Anonymous && sf.Type.Kind() == reflect.Struct {
				walk(v.Field(i))
				continue
			}
			name, _, _ := strings.Cut(sf.Tag.Get("json"), ",")
			fields = append(fields, configField{
				name:     name,
				required: strings.Contains(sf.Tag.Get("validate"), "required"),
				value:    v.Field(i),
			})
		}
	}
	walk(reflect.ValueOf(cfg).Elem())
	return fields
}

func lookupField(cfg *benchCfg.BenchctlConfig, name string) (configField, error) {
	for _, f := range configFields(cfg) {
		if f.name == name {
			return f, nil
		}
	}
	return configField{}, fmt.Errorf("field %s not found", name)
}

// setConfigField returns a copy of cfg with name set to value. Values are
// parsed as YAML scalars so durations, numbers and strings take the same
// syntax as in a config file. The copy is validated before it is returned.
func setConfigField(cfg *benchCfg.BenchctlConfig, name, value string) (*benchCfg.BenchctlConfig, error) {
	updated := *cfg
	field, err := lookupField(&updated, name)
	if err != nil {
		return nil, err
	}
	if value == "" {
		return nil, fmt.Errorf("empty value for %s", name)
	}
	if field.value.Kind() == reflect.String {
		field.value.SetString(value)
	} else if err := yaml.Unmarshal([]byte(value), field.value.Addr().Interface()); err != nil {
		return nil, fmt.Errorf("invalid value for %s: %w", name, err)
	}
	if err := benchCfg.ValidateConfig(&updated); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &updated, nil
}

func initConfigDir() error {
	if err := os.MkdirAll(GConfig.ctlConfigPath, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return nil
}

func initConfigFile() error {
	configFilePath := path.Join(GConfig.ctlConfigPath, constants.DEFAULT_CONFIG_FILE)
	defaultConfig := benchCfg.GetDefaultConfig()
	if err := defaultConfig.WriteConfig(configFilePath); err != nil {
		return fmt.Errorf("failed to write default config file: %w", err)
	}
	GConfig.ctlConfig = defaultConfig
	fmt.Println("Default configuration initialized and saved in ", configFilePath)
	return nil
}
