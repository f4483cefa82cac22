package cmd

import (
	"fmt"
	"reflect"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/go-dash/dashdemux/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
	Long:  `Commands for managing dashdemux configuration.`,
}

var configDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Dump the effective configuration",
	Long: `Dump the configuration values in YAML format: the defaults, overridden
by a config file found in the search path and by environment variables.

Configuration can be set via:
  - Config file (config.yaml, ./configs/config.yaml, /etc/dashdemux/config.yaml)
  - Environment variables (DASHDEMUX_DASH_MAX_MANIFEST_SIZE, etc.)
  - Command-line flags (logging only)

Environment variables use the DASHDEMUX_ prefix and underscores for nesting.
Example: dash.manifest_refresh_window -> DASHDEMUX_DASH_MANIFEST_REFRESH_WINDOW`,
	RunE: runConfigDump,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configDumpCmd)
}

// toMap converts a struct to a map, formatting durations and byte sizes
// for human readability.
func toMap(v any) map[string]any {
	result := make(map[string]any)
	val := reflect.ValueOf(v)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}
	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)

		key := fieldType.Tag.Get("mapstructure")
		if key == "" {
			key = fieldType.Name
		}

		switch v := field.Interface().(type) {
		case time.Duration:
			result[key] = v.String()
		case config.ByteSize:
			result[key] = v.String()
		default:
			if field.Kind() == reflect.Struct {
				result[key] = toMap(field.Interface())
			} else {
				result[key] = field.Interface()
			}
		}
	}
	return result
}

func runConfigDump(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load("")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	cfgMap := toMap(cfg)

	yamlData, err := yaml.Marshal(cfgMap)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	fmt.Println("# dashdemux configuration file")
	fmt.Println("# ============================")
	fmt.Println("#")
	fmt.Println("# Values shown below are defaults unless a config file or")
	fmt.Println("# environment variable overrides them.")
	fmt.Println("#")
	fmt.Print(string(yamlData))

	return nil
}
