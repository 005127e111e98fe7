package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/go-go-golems/runnable/cmd/runnable/cmds"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "runnable",
	Short: "runnable loads, runs and draws YAML pipelines of composable runnables",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// flags are parsed by now, so --log-level and co take effect
		return InitLogger(logConfigFromViper())
	},
	SilenceUsage: true,
}

// configFileFromArgs finds --config before cobra parses flags, since the config file has
// to be read before the flags are bound.
func configFileFromArgs(args []string) string {
	for i, arg := range args {
		if v, ok := strings.CutPrefix(arg, "--config="); ok {
			return v
		}
		if arg == "--config" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func initConfig(rootCmd *cobra.Command, configPath string) error {
	viper.SetEnvPrefix("runnable")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.SetConfigName("config")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.runnable")
		if dir, err := os.UserConfigDir(); err == nil {
			viper.AddConfigPath(filepath.Join(dir, "runnable"))
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
	}

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return err
	}

	if err := InitLogger(logConfigFromViper()); err != nil {
		return err
	}
	log.Debug().Str("config", viper.ConfigFileUsed()).Msg("Loaded configuration")

	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.Bool("with-caller", false, "Log caller")
	flags.String("log-level", "info", "Log level (trace, debug, info, warn, error, fatal)")
	flags.String("log-format", "auto", "Log format (auto, json, text)")
	flags.String("log-file", "", "Also log to this file, rotated")
	flags.String("config", "", "Path to config file (default ~/.runnable/config.yaml)")
	flags.Bool("verbose", false, "Verbose output")

	cmds.AddRunFlags(rootCmd)

	cobra.CheckErr(initConfig(rootCmd, configFileFromArgs(os.Args[1:])))

	cmds.AddToRootCommand(rootCmd)
}
