package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/corey/hilite/internal/app"
	"github.com/corey/hilite/internal/logging"
	"github.com/corey/hilite/internal/logging/logfields"
)

var log = logging.DefaultLogger.WithField(logfields.LogSubsys, "cli")

var cfgFile string

var rootCmd = &cobra.Command{
	Use:           "hilite",
	Short:         "Grammar-driven syntax highlighter",
	Long:          "Tokenizes source text with declarative grammars and renders it as <span class=\"token …\"> markup.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return applyLogging()
	},
}

// projectRoot returns the project root (cwd by default).
func projectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	return dir
}

// Execute runs the root command.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
	return err
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.SetGlobalNormalizationFunc(normalizeFlagName)

	defaults := app.DefaultConfig("")
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is .hilite.yaml in the project root or $HOME)")
	flags.BoolP("debug", "D", false, "Enable debug messages")
	flags.String("log-format", defaults.LogFormat, "Log format: text or json")
	flags.String("grammar-dir", "", "User grammar directory (default .hilite/grammars)")
	flags.String("db", "", "Tree cache database (default .hilite/hilite.db)")
	flags.Bool("cache", defaults.Cache, "Reuse tokenized trees across runs")
	flags.Duration("cache-ttl", defaults.CacheTTL, "Drop cached trees older than this (0 keeps them)")
	flags.Duration("worker-timeout", defaults.WorkerTimeout, "How long an async request waits for its worker before tokenizing in-process")
	flags.String("missing-rule", defaults.MissingRule, "insert_before with an absent target rule: silent or report")
	flags.Duration("match-timeout", 0, "Bound a single regex search (0 = unbounded)")
	flags.Int("http-port", 0, "Preferred HTTP port for the daemon playground (0 = derived from project root)")
	viper.BindPFlags(flags)

	rootCmd.AddCommand(highlightCmd)
	rootCmd.AddCommand(tokenizeCmd)
	rootCmd.AddCommand(grammarsCmd)
	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(configCmd)
}

// normalizeFlagName accepts --worker_timeout for --worker-timeout, matching
// the keys of the config file.
func normalizeFlagName(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName(".hilite")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME")
	}

	viper.SetEnvPrefix("hilite")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		log.WithField(logfields.Path, viper.ConfigFileUsed()).Debug("Using config file")
	}
}

func applyLogging() error {
	logging.ToggleDebugLogs(viper.GetBool("debug"))
	return logging.SetLogFormat(viper.GetString("log-format"))
}

// loadConfig builds the app configuration from flags, env and config file.
func loadConfig() app.Config {
	root := projectRoot()
	paths := app.NewPaths(root)
	cfg := app.Config{
		ProjectRoot:   root,
		Debug:         viper.GetBool("debug"),
		LogFormat:     viper.GetString("log-format"),
		GrammarDir:    viper.GetString("grammar-dir"),
		MissingRule:   viper.GetString("missing-rule"),
		MatchTimeout:  viper.GetDuration("match-timeout"),
		DBPath:        viper.GetString("db"),
		Cache:         viper.GetBool("cache"),
		CacheTTL:      viper.GetDuration("cache-ttl"),
		WorkerTimeout: viper.GetDuration("worker-timeout"),
		Jobs:          viper.GetInt("jobs"),
		HTTPPort:      viper.GetInt("http-port"),
	}
	if cfg.GrammarDir == "" {
		cfg.GrammarDir = paths.GrammarsDir
	}
	if cfg.DBPath == "" {
		cfg.DBPath = paths.DB
	}
	return cfg
}

// elapsedString matches the daemon's rounding.
func elapsedString(d time.Duration) string {
	return d.Round(time.Microsecond).String()
}
