// Package cli wires the nsgx commands: pack, run, merge, propose.
package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kerimala/MKUEMRLP/internal/model"
)

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "nsgx",
	Short: "NSG regulation mining - extract structured rules from protected-area ordinances",
	Long: `nsgx mines German nature-reserve (NSG) regulation texts for structured
rules: which activity is permitted or prohibited where, under which
conditions. Extraction runs against a DeepSeek-compatible completion
service; results are cached, merged per document, and unknown vocabulary
is clustered into reviewable proposals.

Typical flow:
  nsgx pack ./texts            turn documents into bounded text units
  nsgx run                     extract rules for every unit
  nsgx merge                   fold unit results into per-document files
  nsgx propose                 cluster new vocabulary across the corpus`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("nsgx v0.3.1")
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.nsgx/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	_ = viper.BindPFlag("output.verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	rootCmd.AddCommand(versionCmd)
}

// initConfig reads in config file and ENV variables
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}
		viper.AddConfigPath(home + "/.nsgx")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// Read in environment variables that match NSGX_*
	viper.SetEnvPrefix("NSGX")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// loadConfig builds the effective configuration: defaults, overlaid by
// the config file, overlaid by NSGX_* environment variables. Command
// flags apply on top in the individual commands.
func loadConfig() *model.Config {
	cfg := model.DefaultConfig()

	setString := func(dst *string, key string) {
		if viper.IsSet(key) {
			*dst = viper.GetString(key)
		}
	}
	setInt := func(dst *int, key string) {
		if viper.IsSet(key) {
			*dst = viper.GetInt(key)
		}
	}
	setDuration := func(dst *time.Duration, key string) {
		if viper.IsSet(key) {
			*dst = viper.GetDuration(key)
		}
	}

	setString(&cfg.Service.BaseURL, "service.base_url")
	setString(&cfg.Service.ChatModel, "service.chat_model")
	setString(&cfg.Service.ReasonerModel, "service.reasoner_model")
	setDuration(&cfg.Service.Timeout, "service.timeout")
	setDuration(&cfg.Service.ReasonerTimeout, "service.reasoner_timeout")
	setInt(&cfg.Service.MaxTokens, "service.max_tokens")
	if viper.IsSet("service.temperature") {
		cfg.Service.Temperature = float32(viper.GetFloat64("service.temperature"))
	}

	setInt(&cfg.Segment.MaxUnitChars, "segment.max_unit_chars")

	if viper.IsSet("cache.enabled") {
		cfg.Cache.Enabled = viper.GetBool("cache.enabled")
	}
	setString(&cfg.Cache.Path, "cache.path")
	setDuration(&cfg.Cache.MemoryTTL, "cache.memory_ttl")

	setInt(&cfg.Concurrency.Workers, "concurrency.workers")
	if viper.IsSet("concurrency.requests_per_second") {
		cfg.Concurrency.RequestsPerSecond = viper.GetFloat64("concurrency.requests_per_second")
	}
	setInt(&cfg.Concurrency.Burst, "concurrency.burst")

	setInt(&cfg.Propose.MinDocCount, "propose.min_doc_count")
	setInt(&cfg.Propose.SimilarityThreshold, "propose.similarity_threshold")

	cfg.Output.Verbose = verbose

	// API key from environment; NSGX_API_KEY wins, the provider's own
	// variable works as a fallback.
	cfg.Service.APIKey = os.Getenv("NSGX_API_KEY")
	if cfg.Service.APIKey == "" {
		cfg.Service.APIKey = os.Getenv("DEEPSEEK_API_KEY")
	}
	return cfg
}
