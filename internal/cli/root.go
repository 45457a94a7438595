package cli

import (
	"context"
	"fmt"
	"image/color"
	"os"
	"strings"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/lipgloss/v2"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/lacquerai/emo/internal/style"
)

var (
	// Global flags
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "emo",
		Short: "Score the emotions expressed in a piece of text",
		Long: `emo reads a piece of text and prints how strongly it expresses each emotion.

Run without arguments to be prompted for the text. Scoring is delegated to a
classifier: the built-in lexicon works offline, the openai and anthropic
classifiers ask a hosted model.`,
		Version:       getVersion(),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			initLogging(cmd)
		},
		RunE: runAnalyze,
	}

	// Global flags
	flags := cmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.emo/config.yaml)")
	flags.String("log-level", "disabled", "log level (debug, info, warn, error) (default: disabled)")
	flags.String("output", "text", "output format (text, json, yaml, table)")
	flags.BoolP("quiet", "q", false, "suppress non-essential output")
	flags.BoolP("verbose", "v", false, "verbose output")

	// Classifier flags
	flags.StringP("classifier", "c", "lexicon", "classifier used to score the text")
	flags.String("model", "", "model name for model-backed classifiers")
	flags.StringSlice("labels", nil, "emotion labels requested from model-backed classifiers")
	flags.Duration("timeout", 0, "classification timeout (0 disables)")
	flags.String("metrics-textfile", "", "write Prometheus metrics for this run to the given file")

	bindFlags(flags, "log-level", "output", "quiet", "verbose", "classifier", "model", "labels", "timeout", "metrics-textfile")

	addTextFlags(cmd)

	cmd.AddCommand(
		newAnalyzeCmd(),
		newClassifiersCmd(),
		newSchemaCmd(),
		newVersionCmd(),
	)

	return cmd
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return fang.Execute(context.Background(), rootCmd, fang.WithColorSchemeFunc(func(lightDark lipgloss.LightDarkFunc) fang.ColorScheme {
		return fang.ColorScheme{
			Base:           style.PrimaryTextColor,
			Title:          style.AccentColor,
			Description:    style.PrimaryTextColor,
			Codeblock:      style.CodeColor,
			Program:        style.AccentColor,
			DimmedArgument: style.MutedColor,
			Comment:        style.MutedColor,
			Flag:           style.InfoColor,
			FlagDefault:    style.MutedColor,
			Command:        style.SuccessColor,
			QuotedString:   style.WarningColor,
			Argument:       style.PrimaryTextColor,
			Help:           style.InfoColor,
			Dash:           style.MutedColor,
			ErrorHeader:    [2]color.Color{style.ErrorColor, style.ErrorBgColor},
			ErrorDetails:   style.ErrorColor,
		}
	}))
}

func init() {
	cobra.OnInitialize(initConfig)
}

// bindFlags binds flags to viper under their own names
func bindFlags(flags *pflag.FlagSet, names ...string) {
	for _, name := range names {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	_ = godotenv.Load()

	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".emo" (without extension).
		viper.AddConfigPath(home + "/.emo")
		viper.AddConfigPath(".")
		viper.AddConfigPath(".emo")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// Environment variables, e.g. EMO_CLASSIFIER or EMO_METRICS_TEXTFILE
	viper.SetEnvPrefix("EMO")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		if !viper.GetBool("quiet") {
			style.Info(os.Stderr, fmt.Sprintf("Using config file: %s", viper.ConfigFileUsed()))
		}
	}
}

// initLogging configures the global logger
func initLogging(cmd *cobra.Command) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level := viper.GetString("log-level")
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.Disabled)
	}

	// Configure console output for better readability
	if !viper.GetBool("quiet") && viper.GetString("output") == "text" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr()})
	}
}

// getVersion returns the version information
func getVersion() string {
	return fmt.Sprintf("%s (commit: %s, built: %s, go: %s)", Version, Commit, Date, GoVersion)
}
