package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lacquerai/emo/internal/emotion"
	"github.com/lacquerai/emo/internal/emotion/lexicon"
	"github.com/lacquerai/emo/internal/metrics"
	"github.com/lacquerai/emo/internal/provider/anthropic"
	"github.com/lacquerai/emo/internal/provider/openai"
	"github.com/lacquerai/emo/internal/style"
)

// prompt is written before reading the text interactively
const prompt = "Enter the text: "

// ErrNoInput is returned when the input stream ends before any text is read
var ErrNoInput = errors.New("no input text")

// registry holds the classifiers selectable with --classifier
var registry = defaultRegistry()

func defaultRegistry() *emotion.Registry {
	r := emotion.NewRegistry()
	entries := []emotion.Entry{
		{
			Name:        lexicon.Name,
			Description: "Offline word list scoring Happy, Angry, Surprise, Sad and Fear",
			Factory:     lexicon.NewFromOptions,
		},
		{
			Name:        openai.Name,
			Description: "OpenAI chat model returning scores as JSON",
			Remote:      true,
			Factory:     openai.NewFromOptions,
		},
		{
			Name:        anthropic.Name,
			Description: "Anthropic Claude model returning scores as JSON",
			Remote:      true,
			Factory:     anthropic.NewFromOptions,
		},
	}

	for _, entry := range entries {
		if err := r.Register(entry); err != nil {
			panic(err)
		}
	}

	return r
}

func newAnalyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze [text...]",
		Short: "Score the emotions in a piece of text",
		Long: `Score the emotions expressed in a piece of text.

The text is taken from the arguments, from --file, or read from a single line
typed at the prompt.`,
		Example: `
  emo analyze "I am so happy today!"
  emo analyze --file review.txt --output table
  echo "what a surprise" | emo analyze --file -
  emo analyze -c openai --output json "I can't believe it"`,
		RunE: runAnalyze,
	}

	addTextFlags(cmd)

	return cmd
}

// addTextFlags adds the flags selecting where the text comes from
func addTextFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("file", "f", "", "read the text from a file (- for stdin)")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	outputFormat := viper.GetString("output")
	if err := validateOutputFormat(outputFormat); err != nil {
		return err
	}

	name := viper.GetString("classifier")
	classifier, err := registry.New(name, classifierOptions())
	if err != nil {
		return err
	}
	entry, _ := registry.Get(name)

	var recorder *metrics.Recorder
	metricsPath := viper.GetString("metrics-textfile")
	if metricsPath != "" {
		recorder = metrics.NewRecorder()
		classifier = metrics.Instrument(classifier, recorder)
	}

	text, err := readText(ctx, cmd, args, outputFormat)
	if err != nil {
		return err
	}

	// the timeout bounds classification only, not the wait for input
	if timeout := viper.GetDuration("timeout"); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	query := emotion.NewQuery(classifier)
	log.Info().
		Str("classifier", query.Classifier().Name()).
		Int("text_length", len(text)).
		Msg("Analyzing text")

	quiet := viper.GetBool("quiet")
	var s style.Spinner
	if entry.Remote && !quiet && outputFormat == "text" {
		s = style.NewSpinner(cmd.ErrOrStderr())
		s.SetSuffix(fmt.Sprintf(" Classifying with %s", name))
		s.Start()
	}

	start := time.Now()
	scores, err := query.Analyze(ctx, text)
	elapsed := time.Since(start).Round(time.Millisecond)
	if s != nil {
		if err == nil {
			s.SetFinalMSG(fmt.Sprintf("%s Classified with %s in %s\n", style.InfoIcon(), name, elapsed))
		}
		s.Stop()
	}

	if recorder != nil {
		if werr := recorder.WriteTextfile(metricsPath); werr != nil {
			if err == nil {
				return werr
			}
			log.Warn().Err(werr).Str("path", metricsPath).Msg("Failed to write metrics textfile")
		}
	}

	if err != nil {
		return err
	}

	// the spinner already reported the timing
	if viper.GetBool("verbose") && !quiet && s == nil {
		style.Info(cmd.ErrOrStderr(), fmt.Sprintf("Classified with %s in %s", name, elapsed))
	}

	printScores(cmd.OutOrStdout(), scores, outputFormat)
	return nil
}

// classifierOptions collects classifier settings from flags, config and env
func classifierOptions() emotion.Options {
	return emotion.Options{
		Model:      viper.GetString("model"),
		Labels:     viper.GetStringSlice("labels"),
		APIKey:     viper.GetString("api_key"),
		BaseURL:    viper.GetString("base_url"),
		Timeout:    viper.GetDuration("timeout"),
		MaxRetries: maxRetries(),
	}
}

// maxRetries is nil unless configured, so 0 can turn retries off
func maxRetries() *int {
	if !viper.IsSet("max_retries") {
		return nil
	}
	n := viper.GetInt("max_retries")
	return &n
}

// readText returns the text to classify. Arguments win over --file, and the
// prompt is only shown when neither is given.
func readText(ctx context.Context, cmd *cobra.Command, args []string, outputFormat string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}

	file, _ := cmd.Flags().GetString("file")
	if file != "" {
		var (
			data []byte
			err  error
		)
		if file == "-" {
			data, err = io.ReadAll(cmd.InOrStdin())
		} else {
			data, err = os.ReadFile(file)
		}
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", file, err)
		}
		return string(data), nil
	}

	// keep stdout parseable for structured output
	promptOut := cmd.OutOrStdout()
	if outputFormat != "text" {
		promptOut = cmd.ErrOrStderr()
	}
	fmt.Fprint(promptOut, prompt)

	return readLine(ctx, cmd.InOrStdin())
}

// readLine reads a single line without its terminator. It returns as soon
// as ctx is done, leaving the blocked read behind.
func readLine(ctx context.Context, r io.Reader) (string, error) {
	type result struct {
		line string
		err  error
	}

	done := make(chan result, 1)
	go func() {
		line, err := bufio.NewReader(r).ReadString('\n')
		done <- result{line: line, err: err}
	}()

	var res result
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("input interrupted: %w", ctx.Err())
	case res = <-done:
	}

	if res.err != nil {
		if !errors.Is(res.err, io.EOF) {
			return "", fmt.Errorf("failed to read input: %w", res.err)
		}
		if res.line == "" {
			return "", ErrNoInput
		}
	}

	return strings.TrimRight(res.line, "\r\n"), nil
}

func validateOutputFormat(format string) error {
	switch format {
	case "text", "json", "yaml", "table":
		return nil
	default:
		return fmt.Errorf("invalid output format %q (expected text, json, yaml or table)", format)
	}
}

func printScores(w io.Writer, scores emotion.Scores, outputFormat string) {
	switch outputFormat {
	case "json":
		style.PrintJSON(w, scores)
	case "yaml":
		style.PrintYAML(w, scores)
	case "table":
		printTable(w, []string{"EMOTION", "SCORE", ""}, scoreRows(scores))
	default:
		fmt.Fprintln(w, scores)
	}
}

// scoreRows orders scores from strongest to weakest, ties by label
func scoreRows(scores emotion.Scores) [][]string {
	labels := make([]string, 0, len(scores))
	for label := range scores {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		a, b := scores[labels[i]], scores[labels[j]]
		if a != b {
			return a > b
		}
		return labels[i] < labels[j]
	})

	rows := make([][]string, 0, len(labels))
	for _, label := range labels {
		score := scores[label]
		rows = append(rows, []string{label, fmt.Sprintf("%.2f", score), style.ScoreBar(score)})
	}
	return rows
}
