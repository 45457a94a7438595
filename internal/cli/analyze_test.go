package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gkampitakis/go-snaps/snaps"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/lacquerai/emo/internal/emotion"
)

type fakeClassifier struct {
	scores emotion.Scores
	err    error
	texts  []string
}

func (f *fakeClassifier) Name() string {
	return "fake"
}

func (f *fakeClassifier) Classify(ctx context.Context, text string) (emotion.Scores, error) {
	f.texts = append(f.texts, text)
	return f.scores, f.err
}

// withFakeClassifier swaps the registry for one holding only the fake
func withFakeClassifier(t *testing.T, fake *fakeClassifier, remote bool) {
	t.Helper()

	original := registry
	registry = emotion.NewRegistry()
	require.NoError(t, registry.Register(emotion.Entry{
		Name:        "fake",
		Description: "test classifier",
		Remote:      remote,
		Factory: func(emotion.Options) (emotion.Classifier, error) {
			return fake, nil
		},
	}))
	t.Cleanup(func() { registry = original })
}

func TestRootCommand_PromptsForText(t *testing.T) {
	stdout, stderr, err := executeCommand(t, "I am so happy today!\n")
	require.NoError(t, err)

	assert.Equal(t, "Enter the text: map[Angry:0 Fear:0 Happy:1 Sad:0 Surprise:0]\n", stdout)
	assert.Empty(t, stderr)
	snaps.MatchSnapshot(t, strings.TrimSpace(stdout))
}

func TestRootCommand_InputWithoutNewline(t *testing.T) {
	stdout, _, err := executeCommand(t, "so happy")
	require.NoError(t, err)
	assert.Equal(t, "Enter the text: map[Angry:0 Fear:0 Happy:1 Sad:0 Surprise:0]\n", stdout)
}

func TestRootCommand_NoInput(t *testing.T) {
	stdout, _, err := executeCommand(t, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoInput)
	assert.Equal(t, prompt, stdout)
}

func TestRootCommand_EmptyLine(t *testing.T) {
	fake := &fakeClassifier{scores: emotion.Scores{"Happy": 0}}
	withFakeClassifier(t, fake, false)

	stdout, _, err := executeCommand(t, "\n", "--classifier", "fake")
	require.NoError(t, err)

	assert.Equal(t, []string{""}, fake.texts)
	assert.Equal(t, "Enter the text: map[Happy:0]\n", stdout)
}

func TestRootCommand_ReadsOnlyFirstLine(t *testing.T) {
	fake := &fakeClassifier{scores: emotion.Scores{"Happy": 1}}
	withFakeClassifier(t, fake, false)

	_, _, err := executeCommand(t, "first line\r\nsecond line\n", "-c", "fake")
	require.NoError(t, err)
	assert.Equal(t, []string{"first line"}, fake.texts)
}

func TestAnalyzeCommand_Args(t *testing.T) {
	stdout, _, err := executeCommand(t, "", "analyze", "I", "am", "so", "happy", "today!")
	require.NoError(t, err)
	assert.Equal(t, "map[Angry:0 Fear:0 Happy:1 Sad:0 Surprise:0]\n", stdout)
}

func TestAnalyzeCommand_ClassifierErrorPropagates(t *testing.T) {
	classifierErr := emotion.NewClassifierError("fake", errors.New("unable to process"))
	fake := &fakeClassifier{err: classifierErr}
	withFakeClassifier(t, fake, false)

	stdout, _, err := executeCommand(t, "", "analyze", "-c", "fake", "anything")
	require.Error(t, err)

	assert.Same(t, classifierErr, err)
	assert.Empty(t, stdout)
}

func TestAnalyzeCommand_InvalidEncoding(t *testing.T) {
	stdout, _, err := executeCommand(t, "", "analyze", "happy \xff")
	require.Error(t, err)

	assert.ErrorIs(t, err, emotion.ErrInvalidEncoding)
	assert.Empty(t, stdout)
}

func TestAnalyzeCommand_Timeout(t *testing.T) {
	_, _, err := executeCommand(t, "", "analyze", "--timeout", "1ns", "happy")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAnalyzeCommand_UnknownClassifier(t *testing.T) {
	_, _, err := executeCommand(t, "happy\n", "-c", "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown classifier "nope"`)
	assert.Contains(t, err.Error(), "lexicon")
}

func TestAnalyzeCommand_InvalidOutput(t *testing.T) {
	_, _, err := executeCommand(t, "", "analyze", "--output", "xml", "happy")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid output format "xml"`)
}

func TestAnalyzeCommand_OutputFormats(t *testing.T) {
	expected := map[string]float64{"Happy": 1, "Angry": 0, "Surprise": 0, "Sad": 0, "Fear": 0}

	t.Run("json", func(t *testing.T) {
		stdout, _, err := executeCommand(t, "", "analyze", "--output", "json", "so happy")
		require.NoError(t, err)

		var decoded map[string]float64
		require.NoError(t, json.Unmarshal([]byte(stdout), &decoded))
		assert.Equal(t, expected, decoded)
	})

	t.Run("yaml", func(t *testing.T) {
		stdout, _, err := executeCommand(t, "", "analyze", "--output", "yaml", "so happy")
		require.NoError(t, err)

		var decoded map[string]float64
		require.NoError(t, yaml.Unmarshal([]byte(stdout), &decoded))
		assert.Equal(t, expected, decoded)
	})

	t.Run("table", func(t *testing.T) {
		stdout, _, err := executeCommand(t, "", "analyze", "--output", "table", "so happy")
		require.NoError(t, err)

		lines := strings.Split(strings.TrimSpace(stdout), "\n")
		require.Len(t, lines, 7)
		assert.True(t, strings.HasPrefix(lines[0], "EMOTION"))
		assert.True(t, strings.HasPrefix(lines[2], "Happy"))
		assert.Contains(t, lines[2], "1.00")
		assert.True(t, strings.HasPrefix(lines[3], "Angry"))
		assert.True(t, strings.HasPrefix(lines[6], "Surprise"))
	})

	t.Run("prompt_goes_to_stderr", func(t *testing.T) {
		stdout, stderr, err := executeCommand(t, "so happy\n", "--output", "json")
		require.NoError(t, err)

		assert.Equal(t, prompt, stderr)
		var decoded map[string]float64
		require.NoError(t, json.Unmarshal([]byte(stdout), &decoded))
		assert.Equal(t, expected, decoded)
	})
}

func TestAnalyzeCommand_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "input.txt")
	require.NoError(t, os.WriteFile(path, []byte("I am scared\nand worried\n"), 0o644))

	fake := &fakeClassifier{scores: emotion.Scores{"Fear": 1}}
	withFakeClassifier(t, fake, false)

	stdout, _, err := executeCommand(t, "", "analyze", "-c", "fake", "--file", path)
	require.NoError(t, err)

	assert.Equal(t, []string{"I am scared\nand worried\n"}, fake.texts)
	assert.Equal(t, "map[Fear:1]\n", stdout)
}

func TestAnalyzeCommand_FileFromStdin(t *testing.T) {
	fake := &fakeClassifier{scores: emotion.Scores{"Fear": 1}}
	withFakeClassifier(t, fake, false)

	stdout, _, err := executeCommand(t, "line one\nline two", "analyze", "-c", "fake", "-f", "-")
	require.NoError(t, err)

	assert.Equal(t, []string{"line one\nline two"}, fake.texts)
	assert.NotContains(t, stdout, prompt)
}

func TestAnalyzeCommand_MissingFile(t *testing.T) {
	_, _, err := executeCommand(t, "", "analyze", "--file", filepath.Join(t.TempDir(), "missing.txt"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read")
}

func TestAnalyzeCommand_MetricsTextfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "emo.prom")

	_, _, err := executeCommand(t, "", "analyze", "--metrics-textfile", path, "so happy")
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `emo_classifications_total{classifier="lexicon",status="success"} 1`)
	assert.Contains(t, string(data), "emo_classification_duration_seconds")
}

func TestAnalyzeCommand_MetricsTextfileOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "emo.prom")

	_, _, err := executeCommand(t, "", "analyze", "--metrics-textfile", path, "\xff")
	require.Error(t, err)
	assert.ErrorIs(t, err, emotion.ErrInvalidEncoding)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `emo_classifications_total{classifier="lexicon",status="error"} 1`)
}

func TestAnalyzeCommand_RemoteSpinner(t *testing.T) {
	t.Setenv("EMO_TEST", "true")

	fake := &fakeClassifier{scores: emotion.Scores{"Happy": 1}}
	withFakeClassifier(t, fake, true)

	t.Run("text", func(t *testing.T) {
		stdout, stderr, err := executeCommand(t, "", "analyze", "-c", "fake", "hello")
		require.NoError(t, err)

		assert.Contains(t, stderr, "[SPINNER START]")
		assert.Contains(t, stderr, "[SPINNER STOP]")
		assert.Contains(t, stderr, "Classified with fake")
		assert.Equal(t, "map[Happy:1]\n", stdout)
	})

	t.Run("quiet", func(t *testing.T) {
		_, stderr, err := executeCommand(t, "", "analyze", "-q", "-c", "fake", "hello")
		require.NoError(t, err)
		assert.NotContains(t, stderr, "[SPINNER START]")
	})

	t.Run("json", func(t *testing.T) {
		_, stderr, err := executeCommand(t, "", "analyze", "--output", "json", "-c", "fake", "hello")
		require.NoError(t, err)
		assert.NotContains(t, stderr, "[SPINNER START]")
	})
}

func TestAnalyzeCommand_Verbose(t *testing.T) {
	_, stderr, err := executeCommand(t, "", "analyze", "--verbose", "so happy")
	require.NoError(t, err)
	assert.Contains(t, stderr, "Classified with lexicon")
}

func TestAnalyzeCommand_OpenAI(t *testing.T) {
	t.Setenv("EMO_TEST", "true")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := json.Marshal(map[string]interface{}{
			"id":      "chatcmpl-test",
			"object":  "chat.completion",
			"created": 1700000000,
			"model":   "gpt-4o-mini",
			"choices": []map[string]interface{}{
				{
					"index":         0,
					"finish_reason": "stop",
					"message": map[string]interface{}{
						"role":    "assistant",
						"content": `{"Happy": 0.9, "Angry": 0, "Surprise": 0.1, "Sad": 0, "Fear": 0}`,
					},
				},
			},
		})
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}))
	t.Cleanup(server.Close)

	t.Setenv("EMO_API_KEY", "sk-test")
	t.Setenv("EMO_BASE_URL", server.URL)

	stdout, _, err := executeCommand(t, "", "analyze", "-c", "openai", "--output", "json", "what a lovely surprise")
	require.NoError(t, err)

	var decoded map[string]float64
	require.NoError(t, json.Unmarshal([]byte(stdout), &decoded))
	assert.Equal(t, map[string]float64{"Happy": 0.9, "Angry": 0, "Surprise": 0.1, "Sad": 0, "Fear": 0}, decoded)
}

func TestAnalyzeCommand_OpenAIRequiresKey(t *testing.T) {
	t.Setenv("EMO_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("OPENAI_KEY", "")
	t.Setenv("OPENAI_TOKEN", "")

	_, _, err := executeCommand(t, "", "analyze", "-c", "openai", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OpenAI API key is required")
}

func TestReadLine_StopsOnCancel(t *testing.T) {
	// a pipe with no writer activity blocks the read forever
	r, w := io.Pipe()
	t.Cleanup(func() { _ = w.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := readLine(ctx, r)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRootCommand_InterruptedAtPrompt(t *testing.T) {
	fake := &fakeClassifier{scores: emotion.Scores{"Happy": 1}}
	withFakeClassifier(t, fake, false)

	r, w := io.Pipe()
	t.Cleanup(func() { _ = w.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cmd := newRootCmd()
	var outBuf bytes.Buffer
	cmd.SetIn(r)
	cmd.SetOut(&outBuf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"-c", "fake"})

	err := cmd.ExecuteContext(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, fake.texts)
	assert.Equal(t, prompt, outBuf.String())
}

func TestAnalyzeCommand_MaxRetriesZero(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"server error","type":"server_error"}}`))
	}))
	t.Cleanup(server.Close)

	t.Setenv("EMO_API_KEY", "sk-test")
	t.Setenv("EMO_BASE_URL", server.URL)
	t.Setenv("EMO_MAX_RETRIES", "0")

	_, _, err := executeCommand(t, "", "analyze", "-q", "-c", "openai", "hello")
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestMaxRetries(t *testing.T) {
	t.Setenv("EMO_MAX_RETRIES", "")
	initConfig()
	assert.Nil(t, maxRetries())

	t.Setenv("EMO_MAX_RETRIES", "0")
	n := maxRetries()
	require.NotNil(t, n)
	assert.Equal(t, 0, *n)
}

func TestReadLine(t *testing.T) {
	tests := []struct {
		input    string
		expected string
		err      error
	}{
		{"hello\n", "hello", nil},
		{"hello\r\n", "hello", nil},
		{"hello", "hello", nil},
		{"\n", "", nil},
		{"", "", ErrNoInput},
	}

	for _, tt := range tests {
		line, err := readLine(context.Background(), strings.NewReader(tt.input))
		if tt.err != nil {
			assert.ErrorIs(t, err, tt.err)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.expected, line)
	}
}

func TestScoreRows(t *testing.T) {
	rows := scoreRows(emotion.Scores{"Sad": 0.33, "Happy": 0.67, "Fear": 0, "Angry": 0})

	require.Len(t, rows, 4)
	assert.Equal(t, []string{"Happy", "Sad", "Angry", "Fear"}, []string{rows[0][0], rows[1][0], rows[2][0], rows[3][0]})
	assert.Equal(t, "0.67", rows[0][1])
}
