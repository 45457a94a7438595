package provider

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/lacquerai/emo/internal/emotion"
	"github.com/rs/zerolog/log"
	"github.com/stoewer/go-strcase"
)

// DefaultLabels is the vocabulary asked of model-backed classifiers when
// none is configured
var DefaultLabels = []string{"Happy", "Angry", "Surprise", "Sad", "Fear"}

// Labels returns the configured labels or DefaultLabels
func Labels(opts emotion.Options) []string {
	if len(opts.Labels) == 0 {
		return append([]string(nil), DefaultLabels...)
	}
	return append([]string(nil), opts.Labels...)
}

// ReplySchema describes the JSON object a model must answer with
func ReplySchema(labels []string) *jsonschema.Schema {
	properties := jsonschema.NewProperties()
	for _, label := range labels {
		properties.Set(label, &jsonschema.Schema{
			Type:        "number",
			Minimum:     json.Number("0"),
			Maximum:     json.Number("1"),
			Description: fmt.Sprintf("Intensity of %s expressed by the text", label),
		})
	}

	return &jsonschema.Schema{
		Version:              jsonschema.Version,
		Title:                "emotion_scores",
		Description:          "Emotion label to score mapping",
		Type:                 "object",
		Properties:           properties,
		Required:             labels,
		AdditionalProperties: jsonschema.FalseSchema,
	}
}

// CheckLabels rejects labels a reply could not tell apart, such as "Happy"
// and "happy", since reply keys are matched ignoring case and separators
func CheckLabels(labels []string) error {
	seen := make(map[string]string, len(labels))
	for _, label := range labels {
		key := strcase.SnakeCase(label)
		if key == "" {
			return fmt.Errorf("invalid label %q", label)
		}
		if other, ok := seen[key]; ok {
			return fmt.Errorf("labels %q and %q cannot be told apart", other, label)
		}
		seen[key] = label
	}
	return nil
}

// SystemPrompt builds the instruction sent with every classification
func SystemPrompt(labels []string) (string, error) {
	if err := CheckLabels(labels); err != nil {
		return "", err
	}

	schema, err := json.MarshalIndent(ReplySchema(labels), "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal reply schema: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("You are an emotion classifier. Rate how strongly the user's text expresses each of these emotions: ")
	sb.WriteString(strings.Join(labels, ", "))
	sb.WriteString(".\n")
	sb.WriteString("Answer with a single JSON object and nothing else. Use exactly these keys, each mapped to a number between 0 and 1. ")
	sb.WriteString("Text that expresses no emotion scores 0 on every key.\n")
	sb.WriteString("The object must validate against this JSON schema:\n")
	sb.Write(schema)

	return sb.String(), nil
}

// ParseScores decodes a model reply into scores for labels. Keys are matched
// to labels ignoring case and separators, unknown keys are dropped and labels
// the model left out score 0. A reply naming the same label under two keys is
// malformed.
func ParseScores(reply string, labels []string) (emotion.Scores, error) {
	if err := CheckLabels(labels); err != nil {
		return nil, err
	}

	body := stripCodeFence(reply)

	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", emotion.ErrMalformedReply, err)
	}

	canonical := make(map[string]string, len(labels))
	for _, label := range labels {
		canonical[strcase.SnakeCase(label)] = label
	}

	scores := make(emotion.Scores, len(labels))
	for _, label := range labels {
		scores[label] = 0
	}

	keys := make(map[string][]string, len(labels))
	for key := range raw {
		label, ok := canonical[strcase.SnakeCase(key)]
		if !ok {
			log.Debug().Str("key", key).Msg("Ignoring unknown label in classifier reply")
			continue
		}
		keys[label] = append(keys[label], key)
	}

	for _, label := range labels {
		names := keys[label]
		if len(names) == 0 {
			continue
		}
		if len(names) > 1 {
			sort.Strings(names)
			return nil, fmt.Errorf("%w: keys %s all name label %q", emotion.ErrMalformedReply, strings.Join(names, ", "), label)
		}

		score, ok := raw[names[0]].(float64)
		if !ok {
			return nil, fmt.Errorf("%w: value for %q is not a number", emotion.ErrMalformedReply, names[0])
		}
		scores[label] = score
	}

	return scores, nil
}

// stripCodeFence removes a surrounding markdown code fence if present
func stripCodeFence(reply string) string {
	body := strings.TrimSpace(reply)
	if !strings.HasPrefix(body, "```") {
		return body
	}

	body = strings.TrimPrefix(body, "```")
	if i := strings.Index(body, "\n"); i >= 0 {
		body = body[i+1:]
	}
	body = strings.TrimSuffix(strings.TrimSpace(body), "```")

	return strings.TrimSpace(body)
}

// APIKeyFromEnv returns the first non-empty value among the given variables
func APIKeyFromEnv(envVars ...string) string {
	for _, envVar := range envVars {
		if key := strings.TrimSpace(os.Getenv(envVar)); key != "" {
			return key
		}
	}
	return ""
}
