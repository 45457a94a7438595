package lexicon

import (
	"context"
	_ "embed"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/lacquerai/emo/internal/emotion"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Name is the registry name of the lexicon classifier
const Name = "lexicon"

//go:embed lexicon.yaml
var defaultLexicon []byte

// Document is the on-disk shape of a lexicon
type Document struct {
	Labels       []string            `yaml:"labels"`
	Emotions     map[string][]string `yaml:"emotions"`
	Emoji        map[string]string   `yaml:"emoji"`
	Contractions map[string]string   `yaml:"contractions"`
	Stopwords    []string            `yaml:"stopwords"`
}

// Classifier scores text by counting lexicon words per emotion and
// normalizing the counts so they sum to one.
type Classifier struct {
	labels       []string
	weights      map[string]map[string]float64
	contractions map[string][]string
	stopwords    map[string]struct{}
	emoji        *strings.Replacer
}

// New creates a classifier from the embedded lexicon
func New() (*Classifier, error) {
	return Parse(defaultLexicon)
}

// NewFromOptions adapts New to the registry factory signature
func NewFromOptions(opts emotion.Options) (emotion.Classifier, error) {
	return New()
}

// Parse creates a classifier from a YAML lexicon document
func Parse(data []byte) (*Classifier, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse lexicon: %w", err)
	}

	if len(doc.Labels) == 0 {
		return nil, fmt.Errorf("lexicon defines no labels")
	}

	known := make(map[string]bool, len(doc.Labels))
	for _, label := range doc.Labels {
		known[label] = true
	}

	c := &Classifier{
		labels:       doc.Labels,
		weights:      make(map[string]map[string]float64),
		contractions: make(map[string][]string, len(doc.Contractions)),
		stopwords:    make(map[string]struct{}, len(doc.Stopwords)),
	}

	for label, words := range doc.Emotions {
		if !known[label] {
			return nil, fmt.Errorf("lexicon lists words for undeclared label %q", label)
		}
		for _, word := range words {
			word = strings.ToLower(strings.TrimSpace(word))
			if word == "" {
				continue
			}
			if c.weights[word] == nil {
				c.weights[word] = make(map[string]float64)
			}
			c.weights[word][label]++
		}
	}

	for from, to := range doc.Contractions {
		c.contractions[strings.ToLower(from)] = strings.Fields(strings.ToLower(to))
	}

	for _, word := range doc.Stopwords {
		c.stopwords[strings.ToLower(word)] = struct{}{}
	}

	c.emoji = newEmojiReplacer(doc.Emoji)

	log.Debug().
		Int("labels", len(c.labels)).
		Int("words", len(c.weights)).
		Int("emoji", len(doc.Emoji)).
		Msg("Lexicon loaded")

	return c, nil
}

// newEmojiReplacer swaps every emoji for its word. Longer sequences are
// listed first so "❤️" wins over "❤".
func newEmojiReplacer(emoji map[string]string) *strings.Replacer {
	keys := make([]string, 0, len(emoji))
	for k := range emoji {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})

	pairs := make([]string, 0, len(keys)*2)
	for _, k := range keys {
		pairs = append(pairs, k, " "+emoji[k]+" ")
	}
	return strings.NewReplacer(pairs...)
}

// Name returns the registry name
func (c *Classifier) Name() string {
	return Name
}

// Labels returns the label vocabulary in declaration order
func (c *Classifier) Labels() []string {
	labels := make([]string, len(c.labels))
	copy(labels, c.labels)
	return labels
}

// Classify scores text. Text without any lexicon word scores zero on every
// label.
func (c *Classifier) Classify(ctx context.Context, text string) (emotion.Scores, error) {
	if !utf8.ValidString(text) {
		return nil, emotion.NewClassifierError(Name, emotion.ErrInvalidEncoding)
	}
	if err := ctx.Err(); err != nil {
		return nil, emotion.NewClassifierError(Name, err)
	}

	scores := make(emotion.Scores, len(c.labels))
	for _, label := range c.labels {
		scores[label] = 0
	}

	var matched int
	for _, token := range c.Tokens(text) {
		weights, ok := c.lookup(token)
		if !ok {
			continue
		}
		matched++
		for label, weight := range weights {
			scores[label] += weight
		}
	}

	var total float64
	for _, v := range scores {
		total += v
	}

	log.Debug().
		Int("matched_words", matched).
		Float64("total_weight", total).
		Msg("Lexicon classification completed")

	if total == 0 {
		return scores, nil
	}

	for label, v := range scores {
		scores[label] = math.Round(v/total*100) / 100
	}

	return scores, nil
}

// Tokens returns the cleaned, stopword-free tokens of text
func (c *Classifier) Tokens(text string) []string {
	text = c.emoji.Replace(text)
	text = strings.ToLower(text)
	text = strings.NewReplacer("’", "'", "‘", "'").Replace(text)

	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	})

	tokens := make([]string, 0, len(fields))
	for _, field := range fields {
		field = strings.Trim(field, "'")
		if field == "" {
			continue
		}

		words, ok := c.contractions[field]
		if !ok {
			field = strings.TrimSuffix(field, "'s")
			words = strings.Split(field, "'")
		}

		for _, word := range words {
			if word == "" {
				continue
			}
			if _, stop := c.stopwords[word]; stop {
				continue
			}
			tokens = append(tokens, word)
		}
	}

	return tokens
}

// lookup finds the weights for a token or one of its lemma candidates
func (c *Classifier) lookup(token string) (map[string]float64, bool) {
	for _, candidate := range lemmas(token) {
		if weights, ok := c.weights[candidate]; ok {
			return weights, true
		}
	}
	return nil, false
}

// lemmas lists the token followed by suffix-stripped forms to try
func lemmas(token string) []string {
	candidates := []string{token}
	add := func(stem, suffix string) {
		if len(stem) >= 2 {
			candidates = append(candidates, stem+suffix)
		}
	}

	switch {
	case strings.HasSuffix(token, "iness"):
		add(strings.TrimSuffix(token, "iness"), "y")
	case strings.HasSuffix(token, "ness"):
		add(strings.TrimSuffix(token, "ness"), "")
	case strings.HasSuffix(token, "ies"):
		add(strings.TrimSuffix(token, "ies"), "y")
	case strings.HasSuffix(token, "ily"):
		add(strings.TrimSuffix(token, "ily"), "y")
	case strings.HasSuffix(token, "ly"):
		add(strings.TrimSuffix(token, "ly"), "")
	case strings.HasSuffix(token, "ing"):
		stem := strings.TrimSuffix(token, "ing")
		add(stem, "")
		add(stem, "e")
		add(undouble(stem), "")
	case strings.HasSuffix(token, "ed"):
		stem := strings.TrimSuffix(token, "ed")
		add(stem, "")
		add(stem, "e")
		add(undouble(stem), "")
		if strings.HasSuffix(stem, "i") {
			add(strings.TrimSuffix(stem, "i"), "y")
		}
	case strings.HasSuffix(token, "es"):
		add(strings.TrimSuffix(token, "es"), "")
		add(strings.TrimSuffix(token, "s"), "")
	case strings.HasSuffix(token, "s") && !strings.HasSuffix(token, "ss"):
		add(strings.TrimSuffix(token, "s"), "")
	}

	return candidates
}

// undouble drops a doubled final consonant ("hopp" -> "hop")
func undouble(stem string) string {
	n := len(stem)
	if n >= 3 && stem[n-1] == stem[n-2] && !strings.ContainsRune("aeiou", rune(stem[n-1])) {
		return stem[:n-1]
	}
	return stem
}
