package emotion

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrInvalidEncoding is returned when the input text is not valid UTF-8
	ErrInvalidEncoding = errors.New("text is not valid UTF-8")

	// ErrMalformedReply is returned when a classifier backend answers with
	// something that is not a label to number mapping
	ErrMalformedReply = errors.New("malformed classifier reply")
)

// Scores maps an emotion label to the score the classifier assigned it.
// The label vocabulary and the scale of the values belong to the classifier.
type Scores map[string]float64

// Classifier is the emotion-classification capability a Query delegates to.
type Classifier interface {
	// Name returns the registered name of the classifier
	Name() string

	// Classify scores the given text
	Classify(ctx context.Context, text string) (Scores, error)
}

// Labeler is implemented by classifiers with a fixed, known label vocabulary.
type Labeler interface {
	Labels() []string
}

// ClassifierError wraps any failure raised by a classifier.
type ClassifierError struct {
	Classifier string
	Err        error
}

// NewClassifierError wraps err as a failure of the named classifier
func NewClassifierError(classifier string, err error) *ClassifierError {
	return &ClassifierError{Classifier: classifier, Err: err}
}

func (e *ClassifierError) Error() string {
	return fmt.Sprintf("%s classifier: %v", e.Classifier, e.Err)
}

func (e *ClassifierError) Unwrap() error {
	return e.Err
}

// Query hides a Classifier behind a single Analyze operation.
type Query struct {
	classifier Classifier
}

// NewQuery creates a query backed by the given classifier
func NewQuery(classifier Classifier) *Query {
	return &Query{classifier: classifier}
}

// Analyze returns the classifier's scores for text exactly as the classifier
// produced them. Failures are returned unchanged.
func (q *Query) Analyze(ctx context.Context, text string) (Scores, error) {
	return q.classifier.Classify(ctx, text)
}

// Classifier returns the classifier backing the query
func (q *Query) Classifier() Classifier {
	return q.classifier
}
