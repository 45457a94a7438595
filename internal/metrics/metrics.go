package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/lacquerai/emo/internal/emotion"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// Recorder collects classification metrics for a single run so they can be
// written out in the node exporter textfile format
type Recorder struct {
	registry        *prometheus.Registry
	classifications *prometheus.CounterVec
	duration        *prometheus.HistogramVec
}

// NewRecorder creates a recorder with its own registry
func NewRecorder() *Recorder {
	return NewRecorderWithRegistry(prometheus.NewRegistry())
}

// NewRecorderWithRegistry creates a recorder that registers on the given registry
func NewRecorderWithRegistry(registry *prometheus.Registry) *Recorder {
	r := &Recorder{
		registry: registry,
		classifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "emo_classifications_total",
			Help: "Total number of classifications by classifier and status",
		}, []string{"classifier", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "emo_classification_duration_seconds",
			Help:    "Classification duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"classifier"}),
	}

	registry.MustRegister(r.classifications, r.duration)

	return r
}

// Observe records the outcome of one classification
func (r *Recorder) Observe(classifier string, d time.Duration, err error) {
	status := statusSuccess
	if err != nil {
		status = statusError
	}

	r.classifications.WithLabelValues(classifier, status).Inc()
	r.duration.WithLabelValues(classifier).Observe(d.Seconds())
}

// WriteTextfile writes the collected metrics to path
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}

// Registry returns the underlying registry
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

type instrumented struct {
	emotion.Classifier
	recorder *Recorder
}

// Instrument wraps a classifier so every call is recorded. Scores and errors
// are returned untouched.
func Instrument(classifier emotion.Classifier, recorder *Recorder) emotion.Classifier {
	return &instrumented{Classifier: classifier, recorder: recorder}
}

func (i *instrumented) Classify(ctx context.Context, text string) (emotion.Scores, error) {
	start := time.Now()
	scores, err := i.Classifier.Classify(ctx, text)
	i.recorder.Observe(i.Name(), time.Since(start), err)
	return scores, err
}

// Labels forwards to the wrapped classifier when it has a fixed vocabulary
func (i *instrumented) Labels() []string {
	if labeler, ok := i.Classifier.(emotion.Labeler); ok {
		return labeler.Labels()
	}
	return nil
}
