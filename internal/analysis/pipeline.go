// Package analysis assembles the species identification service from its
// parts and runs it until shutdown.
package analysis

import (
	"net/http"

	"github.com/frigate-speciesid/speciesid/internal/classifier"
	"github.com/frigate-speciesid/speciesid/internal/conf"
	"github.com/frigate-speciesid/speciesid/internal/datastore"
	"github.com/frigate-speciesid/speciesid/internal/errors"
	"github.com/frigate-speciesid/speciesid/internal/frigate"
	"github.com/frigate-speciesid/speciesid/internal/logger"
	"github.com/frigate-speciesid/speciesid/internal/names"
	"github.com/frigate-speciesid/speciesid/internal/observability"
	"github.com/frigate-speciesid/speciesid/internal/privacy"
	"github.com/frigate-speciesid/speciesid/internal/processor"
	"github.com/frigate-speciesid/speciesid/internal/reconcile"
	"github.com/frigate-speciesid/speciesid/internal/snapshot"
)

// Pipeline owns every resource the event handler needs.
type Pipeline struct {
	Store      datastore.Interface
	Names      *names.Resolver // nil when no name database is configured
	Frigate    *frigate.Client
	Classifier classifier.Classifier
	Processor  *processor.Processor
}

// Option customizes pipeline construction.
type Option func(*pipelineOptions)

type pipelineOptions struct {
	classifier classifier.Classifier
	transport  http.RoundTripper
}

// WithClassifier uses c instead of loading the configured TFLite model.
func WithClassifier(c classifier.Classifier) Option {
	return func(o *pipelineOptions) { o.classifier = c }
}

// WithTransport sends Frigate requests through rt.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *pipelineOptions) { o.transport = rt }
}

// NewPipeline opens the stores, loads the model and wires the processor.
// metrics may be nil. On error everything opened so far is closed.
func NewPipeline(settings *conf.Settings, metrics *observability.Metrics, opts ...Option) (*Pipeline, error) {
	var o pipelineOptions
	for _, opt := range opts {
		opt(&o)
	}

	p := &Pipeline{}
	if err := p.build(settings, metrics, &o); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

func (p *Pipeline) build(settings *conf.Settings, metrics *observability.Metrics, o *pipelineOptions) error {
	store := datastore.New(settings)
	if err := store.Open(); err != nil {
		return err
	}
	p.Store = store

	if settings.Classification.NameDatabase != "" {
		resolver, err := names.Open(settings.Classification.NameDatabase)
		if err != nil {
			return err
		}
		p.Names = resolver
	}

	client, err := frigate.NewClient(frigate.Config{
		BaseURL:   settings.Frigate.URL,
		Timeout:   settings.Frigate.Timeout,
		RateLimit: settings.Frigate.RateLimit,
		Transport: o.transport,
	})
	if err != nil {
		return err
	}
	p.Frigate = client
	if metrics != nil {
		metrics.HTTP.Instrument(client)
	}

	if o.classifier != nil {
		p.Classifier = o.classifier
	} else {
		model, err := LoadClassifier(settings, 1)
		if err != nil {
			return err
		}
		p.Classifier = model
	}

	// interfaces stay nil rather than holding typed nil pointers
	var resolver reconcile.NameResolver
	if p.Names != nil {
		resolver = p.Names
	}
	var reconcileRec reconcile.Recorder
	var processRec processor.Recorder
	if metrics != nil {
		reconcileRec = metrics.Pipeline
		processRec = metrics.Pipeline
	}

	reconciler := reconcile.New(p.Store, p.Frigate, resolver, reconcileRec, reconcile.Config{
		Threshold:       settings.Classification.Threshold,
		SentinelIndex:   settings.Classification.SentinelIndex,
		LabelLength:     conf.SubLabelMaxLength,
		CallbackTimeout: settings.Frigate.Timeout,
	})

	fetcher := snapshot.NewFetcher(p.Frigate, p.Classifier.InputSize())
	p.Processor = processor.New(fetcher, p.Classifier, reconciler, processRec, processor.Config{
		FetchTimeout:    settings.Frigate.Timeout,
		ClassifyTimeout: settings.Classification.Timeout,
	})

	GetLogger().Info("pipeline ready",
		logger.String("frigate_url", privacy.RedactURL(settings.Frigate.URL)),
		logger.String("database", settings.Database.Type),
		logger.Bool("names", p.Names != nil),
		logger.Int("input_size", p.Classifier.InputSize()),
		logger.Float64("threshold", settings.Classification.Threshold))
	return nil
}

// LoadClassifier loads the configured TFLite model returning topK results.
func LoadClassifier(settings *conf.Settings, topK int) (*classifier.TFLite, error) {
	return classifier.NewTFLite(classifier.Config{
		ModelPath:  settings.Classification.Model,
		LabelsPath: settings.Classification.Labels,
		Threads:    settings.Classification.Threads,
		TopK:       topK,
	})
}

// Close releases the pipeline resources. Safe on a partially built pipeline.
func (p *Pipeline) Close() {
	log := GetLogger()
	if p.Classifier != nil {
		if err := p.Classifier.Close(); err != nil {
			log.Warn("failed to close classifier", logger.Error(err))
		}
	}
	if p.Frigate != nil {
		p.Frigate.Close()
	}
	if p.Names != nil {
		if err := p.Names.Close(); err != nil {
			log.Warn("failed to close name database", logger.Error(err))
		}
	}
	if p.Store != nil {
		if err := p.Store.Close(); err != nil {
			log.Error("failed to close detection store", logger.Error(err))
		}
	}
}

// openReadOnly opens the stores the reporting API reads.
func openReadOnly(settings *conf.Settings) (datastore.Interface, *names.Resolver, error) {
	store := datastore.New(settings)
	if err := store.Open(); err != nil {
		return nil, nil, err
	}
	if settings.Classification.NameDatabase == "" {
		return store, nil, nil
	}
	resolver, err := names.Open(settings.Classification.NameDatabase)
	if err != nil {
		if closeErr := store.Close(); closeErr != nil {
			err = errors.Join(err, closeErr)
		}
		return nil, nil, err
	}
	return store, resolver, nil
}
