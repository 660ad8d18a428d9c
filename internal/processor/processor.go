// Package processor runs one Frigate event through snapshot fetch,
// classification and reconciliation.
package processor

import (
	"context"
	"image"
	"time"

	"github.com/frigate-speciesid/speciesid/internal/classifier"
	"github.com/frigate-speciesid/speciesid/internal/errors"
	"github.com/frigate-speciesid/speciesid/internal/frigate"
	"github.com/frigate-speciesid/speciesid/internal/logger"
	"github.com/frigate-speciesid/speciesid/internal/reconcile"
)

// Snapshot fetch results reported to the Recorder.
const (
	SnapshotOK     = "ok"
	SnapshotStatus = "status"
	SnapshotError  = "error"
)

// Fetcher returns the classifier-ready snapshot for an event.
type Fetcher interface {
	Fetch(ctx context.Context, eventID string) (*image.RGBA, error)
}

// Reconciler stores a classification result.
type Reconciler interface {
	Reconcile(ctx context.Context, ev reconcile.Event, top classifier.Category) (reconcile.Result, error)
}

// Recorder receives per-stage measurements. nil disables recording.
type Recorder interface {
	RecordSnapshot(result string)
	ObserveClassification(d time.Duration, err error)
}

// Config bounds each stage. Zero disables a bound.
type Config struct {
	FetchTimeout    time.Duration
	ClassifyTimeout time.Duration
}

// Processor drives the pipeline for one event at a time.
type Processor struct {
	fetcher    Fetcher
	classifier classifier.Classifier
	reconciler Reconciler
	recorder   Recorder
	cfg        Config
}

// New returns a processor. recorder may be nil.
func New(fetcher Fetcher, c classifier.Classifier, r Reconciler, recorder Recorder, cfg Config) *Processor {
	return &Processor{
		fetcher:    fetcher,
		classifier: c,
		reconciler: r,
		recorder:   recorder,
		cfg:        cfg,
	}
}

// Handle processes an accepted Frigate event. Errors describe why the
// event was skipped; none of them should stop ingestion.
func (p *Processor) Handle(ctx context.Context, details *frigate.EventDetails) error {
	_, err := p.Process(ctx, reconcile.Event{
		ID:        details.ID,
		Camera:    details.Camera,
		StartTime: details.Start(),
	})
	return err
}

// Process fetches, classifies and reconciles ev.
func (p *Processor) Process(ctx context.Context, ev reconcile.Event) (reconcile.Result, error) {
	log := GetLogger().With(logger.String("event_id", ev.ID), logger.String("camera", ev.Camera))
	log.Debug("processing event")

	img, err := p.fetch(ctx, ev.ID)
	if err != nil {
		var statusErr *frigate.StatusError
		if errors.As(err, &statusErr) {
			p.recordSnapshot(SnapshotStatus)
			log.Warn("snapshot not available, skipping event",
				logger.Int("status_code", statusErr.StatusCode))
		} else {
			p.recordSnapshot(SnapshotError)
			log.Warn("snapshot fetch failed, skipping event", logger.Error(err))
		}
		return reconcile.Result{}, err
	}
	p.recordSnapshot(SnapshotOK)

	results, err := p.classify(ctx, img)
	if err != nil {
		log.Warn("classification failed, skipping event", logger.Error(err))
		return reconcile.Result{}, err
	}
	if len(results) == 0 {
		return reconcile.Result{}, errors.Newf("classifier returned no results").
			Component("processor").
			Category(errors.CategoryClassification).
			Context("event_id", ev.ID).
			Build()
	}

	top := results[0]
	log.Debug("top classification",
		logger.Int("index", top.Index),
		logger.String("display_name", top.DisplayName),
		logger.Float64("score", top.Score))

	res, err := p.reconciler.Reconcile(ctx, ev, top)
	if err != nil {
		log.Error("failed to store detection", logger.Error(err))
		return res, err
	}
	return res, nil
}

func (p *Processor) fetch(ctx context.Context, eventID string) (*image.RGBA, error) {
	if p.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.FetchTimeout)
		defer cancel()
	}
	return p.fetcher.Fetch(ctx, eventID)
}

type classifyResult struct {
	categories []classifier.Category
	err        error
}

// classify bounds inference time. The model call itself cannot be
// interrupted, so on timeout it finishes in the background and its result
// is discarded.
func (p *Processor) classify(ctx context.Context, img image.Image) ([]classifier.Category, error) {
	start := time.Now()
	if p.cfg.ClassifyTimeout <= 0 {
		res, err := p.classifier.Classify(ctx, img)
		p.observeClassification(time.Since(start), err)
		return res, err
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.ClassifyTimeout)
	defer cancel()

	done := make(chan classifyResult, 1)
	go func() {
		res, err := p.classifier.Classify(ctx, img)
		done <- classifyResult{res, err}
	}()

	select {
	case r := <-done:
		p.observeClassification(time.Since(start), r.err)
		return r.categories, r.err
	case <-ctx.Done():
		err := errors.New(ctx.Err()).
			Component("processor").
			Category(errors.CategoryTimeout).
			Timing("classify", time.Since(start)).
			Build()
		p.observeClassification(time.Since(start), err)
		return nil, err
	}
}

func (p *Processor) recordSnapshot(result string) {
	if p.recorder != nil {
		p.recorder.RecordSnapshot(result)
	}
}

func (p *Processor) observeClassification(d time.Duration, err error) {
	if p.recorder != nil {
		p.recorder.ObserveClassification(d, err)
	}
}
