// Package reconcile decides whether a classification result becomes, or
// replaces, the stored detection for a Frigate event, and labels the event
// in Frigate when it does.
package reconcile

import (
	"context"
	"time"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/frigate-speciesid/speciesid/internal/classifier"
	"github.com/frigate-speciesid/speciesid/internal/datastore"
	"github.com/frigate-speciesid/speciesid/internal/errors"
	"github.com/frigate-speciesid/speciesid/internal/logger"
)

// Outcome of a reconciliation.
type Outcome string

const (
	OutcomeRejectedSentinel  Outcome = "rejected_sentinel"
	OutcomeRejectedThreshold Outcome = "rejected_threshold"
	OutcomeInserted          Outcome = "inserted"
	OutcomeUpdated           Outcome = "updated"
	OutcomeUnchanged         Outcome = "unchanged"
	OutcomeError             Outcome = "error"
)

// DefaultLabelLength is the sub_label limit Frigate accepts.
const DefaultLabelLength = 20

// Store is the store operation the reconciler depends on.
type Store interface {
	UpsertIfHigher(ctx context.Context, eventID string, c datastore.Candidate) (datastore.UpsertResult, error)
}

// Labeler writes a sub label back to the originating event.
type Labeler interface {
	SetSubLabel(ctx context.Context, eventID, label string) error
}

// NameResolver maps a display name to the label shown in Frigate.
type NameResolver interface {
	Label(ctx context.Context, scientificName string) string
}

// Recorder receives outcome counts. nil disables recording.
type Recorder interface {
	RecordReconcile(outcome string)
	RecordSubLabel(success bool)
}

// Config holds the acceptance rule.
type Config struct {
	Threshold       float64       // scores must be strictly above
	SentinelIndex   int           // background class index, never stored
	LabelLength     int           // sub_label rune limit
	CallbackTimeout time.Duration // bound on the sub_label request
}

// Event identifies the camera event a result belongs to.
type Event struct {
	ID        string
	Camera    string
	StartTime time.Time
}

// Result reports what Reconcile did.
type Result struct {
	Outcome   Outcome
	Detection *datastore.Detection // row after the write, nil when rejected
	Label     string               // sub_label sent, empty when none
	LabelErr  error                // sub_label failure, never affects the write
}

// Reconciler applies the acceptance rule and the store's upsert.
type Reconciler struct {
	store    Store
	labeler  Labeler
	names    NameResolver
	recorder Recorder
	cfg      Config
}

// New returns a reconciler. labeler, names and recorder may be nil.
func New(store Store, labeler Labeler, names NameResolver, recorder Recorder, cfg Config) *Reconciler {
	if cfg.LabelLength <= 0 {
		cfg.LabelLength = DefaultLabelLength
	}
	return &Reconciler{
		store:    store,
		labeler:  labeler,
		names:    names,
		recorder: recorder,
		cfg:      cfg,
	}
}

// Accept reports whether a top result may be stored at all.
func (r *Reconciler) Accept(top classifier.Category) (bool, Outcome) {
	if top.Index == r.cfg.SentinelIndex {
		return false, OutcomeRejectedSentinel
	}
	if top.Score <= r.cfg.Threshold {
		return false, OutcomeRejectedThreshold
	}
	return true, ""
}

// Reconcile stores top for ev when it qualifies and labels the event in
// Frigate after the write commits. Only store failures are returned.
func (r *Reconciler) Reconcile(ctx context.Context, ev Event, top classifier.Category) (Result, error) {
	log := GetLogger().With(
		logger.String("event_id", ev.ID),
		logger.Int("index", top.Index),
		logger.String("display_name", top.DisplayName),
		logger.Float64("score", top.Score))

	if ok, outcome := r.Accept(top); !ok {
		log.Debug("result rejected", logger.String("outcome", string(outcome)))
		r.record(outcome)
		return Result{Outcome: outcome}, nil
	}

	res, err := r.store.UpsertIfHigher(ctx, ev.ID, datastore.Candidate{
		DetectionTime:  ev.StartTime,
		DetectionIndex: top.Index,
		Score:          top.Score,
		DisplayName:    top.DisplayName,
		CategoryName:   top.CategoryName,
		CameraName:     ev.Camera,
	})
	if err != nil {
		r.record(OutcomeError)
		return Result{Outcome: OutcomeError}, errors.New(err).
			Component("reconcile").
			Category(errors.CategoryDatabase).
			Context("event_id", ev.ID).
			Build()
	}

	result := Result{Detection: &res.Detection}
	switch res.Outcome {
	case datastore.Inserted:
		result.Outcome = OutcomeInserted
	case datastore.Updated:
		result.Outcome = OutcomeUpdated
	default:
		result.Outcome = OutcomeUnchanged
	}
	r.record(result.Outcome)

	if !res.Outcome.Written() {
		log.Debug("stored score is not lower, keeping detection",
			logger.Float64("stored_score", res.Detection.Score))
		return result, nil
	}

	log.Info("detection stored",
		logger.String("outcome", string(result.Outcome)),
		logger.Int64("id", int64(res.Detection.ID)),
		logger.String("camera", ev.Camera))

	result.Label, result.LabelErr = r.label(ctx, ev.ID, top.DisplayName)
	return result, nil
}

// label sends the sub label. Failures are logged and returned for
// reporting only.
func (r *Reconciler) label(ctx context.Context, eventID, displayName string) (string, error) {
	if r.labeler == nil {
		return "", nil
	}

	name := displayName
	if r.names != nil {
		name = r.names.Label(ctx, displayName)
	}
	label := TruncateLabel(name, r.cfg.LabelLength)

	if r.cfg.CallbackTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.CallbackTimeout)
		defer cancel()
	}

	err := r.labeler.SetSubLabel(ctx, eventID, label)
	if r.recorder != nil {
		r.recorder.RecordSubLabel(err == nil)
	}
	if err != nil {
		GetLogger().Warn("failed to set sub label",
			logger.String("event_id", eventID),
			logger.String("label", label),
			logger.Error(err))
		return label, err
	}
	GetLogger().Debug("sub label set",
		logger.String("event_id", eventID),
		logger.String("label", label))
	return label, nil
}

func (r *Reconciler) record(o Outcome) {
	if r.recorder != nil {
		r.recorder.RecordReconcile(string(o))
	}
}

// TruncateLabel returns at most n runes of s in NFC form, so a decomposed
// accent counts as one rune and is never split from its letter.
func TruncateLabel(s string, n int) string {
	s = norm.NFC.String(s)
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
