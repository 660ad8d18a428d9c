package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/frigate-speciesid/speciesid/internal/classifier"
	"github.com/frigate-speciesid/speciesid/internal/datastore"
	"github.com/frigate-speciesid/speciesid/internal/errors"
	"github.com/frigate-speciesid/speciesid/internal/frigate"
	"github.com/frigate-speciesid/speciesid/internal/reconcile"
	"github.com/frigate-speciesid/speciesid/internal/snapshot"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const frigateURL = "http://frigate.local:5000"

type fakeClassifier struct {
	results []classifier.Category
	delay   time.Duration
	calls   atomic.Int32
	done    chan struct{}
}

func (f *fakeClassifier) Classify(_ context.Context, img image.Image) ([]classifier.Category, error) {
	f.calls.Add(1)
	if f.done != nil {
		defer close(f.done)
	}
	if b := img.Bounds(); b.Dx() != 224 || b.Dy() != 224 {
		return nil, errors.NewStd("unexpected input size")
	}
	time.Sleep(f.delay)
	return f.results, nil
}

func (f *fakeClassifier) InputSize() int { return 224 }
func (f *fakeClassifier) Close() error   { return nil }

type recorder struct {
	snapshots map[string]int
	classify  int
}

func (r *recorder) RecordSnapshot(result string) { r.snapshots[result]++ }
func (r *recorder) ObserveClassification(time.Duration, error) {
	r.classify++
}

type pipeline struct {
	proc       *Processor
	store      *datastore.SQLiteStore
	transport  *httpmock.MockTransport
	classifier *fakeClassifier
	recorder   *recorder
	subLabels  []string
}

func jpegBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 320, 240))
	for y := range 240 {
		for x := range 320 {
			img.Set(x, y, color.RGBA{R: 200, G: 30, B: 30, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func newPipeline(t *testing.T, top classifier.Category, cfg Config) *pipeline {
	t.Helper()
	p := &pipeline{
		transport:  httpmock.NewMockTransport(),
		classifier: &fakeClassifier{results: []classifier.Category{top}},
		recorder:   &recorder{snapshots: map[string]int{}},
	}

	client, err := frigate.NewClient(frigate.Config{BaseURL: frigateURL, Timeout: time.Second, Transport: p.transport})
	require.NoError(t, err)
	t.Cleanup(client.Close)

	p.transport.RegisterResponder(http.MethodPost, `=~/sub_label$`,
		func(req *http.Request) (*http.Response, error) {
			var body struct {
				SubLabel string `json:"subLabel"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				return nil, err
			}
			p.subLabels = append(p.subLabels, body.SubLabel)
			return httpmock.NewStringResponse(http.StatusOK, `{"success":true}`), nil
		})

	p.store = datastore.NewSQLiteStore(filepath.Join(t.TempDir(), "speciesid.db"))
	require.NoError(t, p.store.Open())
	t.Cleanup(func() { _ = p.store.Close() })

	rec := reconcile.New(p.store, client, nil, nil, reconcile.Config{Threshold: 0.7, SentinelIndex: 964})
	p.proc = New(snapshot.NewFetcher(client, 224), p.classifier, rec, p.recorder, cfg)
	return p
}

func (p *pipeline) serveSnapshot(t *testing.T, eventID string) {
	t.Helper()
	p.transport.RegisterResponderWithQuery(http.MethodGet, frigateURL+"/api/events/"+eventID+"/snapshot.jpg",
		"crop=1&quality=95", httpmock.NewBytesResponder(http.StatusOK, jpegBytes(t)))
}

func TestProcess_StoresAndLabels(t *testing.T) {
	top := classifier.Category{Index: 12, CategoryName: "Cardinalis cardinalis", DisplayName: "Cardinalis cardinalis", Score: 0.91}
	p := newPipeline(t, top, Config{FetchTimeout: time.Second, ClassifyTimeout: time.Second})
	p.serveSnapshot(t, "E1")

	err := p.proc.Handle(context.Background(), &frigate.EventDetails{ID: "E1", Camera: "birdcam", Label: "bird", StartTime: 1714548600})
	require.NoError(t, err)

	stored, err := p.store.FindByEvent(context.Background(), "E1")
	require.NoError(t, err)
	assert.Equal(t, "birdcam", stored.CameraName)
	assert.True(t, time.Date(2024, 5, 1, 7, 30, 0, 0, time.UTC).Equal(stored.DetectionTime))
	assert.Equal(t, []string{"Cardinalis cardinali"}, p.subLabels, "label truncated to 20 runes")
	assert.Equal(t, 1, p.recorder.snapshots[SnapshotOK])
	assert.Equal(t, 1, p.recorder.classify)
}

func TestProcess_SnapshotNotFound(t *testing.T) {
	top := classifier.Category{Index: 12, DisplayName: "Cardinalis cardinalis", Score: 0.91}
	p := newPipeline(t, top, Config{})
	p.transport.RegisterResponder(http.MethodGet, `=~/snapshot\.jpg`,
		httpmock.NewStringResponder(http.StatusNotFound, "not found"))

	_, err := p.proc.Process(context.Background(), reconcile.Event{ID: "E404", Camera: "birdcam"})
	require.Error(t, err)

	var statusErr *frigate.StatusError
	assert.ErrorAs(t, err, &statusErr)
	assert.Zero(t, p.classifier.calls.Load(), "no classification without a snapshot")
	assert.Empty(t, p.subLabels)
	assert.Equal(t, 1, p.recorder.snapshots[SnapshotStatus])

	_, err = p.store.FindByEvent(context.Background(), "E404")
	assert.True(t, errors.IsNotFound(err))
}

func TestProcess_SentinelResult(t *testing.T) {
	top := classifier.Category{Index: 964, DisplayName: "background", Score: 0.99}
	p := newPipeline(t, top, Config{})
	p.serveSnapshot(t, "E2")

	res, err := p.proc.Process(context.Background(), reconcile.Event{ID: "E2", Camera: "birdcam"})
	require.NoError(t, err)
	assert.Equal(t, reconcile.OutcomeRejectedSentinel, res.Outcome)
	assert.Empty(t, p.subLabels)

	_, err = p.store.FindByEvent(context.Background(), "E2")
	assert.True(t, errors.IsNotFound(err))
}

func TestProcess_ClassifyTimeout(t *testing.T) {
	top := classifier.Category{Index: 12, DisplayName: "Cardinalis cardinalis", Score: 0.91}
	p := newPipeline(t, top, Config{ClassifyTimeout: 20 * time.Millisecond})
	p.classifier.delay = 200 * time.Millisecond
	p.classifier.done = make(chan struct{})
	p.serveSnapshot(t, "E3")

	_, err := p.proc.Process(context.Background(), reconcile.Event{ID: "E3"})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryTimeout))

	<-p.classifier.done
	_, err = p.store.FindByEvent(context.Background(), "E3")
	assert.True(t, errors.IsNotFound(err))
}
