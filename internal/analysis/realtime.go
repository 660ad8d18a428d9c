package analysis

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/frigate-speciesid/speciesid/internal/api"
	"github.com/frigate-speciesid/speciesid/internal/buildinfo"
	"github.com/frigate-speciesid/speciesid/internal/conf"
	"github.com/frigate-speciesid/speciesid/internal/datastore"
	"github.com/frigate-speciesid/speciesid/internal/logger"
	"github.com/frigate-speciesid/speciesid/internal/mqtt"
	"github.com/frigate-speciesid/speciesid/internal/names"
	"github.com/frigate-speciesid/speciesid/internal/observability"
	"github.com/frigate-speciesid/speciesid/internal/privacy"
)

// RealtimeAnalysis consumes Frigate events until ctx is cancelled. The
// reporting API and the metrics endpoint run alongside when enabled. A
// failure of any of them stops the others.
func RealtimeAnalysis(ctx context.Context, settings *conf.Settings, info buildinfo.BuildInfo) error {
	log := GetLogger()
	logSystemDetails(ctx)

	metrics, err := observability.NewMetrics()
	if err != nil {
		return fmt.Errorf("error initializing metrics: %w", err)
	}
	metrics.TrackErrors()

	pipeline, err := NewPipeline(settings, metrics)
	if err != nil {
		return err
	}
	defer pipeline.Close()

	mqttConfig := mqtt.ConfigFromSettings(settings)
	consumer := mqtt.NewConsumer(mqttConfig,
		mqtt.NewPahoBroker(mqttConfig),
		pipeline.Processor,
		mqtt.NewFilter(settings.Frigate.Cameras, settings.Frigate.Object),
		metrics.MQTT)

	log.Info("starting realtime analysis",
		logger.String("version", info.Version()),
		logger.String("broker", privacy.RedactURL(mqttConfig.Broker)),
		logger.String("topic", mqttConfig.Topic),
		logger.Any("cameras", settings.Frigate.Cameras),
		logger.String("object", settings.Frigate.Object))

	var server *api.Server
	if settings.WebUI.Enabled {
		if server, err = newAPIServer(settings, info, pipeline.Store, pipeline.Names, metrics); err != nil {
			return err
		}
	}
	var endpoint *observability.Endpoint
	if settings.Metrics.Enabled {
		if endpoint, err = observability.NewEndpoint(settings, metrics); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return consumer.Run(gctx)
	})
	if server != nil {
		g.Go(func() error {
			return server.Run(gctx)
		})
	}
	if endpoint != nil {
		g.Go(func() error {
			return endpoint.Run(gctx)
		})
	}

	start := time.Now()
	err = g.Wait()
	log.Info("realtime analysis stopped",
		logger.Duration("uptime", time.Since(start).Round(time.Second)),
		logger.Error(err))
	return err
}

// ServeReports runs only the reporting API over an existing database.
func ServeReports(ctx context.Context, settings *conf.Settings, info buildinfo.BuildInfo) error {
	store, resolver, err := openReadOnly(settings)
	if err != nil {
		return err
	}
	defer func() {
		if resolver != nil {
			_ = resolver.Close()
		}
		if err := store.Close(); err != nil {
			GetLogger().Error("failed to close detection store", logger.Error(err))
		}
	}()

	metrics, err := observability.NewMetrics()
	if err != nil {
		return fmt.Errorf("error initializing metrics: %w", err)
	}
	metrics.TrackErrors()

	server, err := newAPIServer(settings, info, store, resolver, metrics)
	if err != nil {
		return err
	}
	return server.Run(ctx)
}

func newAPIServer(settings *conf.Settings, info buildinfo.BuildInfo, store datastore.Interface,
	resolver *names.Resolver, metrics *observability.Metrics) (*api.Server, error) {
	opts := []api.ServerOption{
		api.WithDataStore(store),
		api.WithMetrics(metrics),
		api.WithVersion(info.Version()),
	}
	if resolver != nil {
		opts = append(opts, api.WithNames(resolver))
	}
	return api.New(settings, opts...)
}
