// diagnostics.go: staged connectivity checks for the broker
package mqtt

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/frigate-speciesid/speciesid/internal/logger"
)

// Stage is one step of the connectivity check.
type Stage int

const (
	StageDNS Stage = iota
	StageTCP
	StageConnect
	StageSubscribe
)

func (s Stage) String() string {
	switch s {
	case StageDNS:
		return "DNS Resolution"
	case StageTCP:
		return "TCP Connection"
	case StageConnect:
		return "MQTT Connection"
	case StageSubscribe:
		return "Topic Subscription"
	default:
		return "Unknown Stage"
	}
}

// StageResult reports the outcome of one stage.
type StageResult struct {
	Stage    string        `json:"stage"`
	Success  bool          `json:"success"`
	Message  string        `json:"message"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

const (
	dnsTimeout  = 5 * time.Second
	tcpTimeout  = 5 * time.Second
	mqttTimeout = 10 * time.Second
)

// runStage executes check under timeout and converts the outcome to a result.
func runStage(ctx context.Context, stage Stage, timeout time.Duration, check func(context.Context) error) StageResult {
	stageCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	done := make(chan error, 1)
	go func() { done <- check(stageCtx) }()

	var err error
	select {
	case <-stageCtx.Done():
		err = fmt.Errorf("operation timeout: %w", stageCtx.Err())
	case err = <-done:
	}

	result := StageResult{Stage: stage.String(), Duration: time.Since(start)}
	if err != nil {
		result.Error = err.Error()
		result.Message = fmt.Sprintf("Failed to perform %s", stage)
		return result
	}
	result.Success = true
	result.Message = fmt.Sprintf("Successfully completed %s", stage)
	return result
}

// Diagnose checks that the broker in cfg is reachable and that the events
// topic can be subscribed, stopping at the first failed stage. broker is
// connected and disconnected by this call.
func Diagnose(ctx context.Context, cfg Config, broker Broker) []StageResult {
	log := GetLogger()
	var results []StageResult
	record := func(r StageResult) bool {
		results = append(results, r)
		if r.Success {
			log.Info("diagnostic stage passed", logger.String("stage", r.Stage), logger.Duration("duration", r.Duration))
		} else {
			log.Warn("diagnostic stage failed", logger.String("stage", r.Stage), logger.String("error", r.Error))
		}
		return r.Success
	}

	u, err := url.Parse(cfg.Broker)
	if err != nil || u.Hostname() == "" {
		record(StageResult{Stage: StageDNS.String(), Message: "Invalid broker URL", Error: fmt.Sprintf("cannot parse %q", cfg.Broker)})
		return results
	}
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = "1883"
	}

	if net.ParseIP(host) == nil {
		if !record(runStage(ctx, StageDNS, dnsTimeout, func(ctx context.Context) error {
			_, err := net.DefaultResolver.LookupHost(ctx, host)
			return err
		})) {
			return results
		}
	}

	if !record(runStage(ctx, StageTCP, tcpTimeout, func(ctx context.Context) error {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, port))
		if err != nil {
			return err
		}
		return conn.Close()
	})) {
		return results
	}

	if !record(runStage(ctx, StageConnect, mqttTimeout, func(ctx context.Context) error {
		return broker.Connect(ctx, nil)
	})) {
		return results
	}
	defer broker.Disconnect()

	record(runStage(ctx, StageSubscribe, mqttTimeout, func(ctx context.Context) error {
		return broker.Subscribe(ctx, cfg.Topic, func([]byte) {})
	}))
	return results
}
