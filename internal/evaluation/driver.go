package evaluation

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/R2-Decide/esci-evaluator/internal/backend"
	"github.com/R2-Decide/esci-evaluator/internal/bus"
	"github.com/R2-Decide/esci-evaluator/internal/dataset"
	"github.com/R2-Decide/esci-evaluator/internal/pkg/errors"
	"github.com/R2-Decide/esci-evaluator/internal/pkg/logger"
)

// Run states.
const (
	StateIdle      = "idle"
	StateRunning   = "running"
	StateCompleted = "completed"
	StateFailed    = "failed"
)

const eventSource = "evaluation-driver"

// DriverConfig holds evaluation run settings.
type DriverConfig struct {
	// Workers is the number of queries evaluated concurrently.
	Workers int

	// FailureThreshold aborts the run after this many consecutive
	// backend-unavailable failures. Successful queries reset the count.
	FailureThreshold int
}

// DefaultDriverConfig returns the default run settings.
func DefaultDriverConfig() DriverConfig {
	return DriverConfig{
		Workers:          4,
		FailureThreshold: 3,
	}
}

// Driver runs a full evaluation: it issues every dataset query against
// one backend adapter, scores the ranked results, and aggregates them
// into a Report.
type Driver struct {
	cfg     DriverConfig
	scorer  *Scorer
	adapter backend.Adapter
	bus     bus.Bus // nil disables progress events
	log     *logger.Logger

	mu    sync.Mutex
	state string
}

// NewDriver creates a Driver. The bus may be nil to disable progress
// events.
func NewDriver(cfg DriverConfig, scorer *Scorer, adapter backend.Adapter, eventBus bus.Bus, log *logger.Logger) (*Driver, error) {
	if scorer == nil {
		return nil, errors.ConfigurationError("driver requires a scorer")
	}
	if adapter == nil {
		return nil, errors.ConfigurationError("driver requires a backend adapter")
	}
	if cfg.Workers < 1 {
		return nil, errors.ConfigurationError("driver workers must be positive")
	}
	if cfg.FailureThreshold < 1 {
		return nil, errors.ConfigurationError("driver failure threshold must be positive")
	}
	if log == nil {
		log = logger.Default()
	}

	return &Driver{
		cfg:     cfg,
		scorer:  scorer,
		adapter: adapter,
		bus:     eventBus,
		log:     log.WithBackend(adapter.Name()),
		state:   StateIdle,
	}, nil
}

// State returns the current run state.
func (d *Driver) State() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Driver) setState(s string) {
	d.mu.Lock()
	d.state = s
	d.mu.Unlock()
}

// Run evaluates every query in the dataset and returns the aggregated
// report.
//
// A consecutive run of backend-unavailable failures reaching the
// configured threshold aborts the evaluation: the partial report is
// returned together with the escalation error and the report status is
// failed. Context cancellation stops dispatching new queries and
// returns the partial report without an error.
func (d *Driver) Run(ctx context.Context, ds *dataset.Dataset) (*Report, error) {
	cases := ds.Cases()

	report := &Report{
		RunID:      uuid.NewString(),
		Backend:    d.adapter.Name(),
		StartedAt:  time.Now().UTC(),
		QueryCount: len(cases),
	}

	d.setState(StateRunning)
	log := d.log.WithRun(report.RunID)
	log.Info("evaluation run started", "queries", len(cases), "workers", d.cfg.Workers)

	agg := NewAggregator()

	var (
		failMu   sync.Mutex
		failures []QueryFailure
		streak   int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.Workers)

	for i := range cases {
		if gctx.Err() != nil {
			break
		}

		qc := &cases[i]
		g.Go(func() error {
			return d.evaluateQuery(gctx, qc, agg, &failMu, &failures, &streak, report.RunID, log)
		})
	}

	runErr := g.Wait()

	report.CompletedAt = time.Now().UTC()
	report.Scores = agg.Scores()
	report.Metrics, report.ByCategory, report.ByLabelSet = agg.Summarize()

	sort.Slice(failures, func(i, j int) bool {
		return failures[i].QueryID < failures[j].QueryID
	})
	report.Failures = failures
	report.Processed = len(report.Scores) + len(failures)

	if runErr != nil && !errors.IsBackendUnavailable(runErr) {
		// Parent context cancellation: keep what was scored.
		runErr = nil
	}

	if runErr != nil {
		report.Status = StateFailed
		d.setState(StateFailed)
		log.WithError(runErr).Error("evaluation run failed", "processed", report.Processed)
		d.publish(bus.TopicRunFailed, report.RunID, report)
		return report, runErr
	}

	report.Status = StateCompleted
	d.setState(StateCompleted)
	log.Info("evaluation run completed",
		"processed", report.Processed,
		"scored", len(report.Scores),
		"failed", len(failures))
	d.publish(bus.TopicRunCompleted, report.RunID, report)

	return report, nil
}

func (d *Driver) evaluateQuery(ctx context.Context, qc *dataset.QueryCase, agg *Aggregator, failMu *sync.Mutex, failures *[]QueryFailure, streak *int, runID string, log *logger.Logger) error {
	ranked, err := d.adapter.Search(ctx, backend.Query{
		ID:     qc.ID,
		Text:   qc.Query,
		Locale: qc.Locale,
	})
	if err != nil {
		// A cancelled context surfaces as a transport failure; it is
		// not a backend failure and must not count toward the streak.
		if ctx.Err() != nil {
			return nil
		}
		return d.recordFailure(qc, err, failMu, failures, streak, runID, log)
	}

	score, err := d.scorer.Score(qc, ranked)
	if err != nil {
		return d.recordFailure(qc, err, failMu, failures, streak, runID, log)
	}

	agg.Accumulate(score)

	failMu.Lock()
	*streak = 0
	failMu.Unlock()

	d.publish(bus.TopicQueryScored, runID, score)
	return nil
}

// recordFailure files a per-query failure and applies the escalation
// policy. Only backend-unavailable failures count toward the
// consecutive streak; any other failure resets it since the backend
// did respond.
func (d *Driver) recordFailure(qc *dataset.QueryCase, err error, failMu *sync.Mutex, failures *[]QueryFailure, streak *int, runID string, log *logger.Logger) error {
	failure := QueryFailure{
		QueryID: qc.ID,
		Query:   qc.Query,
		Backend: d.adapter.Name(),
		Code:    errors.CodeOf(err),
		Message: err.Error(),
	}

	log.WithQuery(qc.ID).WithError(err).Warn("query evaluation failed")
	d.publish(bus.TopicQueryFailed, runID, failure)

	failMu.Lock()
	defer failMu.Unlock()

	*failures = append(*failures, failure)

	if !errors.IsBackendUnavailable(err) {
		*streak = 0
		return nil
	}

	*streak++
	if *streak >= d.cfg.FailureThreshold {
		return errors.Wrap(errors.CodeBackendUnavailable,
			fmt.Sprintf("%s unavailable for %d consecutive queries", d.adapter.Name(), *streak), err)
	}

	return nil
}

func (d *Driver) publish(topic, runID string, payload any) {
	if d.bus == nil {
		return
	}

	event := bus.NewEvent(topic, eventSource, payload)
	event.CorrelationID = runID

	// Progress events are best effort.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := d.bus.Publish(ctx, topic, event); err != nil {
		d.log.WithError(err).Warn("failed to publish progress event", "topic", topic)
	}
}
