// core/scenario_service.go
package core

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/signalsfoundry/scenario-resimulator/internal/engine"
	"github.com/signalsfoundry/scenario-resimulator/internal/logging"
	"github.com/signalsfoundry/scenario-resimulator/internal/naming"
	"github.com/signalsfoundry/scenario-resimulator/internal/observability"
	"github.com/signalsfoundry/scenario-resimulator/internal/store"
	"github.com/signalsfoundry/scenario-resimulator/model"
)

// MetricsRecorder receives run and store measurements. It is satisfied by
// *observability.SimulationCollector.
type MetricsRecorder interface {
	ObserveRun(mode string, d time.Duration, err error)
	ObserveStore(op string, err error)
	IncRollbacks()
}

type noopMetrics struct{}

func (noopMetrics) ObserveRun(string, time.Duration, error) {}
func (noopMetrics) ObserveStore(string, error)              {}
func (noopMetrics) IncRollbacks()                           {}

// SimulateRequest uploads a model under a scenario name and runs it.
type SimulateRequest struct {
	Filename     string
	Model        []byte
	ScenarioName string
}

// ResimulateRequest re-runs a stored scenario with one variable held at
// NewValue from StartTime onward. Numbers arrive as client text.
type ResimulateRequest struct {
	BaseScenarioName string
	VariableToModify string
	NewValue         string
	StartTime        string
}

// ScenarioService orchestrates scenario uploads and resimulations over an
// artifact store and a simulation engine.
//
// Semantics:
//   - Simulate stores the artifact before running it and deletes it again
//     if the run fails, so a stored scenario has run at least once.
//   - Resimulate always re-runs the stored baseline, resolves the variable
//     against the baseline's columns, and runs again with the override.
//   - Results are normalized: time column "TIME", canonical column names.
type ScenarioService struct {
	store   store.ScenarioStore
	engine  engine.Engine
	log     logging.Logger
	metrics MetricsRecorder
}

// Option configures a ScenarioService.
type Option func(*ScenarioService)

// WithLogger sets the fallback logger used when the request context carries
// none.
func WithLogger(l logging.Logger) Option {
	return func(s *ScenarioService) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(s *ScenarioService) {
		if m != nil {
			s.metrics = m
		}
	}
}

// NewScenarioService constructs a ScenarioService.
func NewScenarioService(st store.ScenarioStore, eng engine.Engine, opts ...Option) *ScenarioService {
	s := &ScenarioService{
		store:   st,
		engine:  eng,
		log:     logging.Noop(),
		metrics: noopMetrics{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Simulate persists req.Model under the sanitized scenario name, runs it,
// and returns the normalized baseline.
func (s *ScenarioService) Simulate(ctx context.Context, req SimulateRequest) (_ *model.ResultTable, err error) {
	ctx, span := observability.StartSpan(ctx, "scenario.simulate",
		attribute.String("scenario.name", req.ScenarioName),
		attribute.String("scenario.filename", req.Filename),
	)
	defer func() { observability.EndSpan(span, err) }()
	log := logging.FromContext(ctx, s.log)

	if req.Filename == "" || strings.TrimSpace(req.ScenarioName) == "" {
		return nil, newError(KindBadRequest, nil, "file and scenarioName are required")
	}
	if !strings.HasSuffix(req.Filename, store.ArtifactExt) {
		return nil, newError(KindBadRequest, nil, "invalid file format: %q is not a %s file", req.Filename, store.ArtifactExt)
	}
	key, err := scenarioKey(req.ScenarioName)
	if err != nil {
		return nil, err
	}
	log = log.With(logging.String("scenario", key))

	if err := s.put(ctx, key, req.Model); err != nil {
		return nil, newError(KindStorageError, err, "store scenario %q", key)
	}

	table, err := s.run(ctx, observability.ModeSimulate, req.Model, nil)
	if err != nil {
		// The artifact never produced a result; do not keep it.
		if delErr := s.delete(context.WithoutCancel(ctx), key); delErr != nil {
			log.Error(ctx, "rollback of failed scenario upload failed", logging.Err(delErr))
		} else {
			s.metrics.IncRollbacks()
			log.Warn(ctx, "scenario upload rolled back", logging.Err(err))
		}
		return nil, newError(KindSimulationError, err, "simulation failed")
	}

	log.Info(ctx, "scenario simulated",
		logging.Int("rows", table.Rows()),
		logging.Int("columns", len(table.Columns)),
	)
	return naming.NormalizeTable(table), nil
}

// Resimulate re-runs a stored scenario with req.VariableToModify replaced
// by req.NewValue from req.StartTime onward.
func (s *ScenarioService) Resimulate(ctx context.Context, req ResimulateRequest) (_ *model.ResultTable, err error) {
	ctx, span := observability.StartSpan(ctx, "scenario.resimulate",
		attribute.String("scenario.name", req.BaseScenarioName),
		attribute.String("scenario.variable", req.VariableToModify),
	)
	defer func() { observability.EndSpan(span, err) }()
	log := logging.FromContext(ctx, s.log)

	if req.BaseScenarioName == "" || req.VariableToModify == "" || req.NewValue == "" || req.StartTime == "" {
		return nil, newError(KindBadRequest, nil, "missing required fields")
	}
	key, err := scenarioKey(req.BaseScenarioName)
	if err != nil {
		return nil, err
	}
	log = log.With(logging.String("scenario", key), logging.String("variable", req.VariableToModify))

	artifact, err := s.get(ctx, key)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, newError(KindScenarioNotFound, err, "base scenario %q not found", req.BaseScenarioName)
	case err != nil:
		return nil, newError(KindStorageError, err, "load scenario %q", key)
	}

	baseline, err := s.run(ctx, observability.ModeResimulate, artifact, nil)
	if err != nil {
		return nil, newError(KindSimulationError, err, "baseline simulation failed")
	}

	ids := naming.NewIdentifierMap(baseline.Columns)
	if collisions := ids.Collisions(); len(collisions) > 0 {
		log.Warn(ctx, "variable names collide after normalization", logging.Any("collisions", sortedCollisions(collisions)))
	}
	native, ok := ids.Lookup(req.VariableToModify)
	if !ok {
		return nil, newError(KindVariableNotFound, nil, "variable %q not found in model", req.VariableToModify)
	}

	value, err := ParseNumber(req.NewValue)
	if err != nil {
		return nil, newError(KindInvalidNumericInput, err, "invalid new_value")
	}
	start, err := ParseNumber(req.StartTime)
	if err != nil {
		return nil, newError(KindInvalidNumericInput, err, "invalid start_time")
	}

	series, _ := baseline.Series(native)
	override := BuildOverride(series, start, value)

	if err := ctx.Err(); err != nil {
		return nil, newError(KindSimulationError, err, "resimulation canceled")
	}
	table, err := s.run(ctx, observability.ModeResimulate, artifact, engine.Overrides{native: override})
	if err != nil {
		return nil, newError(KindSimulationError, err, "resimulation failed")
	}

	log.Info(ctx, "scenario resimulated",
		logging.String("native_variable", native),
		logging.Float64("new_value", value),
		logging.Float64("start_time", start),
		logging.Int("rows", table.Rows()),
	)
	return naming.NormalizeTable(table), nil
}

func scenarioKey(name string) (string, error) {
	key := naming.Sanitize(name)
	if err := store.ValidateKey(key); err != nil {
		return "", newError(KindBadRequest, err, "scenario name %q has no usable characters", name)
	}
	return key, nil
}

func (s *ScenarioService) run(ctx context.Context, mode string, artifact []byte, overrides engine.Overrides) (table *model.ResultTable, err error) {
	ctx, span := observability.StartSpan(ctx, "engine.run",
		attribute.String("mode", mode),
		attribute.Int("overrides", len(overrides)),
	)
	start := time.Now()
	defer func() {
		s.metrics.ObserveRun(mode, time.Since(start), err)
		observability.EndSpan(span, err)
	}()

	table, err = s.engine.Run(ctx, artifact, overrides)
	if err == nil && table == nil {
		err = errors.New("engine returned no result")
	}
	return table, err
}

func (s *ScenarioService) put(ctx context.Context, key string, artifact []byte) (err error) {
	ctx, span := observability.StartSpan(ctx, "store.put", attribute.String("key", key))
	defer func() {
		s.metrics.ObserveStore("put", err)
		observability.EndSpan(span, err)
	}()
	return s.store.Put(ctx, key, artifact)
}

func (s *ScenarioService) get(ctx context.Context, key string) (_ []byte, err error) {
	ctx, span := observability.StartSpan(ctx, "store.get", attribute.String("key", key))
	defer func() {
		s.metrics.ObserveStore("get", err)
		observability.EndSpan(span, err)
	}()
	return s.store.Get(ctx, key)
}

func (s *ScenarioService) delete(ctx context.Context, key string) (err error) {
	ctx, span := observability.StartSpan(ctx, "store.delete", attribute.String("key", key))
	defer func() {
		s.metrics.ObserveStore("delete", err)
		observability.EndSpan(span, err)
	}()
	return s.store.Delete(ctx, key)
}

func sortedCollisions(c map[string][]string) []string {
	out := make([]string, 0, len(c))
	for key, natives := range c {
		out = append(out, key+"="+strings.Join(natives, "|"))
	}
	sort.Strings(out)
	return out
}
