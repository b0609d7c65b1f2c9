package tech

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/joshp123/techhome/plugins/tech/zone"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Observer is told about every finished refresh tick.
type Observer interface {
	EntitiesRefreshed(ctx context.Context, entities []Entity, result RefreshResult)
}

// RefreshResult counts the outcome of one tick.
type RefreshResult struct {
	OK     int
	Failed int
}

// Registry owns the entities of one module and drives their refresh.
type Registry struct {
	api      API
	moduleID string
	logger   *zap.Logger

	binarySensors  []BinarySensorSpec
	numericSensors []NumericSensorSpec
	refreshTimeout time.Duration

	mu        sync.RWMutex
	entities  []Entity
	climates  []*Climate
	byID      map[string]Entity
	observers []Observer

	refreshTotal *prometheus.CounterVec
	lastRefresh  prometheus.Gauge
	tracer       trace.Tracer
}

type RegistryOption func(*Registry)

// WithSensors replaces the default sensor declarations.
func WithSensors(binary []BinarySensorSpec, numeric []NumericSensorSpec) RegistryOption {
	return func(r *Registry) {
		r.binarySensors = binary
		r.numericSensors = numeric
	}
}

// WithRefreshTimeout bounds each entity refresh.
func WithRefreshTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) {
		r.refreshTimeout = d
	}
}

func NewRegistry(api API, moduleID string, logger *zap.Logger, opts ...RegistryOption) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		api:            api,
		moduleID:       moduleID,
		logger:         logger.With(zap.String("module_id", moduleID)),
		binarySensors:  DefaultBinarySensors,
		numericSensors: DefaultNumericSensors,
		refreshTimeout: defaultRequestTimeout,
		byID:           make(map[string]Entity),
		tracer:         otel.Tracer("techhome/tech"),
		refreshTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "techhome_refresh_total",
				Help:        "Entity refreshes by result",
				ConstLabels: prometheus.Labels{"module_id": moduleID},
			},
			[]string{"result"},
		),
		lastRefresh: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "techhome_last_refresh_timestamp_seconds",
			Help:        "Unix time of the last completed refresh tick",
			ConstLabels: prometheus.Labels{"module_id": moduleID},
		}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) ModuleID() string {
	return r.moduleID
}

// Setup enumerates the module's zones and creates entities for each visible
// one, seeded from the enumeration documents. It replaces any earlier entities.
func (r *Registry) Setup(ctx context.Context) error {
	docs, err := r.api.FetchModuleZones(ctx, r.moduleID)
	if err != nil {
		return fmt.Errorf("enumerate zones: %w", err)
	}

	ids := make([]string, 0, len(docs))
	for id := range docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	now := time.Now()
	var (
		entities []Entity
		climates []*Climate
	)
	byID := make(map[string]Entity)
	for _, id := range ids {
		doc := docs[id]
		ident, ok := zone.Identify(doc)
		if !ok {
			r.logger.Warn("skipping zone without id", zap.String("zone_id", id))
			continue
		}
		if !zone.Project(doc).Visible {
			r.logger.Debug("skipping invisible zone", zap.String("zone_id", ident.ID), zap.String("zone_name", ident.Name))
			continue
		}

		ref := zoneRef{api: r.api, moduleID: r.moduleID, zone: ident}
		climate := newClimate(ref, doc, now)
		climates = append(climates, climate)
		zoneEntities := []Entity{climate}
		for _, spec := range r.binarySensors {
			zoneEntities = append(zoneEntities, newBinarySensor(ref, spec, doc, now))
		}
		for _, spec := range r.numericSensors {
			zoneEntities = append(zoneEntities, newNumericSensor(ref, spec, doc, now))
		}
		for _, entity := range zoneEntities {
			if _, dup := byID[entity.UniqueID()]; dup {
				return fmt.Errorf("duplicate entity id %q", entity.UniqueID())
			}
			byID[entity.UniqueID()] = entity
		}
		entities = append(entities, zoneEntities...)
	}

	r.mu.Lock()
	r.entities = entities
	r.climates = climates
	r.byID = byID
	r.mu.Unlock()

	r.logger.Info("tech entities created",
		zap.Int("zones", len(climates)),
		zap.Int("entities", len(entities)),
		zap.Int("skipped", len(ids)-len(climates)),
	)
	return nil
}

// RefreshAll refreshes every entity concurrently. Failures are logged and
// counted; the failing entity keeps its previous state.
func (r *Registry) RefreshAll(ctx context.Context) RefreshResult {
	ctx, span := r.tracer.Start(ctx, "tech.refresh", trace.WithAttributes(attribute.String("module_id", r.moduleID)))
	defer span.End()
	entities := r.Entities()

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		result RefreshResult
	)
	for _, entity := range entities {
		wg.Add(1)
		go func(entity Entity) {
			defer wg.Done()
			refreshCtx, cancel := context.WithTimeout(ctx, r.refreshTimeout)
			defer cancel()

			err := entity.Refresh(refreshCtx)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed++
				r.refreshTotal.WithLabelValues("error").Inc()
				r.logger.Warn("entity refresh failed",
					zap.String("entity_id", entity.UniqueID()),
					zap.String("zone_id", entity.Zone().ID),
					zap.Error(err),
				)
				return
			}
			result.OK++
			r.refreshTotal.WithLabelValues("ok").Inc()
		}(entity)
	}
	wg.Wait()

	r.lastRefresh.SetToCurrentTime()
	span.SetAttributes(attribute.Int("refresh_ok", result.OK), attribute.Int("refresh_failed", result.Failed))
	if result.Failed > 0 && result.OK == 0 {
		span.SetStatus(codes.Error, "every entity refresh failed")
	} else {
		span.SetStatus(codes.Ok, "")
	}
	r.logger.Debug("refresh tick complete", zap.Int("ok", result.OK), zap.Int("failed", result.Failed))

	for _, observer := range r.observerList() {
		observer.EntitiesRefreshed(ctx, entities, result)
	}
	return result
}

// Run refreshes all entities every interval until ctx is done. A tick that is
// still running when the next one is due causes that next tick to be skipped.
func (r *Registry) Run(ctx context.Context, interval time.Duration) error {
	if interval < time.Second {
		return fmt.Errorf("refresh interval must be at least 1s, got %s", interval)
	}

	logger := cronLogger{r.logger.Sugar()}
	scheduler := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	if _, err := scheduler.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		r.RefreshAll(ctx)
	}); err != nil {
		return fmt.Errorf("schedule refresh: %w", err)
	}

	r.logger.Info("tech poller started", zap.Duration("interval", interval))
	scheduler.Start()
	<-ctx.Done()
	<-scheduler.Stop().Done()
	r.logger.Info("tech poller stopped")
	return nil
}

// Subscribe registers o for refresh notifications.
func (r *Registry) Subscribe(o Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, o)
}

func (r *Registry) observerList() []Observer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Observer(nil), r.observers...)
}

func (r *Registry) Entities() []Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Entity(nil), r.entities...)
}

func (r *Registry) Climates() []*Climate {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Climate(nil), r.climates...)
}

func (r *Registry) Entity(uniqueID string) (Entity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entity, ok := r.byID[uniqueID]
	return entity, ok
}

// Climate finds a climate entity by zone id or, failing that, by normalized zone name.
func (r *Registry) Climate(ref string) (*Climate, bool) {
	climates := r.Climates()
	for _, c := range climates {
		if c.Zone().ID == ref {
			return c, true
		}
	}
	want := normalizeName(ref)
	for _, c := range climates {
		if normalizeName(c.Zone().Name) == want {
			return c, true
		}
	}
	return nil, false
}

func (r *Registry) Collectors() []prometheus.Collector {
	return []prometheus.Collector{r.refreshTotal, r.lastRefresh}
}

func normalizeName(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	value = strings.ReplaceAll(value, "_", " ")
	value = strings.ReplaceAll(value, "-", " ")
	return strings.Join(strings.Fields(value), " ")
}

type cronLogger struct {
	logger *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}
