package orchestrator

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/corems/migrations/internal/config"
	"github.com/corems/migrations/internal/discovery"
	"github.com/corems/migrations/internal/engine"
	"github.com/corems/migrations/internal/logger"
)

const (
	// GlobalSchema hosts core migrations and, in global mode, every service's
	// migrations as one shared version lineage
	GlobalSchema = "migrations"
	// HistoryTable is the engine bookkeeping table, one per scope schema
	HistoryTable = "schema_history"
	// BaselineVersion makes the engine treat a pre-existing unversioned
	// schema as the starting point instead of failing
	BaselineVersion = "0"
)

// UnknownServiceError is returned when a service filter matches none of the
// discovered services. No migrations are applied in that case.
type UnknownServiceError struct {
	Requested string
	Available []string
}

func (e *UnknownServiceError) Error() string {
	if len(e.Available) == 0 {
		return fmt.Sprintf("service %q not found: no migratable services discovered", e.Requested)
	}
	return fmt.Sprintf("service %q not found, available services: %s",
		e.Requested, strings.Join(e.Available, ", "))
}

// ScopeResult is the outcome of one executed scope
type ScopeResult struct {
	Schema string
	Result engine.Result
}

// Summary aggregates the outcomes of a run
type Summary struct {
	Scopes        []ScopeResult
	TotalExecuted int
}

// Orchestrator turns discovered services into an ordered sequence of engine
// invocations. Scopes run strictly one at a time: core migrations create
// cross-cutting objects (extensions and the like) that service schemas depend
// on, so nothing may run before or alongside them.
type Orchestrator struct {
	cfg      *config.Config
	migrator engine.Migrator
}

// New creates an orchestrator for one run configuration
func New(cfg *config.Config, migrator engine.Migrator) *Orchestrator {
	return &Orchestrator{cfg: cfg, migrator: migrator}
}

// Run discovers services and executes all scopes for the configured mode.
// The first engine failure halts the run; scopes completed before it stay
// applied, there is no cross-scope transaction.
func (o *Orchestrator) Run(ctx context.Context) (*Summary, error) {
	sources, err := discovery.Discover(o.cfg.Paths.ReposRoot)
	if err != nil {
		return nil, err
	}

	if o.cfg.Run.Mode == config.ModeGlobal {
		return o.runGlobal(ctx, sources)
	}
	return o.runPerService(ctx, sources)
}

// runGlobal aggregates core plus every service into a single scope with one
// shared history table, the way the original shell toolkit ran migrations.
func (o *Orchestrator) runGlobal(ctx context.Context, sources []discovery.Source) (*Summary, error) {
	locations := o.coreLocations()
	for _, source := range sources {
		locations = append(locations, o.serviceLocations(source)...)
	}

	if len(locations) == 0 {
		logger.Warn("No migration locations found")
		return &Summary{}, nil
	}

	scope := engine.Scope{
		SchemaName:         GlobalSchema,
		Locations:          locations,
		HistoryTable:       HistoryTable,
		CleanBeforeMigrate: o.cfg.Run.CleanBeforeMigrate,
		BaselineVersion:    BaselineVersion,
	}

	summary := &Summary{}
	if err := o.runScope(ctx, scope, summary); err != nil {
		return nil, err
	}
	return summary, nil
}

// runPerService gives core and each service an independent scope and version
// lineage. With a service filter set, core is skipped and exactly one service
// runs.
func (o *Orchestrator) runPerService(ctx context.Context, sources []discovery.Source) (*Summary, error) {
	summary := &Summary{}

	if filter := o.cfg.Run.Service; filter != "" {
		source, ok := findSource(sources, filter)
		if !ok {
			return nil, &UnknownServiceError{Requested: filter, Available: names(sources)}
		}
		if err := o.runScope(ctx, o.buildScope(source), summary); err != nil {
			return nil, err
		}
		return summary, nil
	}

	if core := o.coreLocations(); len(core) > 0 {
		coreScope := engine.Scope{
			SchemaName:         GlobalSchema,
			Locations:          core,
			HistoryTable:       HistoryTable,
			CleanBeforeMigrate: o.cfg.Run.CleanBeforeMigrate,
			BaselineVersion:    BaselineVersion,
		}
		if err := o.runScope(ctx, coreScope, summary); err != nil {
			return nil, err
		}
	}

	for _, source := range sources {
		if err := o.runScope(ctx, o.buildScope(source), summary); err != nil {
			return nil, err
		}
	}

	return summary, nil
}

// buildScope turns one discovered service into an engine scope
func (o *Orchestrator) buildScope(source discovery.Source) engine.Scope {
	return engine.Scope{
		SchemaName:         SchemaName(source.Name),
		Locations:          o.serviceLocations(source),
		HistoryTable:       HistoryTable,
		CleanBeforeMigrate: o.cfg.Run.CleanBeforeMigrate,
		BaselineVersion:    BaselineVersion,
	}
}

// serviceLocations returns setup, then mockdata when included and present
func (o *Orchestrator) serviceLocations(source discovery.Source) []string {
	locations := []string{source.SetupPath}
	if o.cfg.Run.IncludeMockdata && source.MockdataPath != "" {
		logger.Infof("Including mockdata for: %s", source.Name)
		locations = append(locations, source.MockdataPath)
	}
	return locations
}

// runScope executes one scope: the destructive clean first when requested,
// then a single engine invocation.
func (o *Orchestrator) runScope(ctx context.Context, scope engine.Scope, summary *Summary) error {
	logger.Infof("Migrating schema %s (%d location(s))", scope.SchemaName, len(scope.Locations))

	if scope.CleanBeforeMigrate {
		if o.cfg.Run.DryRun {
			logger.Warnf("Would clean schema %s before migrating (dry-run)", scope.SchemaName)
		} else {
			logger.Warnf("Cleaning schema %s before migration, this irreversibly drops every object in it!", scope.SchemaName)
			if err := o.migrator.Clean(ctx, scope); err != nil {
				return fmt.Errorf("clean of schema %s failed: %w", scope.SchemaName, err)
			}
		}
	}

	result, err := o.migrator.Migrate(ctx, scope)
	if err != nil {
		return fmt.Errorf("migration of schema %s failed: %w", scope.SchemaName, err)
	}

	version := result.TargetSchemaVersion
	if version == "" {
		version = "none"
	}
	logger.Infof("Schema %s: %d migration(s) executed, version %s",
		scope.SchemaName, result.MigrationsExecuted, version)

	summary.Scopes = append(summary.Scopes, ScopeResult{Schema: scope.SchemaName, Result: *result})
	summary.TotalExecuted += result.MigrationsExecuted
	return nil
}

// coreLocations returns the core migration directory when it exists
func (o *Orchestrator) coreLocations() []string {
	info, err := os.Stat(o.cfg.Paths.Core)
	if err != nil || !info.IsDir() {
		logger.Debugf("Core migrations directory does not exist: %s", o.cfg.Paths.Core)
		return nil
	}
	return []string{o.cfg.Paths.Core}
}

// SchemaName derives a schema identifier from a service directory name,
// e.g. "user-ms" becomes "user_ms"
func SchemaName(serviceName string) string {
	return strings.ReplaceAll(serviceName, "-", "_")
}

func findSource(sources []discovery.Source, name string) (discovery.Source, bool) {
	for _, source := range sources {
		if source.Name == name {
			return source, true
		}
	}
	return discovery.Source{}, false
}

func names(sources []discovery.Source) []string {
	result := make([]string, 0, len(sources))
	for _, source := range sources {
		result = append(result, source.Name)
	}
	return result
}
