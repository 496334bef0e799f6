package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/sighting-density-etl/internal/adapter/csvfile"
	"github.com/couchcryptid/sighting-density-etl/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/sighting-density-etl/internal/adapter/kafka"
	"github.com/couchcryptid/sighting-density-etl/internal/adapter/sqlite"
	"github.com/couchcryptid/sighting-density-etl/internal/adapter/wikipedia"
	"github.com/couchcryptid/sighting-density-etl/internal/config"
	"github.com/couchcryptid/sighting-density-etl/internal/domain"
	"github.com/couchcryptid/sighting-density-etl/internal/observability"
	"github.com/couchcryptid/sighting-density-etl/internal/pipeline"
	"github.com/couchcryptid/sighting-density-etl/internal/population"
)

func main() {
	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	runID := uuid.NewString()
	logger := observability.NewLogger(cfg).With("run_id", runID)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, runID, logger, metrics); err != nil {
		logger.Error("run failed", "error", err)
		os.Exit(1)
	}
	logger.Info("run complete")
}

func run(ctx context.Context, cfg *config.Config, runID string, logger *slog.Logger, metrics *observability.Metrics) error {
	sources, err := cfg.Sources()
	if err != nil {
		return err
	}

	p := pipeline.New(logger, metrics, nil)

	if cfg.HTTPAddr != "" {
		srv := httpadapter.NewServer(cfg.HTTPAddr, p, logger)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("http server shutdown error", "error", err)
			}
		}()
	}

	if cfg.MetricsTextfile != "" {
		defer func() {
			if err := observability.WriteTextfile(cfg.MetricsTextfile); err != nil {
				logger.Error("metrics textfile write failed", "path", cfg.MetricsTextfile, "error", err)
			}
		}()
	}

	popFile := csvfile.NewPopulationFile(cfg.PopulationCSV)
	popStores := []pipeline.PopulationStore{popFile}
	var sinks []pipeline.Sink

	if cfg.SQLitePath != "" {
		store, err := sqlite.Open(cfg.SQLitePath, runID)
		if err != nil {
			return err
		}
		defer func() {
			if err := store.Close(); err != nil {
				logger.Error("sqlite close error", "error", err)
			}
		}()
		popStores = append(popStores, store)
		sinks = append(sinks, pipeline.Sink{Name: "sqlite", Loader: store})
		logger.Info("sqlite sink enabled", "path", cfg.SQLitePath)
	}

	if len(cfg.KafkaBrokers) > 0 {
		writer := kafkaadapter.NewWriter(cfg.KafkaBrokers, cfg.KafkaSinkTopic, logger)
		defer func() {
			if err := writer.Close(); err != nil {
				logger.Error("kafka writer close error", "error", err)
			}
		}()
		sinks = append(sinks, pipeline.Sink{Name: "kafka", Loader: writer})
		logger.Info("kafka sink enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaSinkTopic)
	}

	var table *domain.PopulationTable
	if cfg.HasStep(config.StepPopulation) {
		builder, err := population.NewBuilder(population.Options{
			KeyColumn:       cfg.PopulationKeyColumn,
			ExcludeTrailing: cfg.PopulationExcludeTables,
		}, logger)
		if err != nil {
			return err
		}
		client := wikipedia.NewClient(cfg.PopulationURL, cfg.FetchTimeout, logger)
		table, err = p.BuildPopulation(ctx, client, builder, popStores...)
		if err != nil {
			return err
		}
	}

	inputs := map[string]*csvfile.SightingFile{
		config.StepUFO:     csvfile.NewSightingFile(cfg.UFOInput, cfg.UFOOutput),
		config.StepBigfoot: csvfile.NewSightingFile(cfg.BigfootInput, cfg.BigfootOutput),
	}
	var cleaning []string
	for _, step := range []string{config.StepUFO, config.StepBigfoot} {
		if cfg.HasStep(step) {
			cleaning = append(cleaning, step)
		}
	}
	if len(cleaning) == 0 {
		return nil
	}

	if table == nil {
		table, err = p.LoadPopulation(ctx, popFile)
		if err != nil {
			return err
		}
	}

	cleaners, err := newCleaners(cleaning, sources, table, cfg.ParseErrorPolicy)
	if err != nil {
		return err
	}

	// The cleaners share only the read-only population table.
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range cleaning {
		file := inputs[name]
		stepSinks := append([]pipeline.Sink{{Name: "csv", Loader: file}}, sinks...)
		g.Go(func() error {
			_, err := p.CleanSightings(gctx, name, file, cleaners[name], stepSinks...)
			return err
		})
	}
	return g.Wait()
}

// newCleaners builds a cleaner for every enabled step. All of them are built
// before any step starts, so a bad source never leaves a step running.
func newCleaners(steps []string, sources map[string]domain.SourceConfig, table *domain.PopulationTable, policy domain.ParseErrorPolicy) (map[string]*domain.SightingCleaner, error) {
	cleaners := make(map[string]*domain.SightingCleaner, len(steps))
	for _, name := range steps {
		src, ok := sources[name]
		if !ok {
			return nil, fmt.Errorf("no source configuration for step %q", name)
		}
		cleaner, err := domain.NewSightingCleaner(src, table, policy)
		if err != nil {
			return nil, err
		}
		cleaners[name] = cleaner
	}
	return cleaners, nil
}
