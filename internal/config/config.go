package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"

	"github.com/couchcryptid/sighting-density-etl/internal/domain"
)

// Step names accepted in STEPS.
const (
	StepPopulation = "population"
	StepUFO        = "ufo"
	StepBigfoot    = "bigfoot"
)

const defaultPopulationURL = "https://en.wikipedia.org/wiki/List_of_U.S._states_and_territories_by_historical_population"

// Config holds all run settings, populated from environment variables.
type Config struct {
	Steps []string

	PopulationURL           string
	PopulationExcludeTables int
	PopulationKeyColumn     string
	PopulationCSV           string
	FetchTimeout            time.Duration

	UFOInput      string
	UFOOutput     string
	BigfootInput  string
	BigfootOutput string
	SourcesFile   string

	ParseErrorPolicy domain.ParseErrorPolicy

	// Optional sinks.
	SQLitePath     string
	KafkaBrokers   []string
	KafkaSinkTopic string

	HTTPAddr        string
	MetricsTextfile string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	fetchTimeout, err := time.ParseDuration(sharedcfg.EnvOrDefault("FETCH_TIMEOUT", "30s"))
	if err != nil || fetchTimeout <= 0 {
		return nil, errors.New("invalid FETCH_TIMEOUT")
	}

	exclude, err := strconv.Atoi(sharedcfg.EnvOrDefault("POPULATION_EXCLUDE_TABLES", "4"))
	if err != nil || exclude < 0 {
		return nil, errors.New("invalid POPULATION_EXCLUDE_TABLES: must be a non-negative integer")
	}

	steps, err := parseSteps(sharedcfg.EnvOrDefault("STEPS", "population,ufo,bigfoot"))
	if err != nil {
		return nil, err
	}

	var brokers []string
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		brokers = sharedcfg.ParseBrokers(v)
	}

	cfg := &Config{
		Steps: steps,

		PopulationURL:           sharedcfg.EnvOrDefault("POPULATION_URL", defaultPopulationURL),
		PopulationExcludeTables: exclude,
		PopulationKeyColumn:     sharedcfg.EnvOrDefault("POPULATION_KEY_COLUMN", "Name"),
		PopulationCSV:           sharedcfg.EnvOrDefault("POPULATION_CSV", "state_pop_decade.csv"),
		FetchTimeout:            fetchTimeout,

		UFOInput:      sharedcfg.EnvOrDefault("UFO_INPUT", "ufo.csv"),
		UFOOutput:     sharedcfg.EnvOrDefault("UFO_OUTPUT", "ufo_mod.csv"),
		BigfootInput:  sharedcfg.EnvOrDefault("BIGFOOT_INPUT", "bigfoot.csv"),
		BigfootOutput: sharedcfg.EnvOrDefault("BIGFOOT_OUTPUT", "bigfoot_mod.csv"),
		SourcesFile:   os.Getenv("SOURCES_FILE"),

		ParseErrorPolicy: domain.ParseErrorPolicy(strings.ToLower(sharedcfg.EnvOrDefault("PARSE_ERROR_POLICY", "abort"))),

		SQLitePath:     os.Getenv("SQLITE_PATH"),
		KafkaBrokers:   brokers,
		KafkaSinkTopic: sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "sightings-normalized"),

		HTTPAddr:        os.Getenv("HTTP_ADDR"),
		MetricsTextfile: os.Getenv("METRICS_TEXTFILE"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
	}

	if !cfg.ParseErrorPolicy.Valid() {
		return nil, fmt.Errorf("invalid PARSE_ERROR_POLICY %q: want abort or drop", cfg.ParseErrorPolicy)
	}
	if cfg.HasStep(StepPopulation) && cfg.PopulationURL == "" {
		return nil, errors.New("POPULATION_URL is required")
	}
	if cfg.PopulationCSV == "" {
		return nil, errors.New("POPULATION_CSV is required")
	}
	if cfg.HasStep(StepUFO) && (cfg.UFOInput == "" || cfg.UFOOutput == "") {
		return nil, errors.New("UFO_INPUT and UFO_OUTPUT are required")
	}
	if cfg.HasStep(StepBigfoot) && (cfg.BigfootInput == "" || cfg.BigfootOutput == "") {
		return nil, errors.New("BIGFOOT_INPUT and BIGFOOT_OUTPUT are required")
	}
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaSinkTopic == "" {
		return nil, errors.New("KAFKA_SINK_TOPIC is required when KAFKA_BROKERS is set")
	}

	return cfg, nil
}

// HasStep reports whether the named step is enabled.
func (c *Config) HasStep(step string) bool {
	return slices.Contains(c.Steps, step)
}

// parseSteps splits a comma-separated step list, rejecting unknown names.
// The result is in execution order regardless of input order.
func parseSteps(s string) ([]string, error) {
	want := make(map[string]bool)
	for _, part := range strings.Split(s, ",") {
		step := strings.ToLower(strings.TrimSpace(part))
		if step == "" {
			continue
		}
		switch step {
		case StepPopulation, StepUFO, StepBigfoot:
			want[step] = true
		default:
			return nil, fmt.Errorf("invalid STEPS: unknown step %q", step)
		}
	}
	if len(want) == 0 {
		return nil, errors.New("STEPS is required")
	}

	var steps []string
	for _, step := range []string{StepPopulation, StepUFO, StepBigfoot} {
		if want[step] {
			steps = append(steps, step)
		}
	}
	return steps, nil
}
