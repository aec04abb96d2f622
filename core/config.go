package core

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the orchestration engine. It supports three
// layers of priority:
//  1. Default values (lowest priority)
//  2. Environment variables
//  3. Functional options (highest priority)
//
// Example usage:
//
//	cfg, err := NewConfig(
//	    WithPort(8080),
//	    WithProvider("anthropic", os.Getenv("ANTHROPIC_API_KEY")),
//	)
type Config struct {
	Name string `json:"name" env:"SWARMCORE_NAME"`
	Port int    `json:"port" env:"SWARMCORE_PORT" default:"8080"`

	Providers     ProvidersConfig     `json:"providers"`
	Store         StoreConfig         `json:"store"`
	Orchestration OrchestrationConfig `json:"orchestration"`
	Telemetry     TelemetryConfig     `json:"telemetry"`
	Logging       LoggingConfig       `json:"logging"`
	Development   DevelopmentConfig  `json:"development"`

	logger Logger `json:"-"`
}

// ProvidersConfig holds per-vendor LLM credentials and the local model endpoint.
type ProvidersConfig struct {
	AnthropicAPIKey  string `json:"-" env:"ANTHROPIC_API_KEY"`
	GoogleAPIKey     string `json:"-" env:"GOOGLE_API_KEY"`
	OpenAIAPIKey     string `json:"-" env:"OPENAI_API_KEY"`
	OpenRouterAPIKey string `json:"-" env:"OPENROUTER_API_KEY"`
	BedrockRegion    string `json:"bedrock_region" env:"SWARMCORE_BEDROCK_REGION" default:"us-east-1"`
	LocalBaseURL     string `json:"local_base_url" env:"SWARMCORE_LOCAL_BASE_URL"`

	TavilyAPIKey string `json:"-" env:"TAVILY_API_KEY"`
	BraveAPIKey  string `json:"-" env:"BRAVE_API_KEY"`
}

// StoreConfig holds connection strings for the three memory tiers (spec §4.2).
type StoreConfig struct {
	EphemeralRedisURL string `json:"ephemeral_redis_url" env:"SWARMCORE_EPHEMERAL_URL,REDIS_URL" default:"redis://localhost:6379/0"`
	VectorURL         string `json:"vector_url" env:"SWARMCORE_VECTOR_URL"`
	DurableURL        string `json:"durable_url" env:"SWARMCORE_DURABLE_URL"`
	SettingsFilePath  string `json:"settings_file_path" env:"SWARMCORE_SETTINGS_FILE" default:"./data/settings.json"`
}

// OrchestrationConfig holds the tunable bounds named throughout spec §4.
type OrchestrationConfig struct {
	MaxReworkAttempts      int           `json:"max_rework_attempts" env:"SWARMCORE_MAX_REWORK_ATTEMPTS" default:"2"`
	QualityThreshold       float64       `json:"quality_threshold" env:"SWARMCORE_QUALITY_THRESHOLD" default:"7.0"`
	MinAgents              int           `json:"min_agents" env:"SWARMCORE_MIN_AGENTS" default:"4"`
	MaxAgents              int           `json:"max_agents" env:"SWARMCORE_MAX_AGENTS" default:"15"`
	DecomposeThreshold     float64       `json:"decompose_threshold" env:"SWARMCORE_DECOMPOSE_THRESHOLD" default:"0.4"`
	DebateRequiredThresh   float64       `json:"debate_required_threshold" env:"SWARMCORE_DEBATE_THRESHOLD" default:"0.7"`
	MaxDebateRounds        int           `json:"max_debate_rounds" env:"SWARMCORE_MAX_DEBATE_ROUNDS" default:"5"`
	ConvergenceThreshold   float64       `json:"convergence_threshold" env:"SWARMCORE_CONVERGENCE_THRESHOLD" default:"0.8"`
	ScoreMarginThreshold   float64       `json:"score_margin_threshold" env:"SWARMCORE_SCORE_MARGIN_THRESHOLD" default:"0.3"`
	ToolCallTimeout        time.Duration `json:"tool_call_timeout" env:"SWARMCORE_TOOL_TIMEOUT" default:"30s"`
	LLMNumRetries          int           `json:"llm_num_retries" env:"SWARMCORE_LLM_RETRIES" default:"3"`
}

// CircuitBreakerConfig parameterizes a CircuitBreaker implementation (see
// core/circuit_breaker.go). The Router's own breaker (llm/circuit_breaker.go) uses the
// spec's values (5 / 60s / 3) rather than these generic interface-level defaults.
type CircuitBreakerConfig struct {
	Enabled          bool
	Threshold        int
	Timeout          time.Duration
	HalfOpenRequests int
}

// DefaultCircuitBreakerDefaults returns the spec's exact Router defaults (§4.1):
// failure_threshold=5, recovery_timeout=60s, half_open_max_calls=3.
func DefaultCircuitBreakerDefaults() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Enabled:          true,
		Threshold:        5,
		Timeout:          60 * time.Second,
		HalfOpenRequests: 3,
	}
}

// TelemetryConfig mirrors the teacher's OTel wiring.
type TelemetryConfig struct {
	Enabled        bool    `json:"enabled" env:"SWARMCORE_TELEMETRY_ENABLED" default:"false"`
	Endpoint       string  `json:"endpoint" env:"SWARMCORE_TELEMETRY_ENDPOINT,OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName    string  `json:"service_name" env:"SWARMCORE_TELEMETRY_SERVICE_NAME,OTEL_SERVICE_NAME"`
	SamplingRate   float64 `json:"sampling_rate" env:"SWARMCORE_TELEMETRY_SAMPLING_RATE" default:"1.0"`
	Insecure       bool    `json:"insecure" env:"SWARMCORE_TELEMETRY_INSECURE" default:"true"`
}

// LoggingConfig controls the ProductionLogger.
type LoggingConfig struct {
	Level  string `json:"level" env:"SWARMCORE_LOG_LEVEL" default:"info"`
	Format string `json:"format" env:"SWARMCORE_LOG_FORMAT" default:"json"`
	Output string `json:"output" env:"SWARMCORE_LOG_OUTPUT" default:"stdout"`
}

// DevelopmentConfig enables development-friendly defaults.
type DevelopmentConfig struct {
	Enabled      bool `json:"enabled" env:"SWARMCORE_DEV_MODE" default:"false"`
	DebugLogging bool `json:"debug_logging" env:"SWARMCORE_DEBUG" default:"false"`
	PrettyLogs   bool `json:"pretty_logs" env:"SWARMCORE_PRETTY_LOGS" default:"false"`
}

// Option is a functional option for configuring the engine.
type Option func(*Config) error

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name: "swarmcore",
		Port: 8080,
		Providers: ProvidersConfig{
			BedrockRegion: "us-east-1",
		},
		Store: StoreConfig{
			EphemeralRedisURL: "redis://localhost:6379/0",
			SettingsFilePath:  "./data/settings.json",
		},
		Orchestration: OrchestrationConfig{
			MaxReworkAttempts:    2,
			QualityThreshold:     7.0,
			MinAgents:            4,
			MaxAgents:            15,
			DecomposeThreshold:   0.4,
			DebateRequiredThresh: 0.7,
			MaxDebateRounds:      5,
			ConvergenceThreshold: 0.8,
			ScoreMarginThreshold: 0.3,
			ToolCallTimeout:      30 * time.Second,
			LLMNumRetries:        3,
		},
		Telemetry: TelemetryConfig{
			SamplingRate: 1.0,
			Insecure:     true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// LoadFromEnv loads configuration from environment variables on top of the current
// values and validates the result. Environment variables take precedence over
// defaults but are overridden by functional options applied afterwards.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("SWARMCORE_NAME"); v != "" {
		c.Name = v
	}
	if v := os.Getenv("SWARMCORE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Port = port
		}
	}

	// Provider credentials
	c.Providers.AnthropicAPIKey = firstNonEmpty(os.Getenv("ANTHROPIC_API_KEY"), c.Providers.AnthropicAPIKey)
	c.Providers.GoogleAPIKey = firstNonEmpty(os.Getenv("GOOGLE_API_KEY"), c.Providers.GoogleAPIKey)
	c.Providers.OpenAIAPIKey = firstNonEmpty(os.Getenv("OPENAI_API_KEY"), c.Providers.OpenAIAPIKey)
	c.Providers.OpenRouterAPIKey = firstNonEmpty(os.Getenv("OPENROUTER_API_KEY"), c.Providers.OpenRouterAPIKey)
	c.Providers.TavilyAPIKey = firstNonEmpty(os.Getenv("TAVILY_API_KEY"), c.Providers.TavilyAPIKey)
	c.Providers.BraveAPIKey = firstNonEmpty(os.Getenv("BRAVE_API_KEY"), c.Providers.BraveAPIKey)
	if v := os.Getenv("SWARMCORE_LOCAL_BASE_URL"); v != "" {
		c.Providers.LocalBaseURL = v
	}
	if v := os.Getenv("SWARMCORE_BEDROCK_REGION"); v != "" {
		c.Providers.BedrockRegion = v
	}

	// Store URLs
	if v := firstNonEmpty(os.Getenv("SWARMCORE_EPHEMERAL_URL"), os.Getenv("REDIS_URL")); v != "" {
		c.Store.EphemeralRedisURL = v
	}
	if v := os.Getenv("SWARMCORE_VECTOR_URL"); v != "" {
		c.Store.VectorURL = v
	}
	if v := os.Getenv("SWARMCORE_DURABLE_URL"); v != "" {
		c.Store.DurableURL = v
	}
	if v := os.Getenv("SWARMCORE_SETTINGS_FILE"); v != "" {
		c.Store.SettingsFilePath = v
	}

	// Telemetry
	if v := os.Getenv("SWARMCORE_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = parseBool(v)
	}
	if v := firstNonEmpty(os.Getenv("SWARMCORE_TELEMETRY_ENDPOINT"), os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")); v != "" {
		c.Telemetry.Endpoint = v
		c.Telemetry.Enabled = true
	}
	if v := firstNonEmpty(os.Getenv("SWARMCORE_TELEMETRY_SERVICE_NAME"), os.Getenv("OTEL_SERVICE_NAME")); v != "" {
		c.Telemetry.ServiceName = v
	} else if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = c.Name
	}

	// Logging
	if v := os.Getenv("SWARMCORE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("SWARMCORE_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}

	// Development
	if v := os.Getenv("SWARMCORE_DEV_MODE"); v != "" {
		c.Development.Enabled = parseBool(v)
		if c.Development.Enabled {
			c.Development.PrettyLogs = true
			c.Logging.Level = "debug"
			c.Logging.Format = "text"
		}
	}
	if v := os.Getenv("SWARMCORE_DEBUG"); v != "" {
		c.Development.DebugLogging = parseBool(v)
		if c.Development.DebugLogging {
			c.Logging.Level = "debug"
		}
	}

	return c.Validate()
}

// Validate checks the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return NewTaskError("config.Validate", KindFatalPlan, "", fmt.Errorf("invalid port: %d", c.Port))
	}
	if c.Orchestration.MinAgents < 1 || c.Orchestration.MinAgents > c.Orchestration.MaxAgents {
		return NewTaskError("config.Validate", KindFatalPlan, "", fmt.Errorf("invalid agent floor/ceiling: [%d,%d]", c.Orchestration.MinAgents, c.Orchestration.MaxAgents))
	}
	if c.Providers.AnthropicAPIKey == "" && c.Providers.GoogleAPIKey == "" &&
		c.Providers.OpenAIAPIKey == "" && c.Providers.OpenRouterAPIKey == "" &&
		c.Providers.LocalBaseURL == "" {
		return ErrMissingConfiguration
	}
	return nil
}

func parseBool(s string) bool {
	b, _ := strconv.ParseBool(s)
	return b
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// WithName sets the service name.
func WithName(name string) Option {
	return func(c *Config) error {
		c.Name = name
		return nil
	}
}

// WithPort sets the HTTP listen port.
func WithPort(port int) Option {
	return func(c *Config) error {
		if port <= 0 || port > 65535 {
			return fmt.Errorf("invalid port: %d", port)
		}
		c.Port = port
		return nil
	}
}

// WithProvider sets an explicit API key for one of anthropic/google/openai/openrouter.
func WithProvider(name, apiKey string) Option {
	return func(c *Config) error {
		switch name {
		case "anthropic":
			c.Providers.AnthropicAPIKey = apiKey
		case "google":
			c.Providers.GoogleAPIKey = apiKey
		case "openai":
			c.Providers.OpenAIAPIKey = apiKey
		case "openrouter":
			c.Providers.OpenRouterAPIKey = apiKey
		default:
			return fmt.Errorf("unknown provider: %s", name)
		}
		return nil
	}
}

// WithEphemeralURL sets the ephemeral (Redis) store URL.
func WithEphemeralURL(url string) Option {
	return func(c *Config) error {
		c.Store.EphemeralRedisURL = url
		return nil
	}
}

// WithDurableURL sets the durable (Postgres) store URL.
func WithDurableURL(url string) Option {
	return func(c *Config) error {
		c.Store.DurableURL = url
		return nil
	}
}

// WithVectorURL sets the vector store URL.
func WithVectorURL(url string) Option {
	return func(c *Config) error {
		c.Store.VectorURL = url
		return nil
	}
}

// WithTelemetry enables telemetry export to the given OTLP endpoint.
func WithTelemetry(enabled bool, endpoint string) Option {
	return func(c *Config) error {
		c.Telemetry.Enabled = enabled
		c.Telemetry.Endpoint = endpoint
		return nil
	}
}

// WithLogLevel sets the logging level.
func WithLogLevel(level string) Option {
	return func(c *Config) error {
		c.Logging.Level = level
		return nil
	}
}

// WithDevelopmentMode toggles development-friendly defaults.
func WithDevelopmentMode(enabled bool) Option {
	return func(c *Config) error {
		c.Development.Enabled = enabled
		if enabled {
			c.Development.PrettyLogs = true
			c.Logging.Format = "text"
		}
		return nil
	}
}

// WithLogger injects a pre-built logger instead of constructing a ProductionLogger.
func WithLogger(logger Logger) Option {
	return func(c *Config) error {
		c.logger = logger
		return nil
	}
}

// Logger returns the configuration's logger, constructing a default one if needed.
func (c *Config) Logger() Logger {
	if c.logger == nil {
		c.logger = NewProductionLogger(c.Logging, c.Development, c.Name)
	}
	return c.logger
}

// NewConfig builds a Config from defaults, environment variables, and functional
// options (applied in that priority order), then constructs its logger if none was
// injected via WithLogger.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := DefaultConfig()

	// LoadFromEnv's only error is its Validate result; validation is repeated below
	// once the options have been applied.
	_ = cfg.LoadFromEnv()

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if cfg.logger == nil {
		logger := NewProductionLogger(cfg.Logging, cfg.Development, cfg.Name)
		if prodLogger, ok := logger.(*ProductionLogger); ok {
			trackLogger(prodLogger)
		}
		cfg.logger = logger
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// ============================================================================
// ProductionLogger — structured logging with an optional metrics layer, enabled
// for every tracked logger when SetMetricsRegistry is called.
// ============================================================================

// ProductionLogger is the default Logger/ComponentAwareLogger implementation.
type ProductionLogger struct {
	level       string
	debug       bool
	serviceName string
	component   string
	format      string
	output      io.Writer

	metricsEnabled bool
}

// NewProductionLogger creates a logger from LoggingConfig.
func NewProductionLogger(logging LoggingConfig, dev DevelopmentConfig, serviceName string) Logger {
	var output io.Writer = os.Stdout
	if logging.Output == "stderr" {
		output = os.Stderr
	}

	return &ProductionLogger{
		level:       strings.ToLower(logging.Level),
		debug:       dev.DebugLogging || logging.Level == "debug",
		serviceName: serviceName,
		component:   "swarmcore",
		format:      logging.Format,
		output:      output,
	}
}

// WithComponent returns a logger tagged with the given component name, sharing the
// parent's output sink, formatting, and metrics-enabled flag.
func (p *ProductionLogger) WithComponent(component string) Logger {
	clone := *p
	clone.component = component
	return &clone
}

// EnableMetrics is called by SetMetricsRegistry on every tracked logger, turning on
// metric emission for loggers constructed before the registry was set.
func (p *ProductionLogger) EnableMetrics() {
	p.metricsEnabled = true
}

func (p *ProductionLogger) Info(msg string, fields map[string]interface{}) {
	p.logEvent("INFO", msg, fields, nil)
}

func (p *ProductionLogger) InfoWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.logEvent("INFO", msg, fields, ctx)
}

func (p *ProductionLogger) Error(msg string, fields map[string]interface{}) {
	p.logEvent("ERROR", msg, fields, nil)
}

func (p *ProductionLogger) ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.logEvent("ERROR", msg, fields, ctx)
}

func (p *ProductionLogger) Warn(msg string, fields map[string]interface{}) {
	p.logEvent("WARN", msg, fields, nil)
}

func (p *ProductionLogger) WarnWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.logEvent("WARN", msg, fields, ctx)
}

func (p *ProductionLogger) Debug(msg string, fields map[string]interface{}) {
	if p.debug {
		p.logEvent("DEBUG", msg, fields, nil)
	}
}

func (p *ProductionLogger) DebugWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	if p.debug {
		p.logEvent("DEBUG", msg, fields, ctx)
	}
}

func (p *ProductionLogger) logEvent(level, msg string, fields map[string]interface{}, ctx context.Context) {
	timestamp := time.Now().Format(time.RFC3339)

	if p.format == "json" {
		logEntry := map[string]interface{}{
			"timestamp": timestamp,
			"level":     level,
			"service":   p.serviceName,
			"component": p.component,
			"message":   msg,
		}

		if ctx != nil && p.metricsEnabled {
			for k, v := range getContextBaggage(ctx) {
				logEntry["trace."+k] = v
			}
		}

		for k, v := range fields {
			logEntry[k] = v
		}

		if data, err := json.Marshal(logEntry); err == nil {
			fmt.Fprintln(p.output, string(data))
		}
	} else {
		traceInfo := ""
		if ctx != nil && p.metricsEnabled {
			if baggage := getContextBaggage(ctx); baggage["request_id"] != "" {
				traceInfo = fmt.Sprintf("[req=%s] ", baggage["request_id"])
			}
		}

		var fieldStr strings.Builder
		if len(fields) > 0 {
			fieldStr.WriteString(" ")
			for k, v := range fields {
				fieldStr.WriteString(fmt.Sprintf("%s=%v ", k, v))
			}
		}

		fmt.Fprintf(p.output, "%s [%s] [%s/%s] %s%s%s\n",
			timestamp, level, p.serviceName, p.component, traceInfo, msg, fieldStr.String())
	}

	if p.metricsEnabled {
		p.emitFrameworkMetric(level, msg, fields, ctx)
	}
}

func (p *ProductionLogger) emitFrameworkMetric(level, msg string, fields map[string]interface{}, ctx context.Context) {
	labels := []string{
		"level", level,
		"service", p.serviceName,
		"component", p.component,
	}

	for k, v := range fields {
		switch k {
		case "operation", "status", "error_type", "provider", "decision":
			labels = append(labels, k, fmt.Sprintf("%v", v))
		}
	}

	if ctx != nil {
		emitMetricWithContext(ctx, "swarmcore.operations", 1.0, labels...)
	} else {
		emitMetric("swarmcore.operations", 1.0, labels...)
	}
}

func emitMetric(name string, value float64, labels ...string) {
	if globalMetricsRegistry != nil {
		globalMetricsRegistry.Counter(name, labels...)
	}
}

func emitMetricWithContext(ctx context.Context, name string, value float64, labels ...string) {
	if globalMetricsRegistry != nil {
		globalMetricsRegistry.EmitWithContext(ctx, name, value, labels...)
	}
}

func getContextBaggage(ctx context.Context) map[string]string {
	if globalMetricsRegistry != nil {
		return globalMetricsRegistry.GetBaggage(ctx)
	}
	return make(map[string]string)
}
