package telemetry

// Config holds configuration for the tracer
type Config struct {
	// ServiceName is the name of the service
	ServiceName string `yaml:"service_name"`

	ServiceVersion string `yaml:"-"`

	// Environment is the deployment environment (ci, local)
	Environment string `yaml:"environment"`

	// Enabled determines whether tracing is enabled.
	// When false, a noop tracer is used.
	Enabled bool `yaml:"enabled"`

	// Endpoint is the OTLP/HTTP collector endpoint (host:port).
	// If empty, spans are recorded but not exported.
	Endpoint string `yaml:"endpoint"`

	// Insecure disables TLS towards the collector
	Insecure bool `yaml:"insecure"`

	// SampleRate is the fraction of runs to sample (0.0 to 1.0)
	SampleRate float64 `yaml:"sample_rate" validate:"gte=0,lte=1"`
}

// DefaultConfig returns the default configuration. Tracing is off for a
// CLI unless asked for.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "releasekit",
		ServiceVersion: "dev",
		Environment:    "local",
		Enabled:        false,
		SampleRate:     1.0,
	}
}
