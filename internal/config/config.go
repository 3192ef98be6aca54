package config

import "os"

// AppConfig holds the observability-related settings that come from the
// environment rather than the network config file — the node's own
// listener addresses and mod list live in NetworkConfig (network.go),
// while tracing/metrics endpoints follow the teacher's env-var
// convention since they're deployment-environment concerns, not
// network-topology ones.
type AppConfig struct {
	JaegerEndpoint string
	PrometheusPort string
	HealthPort     string

	ServiceName    string
	ServiceVersion string
	Environment    string
	LogLevel       string
}

// Load loads the observability configuration from environment variables
// with sensible defaults.
func Load() *AppConfig {
	return &AppConfig{
		JaegerEndpoint: getEnv("JAEGER_ENDPOINT", "127.0.0.1:4317"),
		PrometheusPort: getEnv("PROMETHEUS_PORT", "9090"),
		HealthPort:     getEnv("NETWORKNODE_HEALTH_PORT", "8080"),

		ServiceName:    getEnv("SERVICE_NAME", "networknode"),
		ServiceVersion: getEnv("SERVICE_VERSION", "0.1.0"),
		Environment:    getEnv("ENVIRONMENT", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "INFO"),
	}
}

func (c *AppConfig) GetJaegerWebURL() string {
	return "http://localhost:16686"
}

func (c *AppConfig) GetPrometheusURL() string {
	return "http://localhost:" + c.PrometheusPort
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
