package app

import (
	"github.com/yungbote/contentlib/internal/platform/envutil"
)

type Config struct {
	ServiceName string
	Environment string
	Port        string

	JWTSecretKey string

	RedisAddr        string
	AnalyticsChannel string

	// RunWorkers starts the job worker pool and, when Temporal is
	// configured, the Temporal worker in the API process.
	RunWorkers bool
}

func LoadConfig() Config {
	return Config{
		ServiceName:      envutil.String("SERVICE_NAME", "contentlib"),
		Environment:      envutil.String("ENVIRONMENT", "development"),
		Port:             envutil.String("PORT", "8080"),
		JWTSecretKey:     envutil.String("JWT_SECRET_KEY", ""),
		RedisAddr:        envutil.String("REDIS_ADDR", ""),
		AnalyticsChannel: envutil.String("REDIS_ANALYTICS_CHANNEL", ""),
		RunWorkers:       envutil.Bool("RUN_WORKERS", true),
	}
}
