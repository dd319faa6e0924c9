package kernel

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"gorm.io/gorm"
)

var (
	once       sync.Once
	appRuntime *AppRuntime
)

const (
	defaultBatchSize      = 50
	defaultInterCallDelay = 300 * time.Millisecond
	defaultSyncWindow     = 24 * time.Hour
	defaultRecoveryHours  = 24
	defaultGatewayTimeout = 10 * time.Second
	defaultLockTTL        = 10 * time.Minute
	defaultAlertTopic     = "payment.reconciled"
)

type AppRuntime struct {
	Host string

	ServiceName           string
	ServiceVersion        string
	DeploymentEnvironment string

	DatabaseDSN    string
	DatabaseClient *gorm.DB

	JaegerEndpoint  string
	MetricsExporter string // prometheus, otlp-http, otlp-grpc
	MetricsEndpoint string
	Insecure        bool

	GatewayUrl      string
	GatewayClientID string
	GatewayApiKey   string
	GatewayTimeout  time.Duration

	BatchSize      int
	InterCallDelay time.Duration
	SyncWindow     time.Duration
	RecoveryHours  int

	KafkaBrokers    []string
	KafkaAlertTopic string

	RedisAddr string
	LockTTL   time.Duration

	// sha512 hex of the key expected in X-Api-Key on the admin endpoints
	AdminKeyHash string

	Diagnostic *AppDiagnostic
}

func LoadConfig() *AppRuntime {
	once.Do(func() {
		appEnv := os.Getenv("API_ENV")
		if appEnv == "" {
			appEnv = "development"
		}

		env, err := godotenv.Read(".env." + appEnv)
		if err != nil {
			log.Warn().Err(err).Str("api_env", appEnv).Msg("no env file, falling back to process environment")
			env = environ()
		}

		appRuntime = ConfigFromEnv(env)
	})
	return appRuntime
}

// ConfigFromEnv builds a runtime from a flat key/value map. Missing or
// malformed tuning values fall back to their defaults.
func ConfigFromEnv(env map[string]string) *AppRuntime {
	serviceName := env["SERVICE_NAME"]
	if serviceName == "" {
		serviceName = "payrecon"
	}

	art := &AppRuntime{
		Host:        env["HOST"],
		DatabaseDSN: env["DATABASE_DSN"],

		ServiceName:           serviceName,
		ServiceVersion:        env["SERVICE_VERSION"],
		DeploymentEnvironment: env["DEPLOY_ENV"],

		JaegerEndpoint:  env["JAEGER_ENDPOINT"],
		MetricsExporter: env["METRICS_EXPORTER"],
		MetricsEndpoint: env["METRICS_ENDPOINT"],
		Insecure:        env["INSECURE"] == "true",

		GatewayUrl:      strings.TrimRight(env["GATEWAY_URL"], "/"),
		GatewayClientID: env["GATEWAY_CLIENT_ID"],
		GatewayApiKey:   env["GATEWAY_API_KEY"],
		GatewayTimeout:  durationOr(env, "GATEWAY_TIMEOUT", defaultGatewayTimeout),

		BatchSize:      intOr(env, "RECON_BATCH_SIZE", defaultBatchSize),
		InterCallDelay: durationOr(env, "RECON_INTER_CALL_DELAY", defaultInterCallDelay),
		SyncWindow:     durationOr(env, "RECON_SYNC_WINDOW", defaultSyncWindow),
		RecoveryHours:  intOr(env, "RECON_RECOVERY_HOURS", defaultRecoveryHours),

		KafkaBrokers:    splitList(env["KAFKA_BROKERS"]),
		KafkaAlertTopic: env["KAFKA_ALERT_TOPIC"],

		RedisAddr: env["REDIS_ADDR"],
		LockTTL:   durationOr(env, "RECON_LOCK_TTL", defaultLockTTL),

		AdminKeyHash: strings.ToLower(env["ADMIN_KEY_HASH"]),

		Diagnostic: NewDiagnostic(otel.Tracer(serviceName+"-tracer"), otel.Meter(serviceName+"-meter")),
	}

	if art.Host == "" {
		art.Host = ":8080"
	}
	if art.MetricsExporter == "" {
		art.MetricsExporter = "prometheus"
	}
	if art.KafkaAlertTopic == "" {
		art.KafkaAlertTopic = defaultAlertTopic
	}

	return art
}

func environ() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	return env
}

func intOr(env map[string]string, key string, def int) int {
	raw, ok := env[key]
	if !ok || raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		log.Warn().Str("key", key).Str("value", raw).Int("default", def).Msg("invalid integer, using default")
		return def
	}
	return v
}

func durationOr(env map[string]string, key string, def time.Duration) time.Duration {
	raw, ok := env[key]
	if !ok || raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil || v < 0 {
		log.Warn().Str("key", key).Str("value", raw).Dur("default", def).Msg("invalid duration, using default")
		return def
	}
	return v
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
