package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database       DatabaseConfig
	Redis          RedisConfig
	JWT            JWTConfig
	CORS           CORSConfig
	Log            LogConfig
	Certificates   CertificatesConfig
	Reconciliation ReconciliationConfig
	Anomaly        AnomalyConfig
	Fraud          FraudConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// JWTConfig holds the secret used to verify access tokens issued by the auth service.
type JWTConfig struct {
	Secret string
	Issuer string
	Leeway time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// CertificatesConfig controls certificate hashing.
type CertificatesConfig struct {
	MasterSecret string
	HashInfo     string
}

// ReconciliationConfig holds the trust-score penalty table and pass tuning.
type ReconciliationConfig struct {
	PenaltyRegisteredNotAttended int
	PenaltyAttendedNotRegistered int
	PenaltyCertifiedNotAttended  int
	PenaltyAttendedNotCertified  int
	PenaltyDuplicateAttendance   int
	Parallelism                  int
	CacheTTL                     time.Duration
}

// AnomalyConfig governs isolation forest training and severity bucketing.
type AnomalyConfig struct {
	DefaultTenant     string
	MinSamples        int
	Trees             int
	SampleSize        int
	Seed              int64
	HighThreshold     float64
	MediumThreshold   float64
	LateScanFraction  float64
	TrainingTimeout   time.Duration
	TrainingWindow    time.Duration
	WorkerConcurrency int
	WorkerRetries     int
}

// FraudConfig tunes the heuristic rule pass.
type FraudConfig struct {
	OverrideRatioThreshold float64
	OverrideMinScans       int
	BurstWindow            time.Duration
	BurstMinCertificates   int
	RapidScanThreshold     int
	Parallelism            int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("ENABLE_REDIS"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret: v.GetString("JWT_SECRET"),
		Issuer: v.GetString("JWT_ISSUER"),
		Leeway: parseDuration(v.GetString("JWT_LEEWAY"), 30*time.Second),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Certificates = CertificatesConfig{
		MasterSecret: v.GetString("CERTIFICATE_MASTER_SECRET"),
		HashInfo:     v.GetString("CERTIFICATE_HASH_INFO"),
	}

	cfg.Reconciliation = ReconciliationConfig{
		PenaltyRegisteredNotAttended: v.GetInt("TRUST_PENALTY_REGISTERED_NOT_ATTENDED"),
		PenaltyAttendedNotRegistered: v.GetInt("TRUST_PENALTY_ATTENDED_NOT_REGISTERED"),
		PenaltyCertifiedNotAttended:  v.GetInt("TRUST_PENALTY_CERTIFIED_NOT_ATTENDED"),
		PenaltyAttendedNotCertified:  v.GetInt("TRUST_PENALTY_ATTENDED_NOT_CERTIFIED"),
		PenaltyDuplicateAttendance:   v.GetInt("TRUST_PENALTY_DUPLICATE_ATTENDANCE"),
		Parallelism:                  v.GetInt("RECONCILIATION_PARALLELISM"),
		CacheTTL:                     parseDuration(v.GetString("RECONCILIATION_CACHE_TTL"), time.Minute),
	}

	cfg.Anomaly = AnomalyConfig{
		DefaultTenant:     v.GetString("ANOMALY_DEFAULT_TENANT"),
		MinSamples:        v.GetInt("ANOMALY_MIN_SAMPLES"),
		Trees:             v.GetInt("ANOMALY_TREES"),
		SampleSize:        v.GetInt("ANOMALY_SAMPLE_SIZE"),
		Seed:              v.GetInt64("ANOMALY_SEED"),
		HighThreshold:     v.GetFloat64("ANOMALY_HIGH_THRESHOLD"),
		MediumThreshold:   v.GetFloat64("ANOMALY_MEDIUM_THRESHOLD"),
		LateScanFraction:  v.GetFloat64("ANOMALY_LATE_SCAN_FRACTION"),
		TrainingTimeout:   parseDuration(v.GetString("ANOMALY_TRAINING_TIMEOUT"), 2*time.Minute),
		TrainingWindow:    parseDuration(v.GetString("ANOMALY_TRAINING_WINDOW"), 180*24*time.Hour),
		WorkerConcurrency: v.GetInt("ANOMALY_WORKER_CONCURRENCY"),
		WorkerRetries:     v.GetInt("ANOMALY_WORKER_RETRIES"),
	}

	cfg.Fraud = FraudConfig{
		OverrideRatioThreshold: v.GetFloat64("FRAUD_OVERRIDE_RATIO_THRESHOLD"),
		OverrideMinScans:       v.GetInt("FRAUD_OVERRIDE_MIN_SCANS"),
		BurstWindow:            parseDuration(v.GetString("FRAUD_BURST_WINDOW"), time.Minute),
		BurstMinCertificates:   v.GetInt("FRAUD_BURST_MIN_CERTIFICATES"),
		RapidScanThreshold:     v.GetInt("FRAUD_RAPID_SCAN_THRESHOLD"),
		Parallelism:            v.GetInt("FRAUD_PARALLELISM"),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "unipass")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("ENABLE_REDIS", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")
	v.SetDefault("JWT_LEEWAY", "30s")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("CERTIFICATE_MASTER_SECRET", "dev_certificate_secret")
	v.SetDefault("CERTIFICATE_HASH_INFO", "certificate-verification-v1")

	v.SetDefault("TRUST_PENALTY_REGISTERED_NOT_ATTENDED", 5)
	v.SetDefault("TRUST_PENALTY_ATTENDED_NOT_REGISTERED", 25)
	v.SetDefault("TRUST_PENALTY_CERTIFIED_NOT_ATTENDED", 20)
	v.SetDefault("TRUST_PENALTY_ATTENDED_NOT_CERTIFIED", 0)
	v.SetDefault("TRUST_PENALTY_DUPLICATE_ATTENDANCE", 10)
	v.SetDefault("RECONCILIATION_PARALLELISM", 4)
	v.SetDefault("RECONCILIATION_CACHE_TTL", "1m")

	v.SetDefault("ANOMALY_DEFAULT_TENANT", "default")
	v.SetDefault("ANOMALY_MIN_SAMPLES", 30)
	v.SetDefault("ANOMALY_TREES", 100)
	v.SetDefault("ANOMALY_SAMPLE_SIZE", 256)
	v.SetDefault("ANOMALY_SEED", 42)
	v.SetDefault("ANOMALY_HIGH_THRESHOLD", -0.6)
	v.SetDefault("ANOMALY_MEDIUM_THRESHOLD", -0.3)
	v.SetDefault("ANOMALY_LATE_SCAN_FRACTION", 0.5)
	v.SetDefault("ANOMALY_TRAINING_TIMEOUT", "2m")
	v.SetDefault("ANOMALY_TRAINING_WINDOW", "4320h")
	v.SetDefault("ANOMALY_WORKER_CONCURRENCY", 1)
	v.SetDefault("ANOMALY_WORKER_RETRIES", 1)

	v.SetDefault("FRAUD_OVERRIDE_RATIO_THRESHOLD", 0.5)
	v.SetDefault("FRAUD_OVERRIDE_MIN_SCANS", 3)
	v.SetDefault("FRAUD_BURST_WINDOW", "1m")
	v.SetDefault("FRAUD_BURST_MIN_CERTIFICATES", 50)
	v.SetDefault("FRAUD_RAPID_SCAN_THRESHOLD", 10)
	v.SetDefault("FRAUD_PARALLELISM", 4)
}

func isMissingFile(err error) bool {
	return strings.Contains(err.Error(), "no such file or directory")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
