package config

import (
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config enthält alle Konfigurationsparameter aus Umgebungsvariablen.
type Config struct {
	MongoURI string `envconfig:"MONGO_URI" required:"true"`
	MongoDB  string `envconfig:"MONGO_DB" default:"paper_review"`

	HTTPPort string `envconfig:"HTTP_PORT" default:"4242"`

	// Optionaler API-Key für die Admin-Endpunkte. Leer = offen (lokale Entwicklung).
	APISecretKey string `envconfig:"API_SECRET_KEY"`

	RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
	// Cache-TTL für das Analytics-Payload in Sekunden.
	AnalyticsCacheTTL int `envconfig:"ANALYTICS_CACHE_TTL" default:"300"`

	S3Key    string `envconfig:"S3_KEY" required:"true"`
	S3Secret string `envconfig:"S3_SECRET" required:"true"`
	S3URL    string `envconfig:"S3_URL" required:"true"`
	S3Region string `envconfig:"S3_REGION" required:"true"`
	S3Bucket string `envconfig:"S3_BUCKET" required:"true"`

	// Zeitplan für den nächtlichen Analytics-Snapshot nach S3.
	SnapshotSchedule string `envconfig:"SNAPSHOT_SCHEDULE" default:"0 3 * * *"`
}

// Load lädt die Konfiguration aus den Umgebungsvariablen.
func Load() (*Config, error) {
	_ = godotenv.Load()
	var c Config
	err := envconfig.Process("", &c)
	return &c, err
}
