package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

var validate = validator.New()

type AppConfig struct {
	// FeaturesPath is the per-city feature table (city,feature_1,...,feature_n).
	FeaturesPath string `validate:"required"`

	// ModelPath is the zipped model container.
	ModelPath string `validate:"required"`

	// ParsePolicy decides what happens to a feature field that is not a number.
	ParsePolicy string `validate:"oneof=truncate nan zero drop"`

	// ONNX runtime settings, only used by onnx-backed artifacts.
	ONNXRuntimeLib string `validate:"required"`
	IntraOpThreads int    `validate:"min=1"`

	// HistoryPath enables the sqlite prediction journal when non-empty.
	HistoryPath string

	LogLevel     string `validate:"oneof=debug info warn warning error"`
	LogFile      string // empty means stderr
	LogMaxSizeMB int    `validate:"min=1"`
}

// Load reads configuration from environment with sensible defaults.
// A .env file in the working directory is applied first when present.
func Load() (*AppConfig, error) {
	// A missing .env is the normal case.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("INFO: error loading .env file: %v", err)
	}

	cfg := &AppConfig{
		FeaturesPath:   getenvDefault("FEATURES_PATH", "weather-dataset.csv"),
		ModelPath:      getenvDefault("MODEL_PATH", "weather-model.zip"),
		ParsePolicy:    getenvDefault("FEATURE_PARSE_POLICY", "truncate"),
		ONNXRuntimeLib: getenvDefault("ONNXRUNTIME_LIB", "libonnxruntime.so"),
		HistoryPath:    os.Getenv("HISTORY_DB_PATH"),
		LogLevel:       getenvDefault("LOG_LEVEL", "info"),
		LogFile:        os.Getenv("LOG_FILE"),
	}

	var err error
	if cfg.IntraOpThreads, err = getenvInt("ONNX_INTRA_OP_THREADS", 1); err != nil {
		return nil, err
	}
	if cfg.LogMaxSizeMB, err = getenvInt("LOG_MAX_SIZE_MB", 10); err != nil {
		return nil, err
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
