package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	ListenAddr  string
	DBPath      string
	PhotoPath   string
	PreviewPath string
	MaxDrafts   int
	FieldsFile  string
	LogLevel    string
	LogFile     string
	TestMode    bool
}

// Load reads the configuration from the environment. Variables from a .env
// file in the working directory are applied first; variables already set in
// the environment take precedence.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	maxDrafts, err := strconv.Atoi(getEnv("MAX_DRAFTS", "1000"))
	if err != nil || maxDrafts <= 0 {
		return nil, fmt.Errorf("MAX_DRAFTS must be a positive integer, got %q", os.Getenv("MAX_DRAFTS"))
	}

	return &Config{
		ListenAddr:  getEnv("LISTEN_ADDR", ":8080"),
		DBPath:      getEnv("DB_PATH", "/data/adpost.db"),
		PhotoPath:   getEnv("PHOTO_LOCAL_PATH", "/data/photos"),
		PreviewPath: getEnv("PREVIEW_LOCAL_PATH", "/data/previews"),
		MaxDrafts:   maxDrafts,
		FieldsFile:  getEnv("FIELDS_FILE", ""),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFile:     getEnv("LOG_FILE", ""),
		TestMode:    os.Getenv("ADPOST_TEST_MODE") == "1",
	}, nil
}

func getEnv(key, defaultVal string) string {
	if val, exists := os.LookupEnv(key); exists {
		return val
	}
	return defaultVal
}
