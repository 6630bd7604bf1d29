package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the server settings, read from the environment (a .env
// file is loaded first when present).
type Config struct {
	Addr          string
	PublicBaseURL string
	DatabaseURL   string
	GridSize      int
	GameDuration  time.Duration
	Dev           bool
}

func Load() Config {
	return Config{
		Addr:          getEnv("ADDR", ":8080"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", "http://localhost:8080"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		GridSize:      getEnvAsInt("GRID_SIZE", 4),
		GameDuration:  time.Duration(getEnvAsInt("GAME_DURATION_MS", 60_000)) * time.Millisecond,
		Dev:           getEnv("ENV", "dev") == "dev",
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
