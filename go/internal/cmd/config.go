package main

import (
	"os"

	"github.com/mcdev12/tasktimer/go/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func loadConfig() (*config.Config, error) {
	return config.Load(getEnv("TIMER_CONFIG", "config.yaml"))
}

func setupLogging(level zerolog.Level) {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(level)
}
