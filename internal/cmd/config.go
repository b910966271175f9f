package main

import (
	"os"

	"github.com/duelmath/duelmath/internal/config"
)

const defaultConfigPath = "config.yaml"

func loadConfig() (*config.Config, error) {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = defaultConfigPath
	}
	return config.Load(path)
}
