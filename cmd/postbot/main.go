package main

import (
	"log"

	"github.com/linearity/postbot/core/cmd"
	"github.com/linearity/postbot/internal/app"
)

func main() {
	err := cmd.Run(cmd.Options{
		ConfigEnvVar:      "CONFIG_PATH",
		DefaultConfigPath: "config.yaml",
		LoadConfig:        app.LoadConfig,
		Bootstrap:         app.New,
	})
	if err != nil {
		log.Fatalf("postbot: %v", err)
	}
}
