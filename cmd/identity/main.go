package main

import (
	"log"

	"github.com/joho/godotenv"

	"github.com/taskhive/identity/internal/identity/app"
)

func main() {
	// A missing .env file is fine; the environment itself still applies.
	_ = godotenv.Load()

	application, err := app.New(app.LoadConfig())
	if err != nil {
		log.Fatalf("failed to start identity service: %v", err)
	}

	if err := application.Run(); err != nil {
		log.Fatalf("identity service exited: %v", err)
	}
}
