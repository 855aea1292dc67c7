package main

import (
	"os"

	"github.com/joho/godotenv"
)

func main() {
	// .env is optional outside development
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
