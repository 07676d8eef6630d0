package main

import (
	"docqa/cmd"

	"github.com/joho/godotenv"
)

func init() {
	// Load .env file if exists
	_ = godotenv.Load()
}

func main() {
	cmd.Execute()
}
