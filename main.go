package main

import (
	"os"

	"automation-engine/internal/app"
)

// @title Automation Engine API
// @version 1.0
// @description Trigger automation engine for inspection workflows
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	if err := app.Run(); err != nil {
		os.Exit(1)
	}
}
