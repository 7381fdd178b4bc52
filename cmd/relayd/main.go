package main

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	// A missing .env is fine; flags and environment still apply.
	_ = godotenv.Load()

	cfg := &config{}
	cobra.CheckErr(newCmd(cfg).Execute())
}
