package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "lumina",
	Short: "Self-hosted photo gallery sync and face recognition service",
	Long: `Lumina keeps a local photo library, an S3-compatible object store and a
PostgreSQL catalog in agreement. It uploads new photos with generated
thumbnails, detects drift between the three copies, and clusters detected
faces into people for browsing.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
