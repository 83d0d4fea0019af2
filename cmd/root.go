package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"

	"github.com/Rib4ko/backendYT/config"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	cfg     *config.Config
	cfgErr  error
	logger  = log.New(os.Stderr, "", log.LstdFlags)
)

var rootCmd = &cobra.Command{
	Use:   "backendyt",
	Short: "Cut clips out of online videos and hand them out for download",
	Long: `backendyt downloads a video with yt-dlp, re-encodes the requested time range
with ffmpeg and serves the clip once before removing it.

  - serve: run the HTTP API (POST /clip, GET /download/{filename})
  - clip:  produce a single clip from the command line
  - config: print the effective configuration

Example:
  backendyt serve
  backendyt clip --url https://www.youtube.com/watch?v=dQw4w9WgXcQ --start 5 --end 15`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./backendyt_config.yaml or /etc/backendyt/backendyt_config.yaml)")
}

func initConfig() {
	// A .env file is optional; the environment may already be set.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Printf("Warning: could not read .env: %v", err)
	}
	cfg, cfgErr = config.Load(cfgFile)
}

// GetConfig returns the loaded configuration or the reason it failed to load.
func GetConfig() (*config.Config, error) {
	if cfgErr != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", cfgErr)
	}
	return cfg, nil
}
