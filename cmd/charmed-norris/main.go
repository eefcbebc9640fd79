package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/charmed-norris/pkg/joke"
	"github.com/cuemby/charmed-norris/pkg/log"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "charmed-norris",
	Short: "Serve random Chuck Norris jokes over HTTP",
	Long: `charmed-norris answers GET / with a random joke from api.chucknorris.io.

The listen port comes from CHUCK_PORT (default 3333) and the joke category
from CHUCK_CATEGORY; an empty category means any category.`,
	Version:      Version,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		logLevel, _ := cmd.Flags().GetString("log-level")
		logJSON, _ := cmd.Flags().GetBool("log-json")
		baseURL, _ := cmd.Flags().GetString("api-url")

		log.Init(log.Config{
			Level:      log.ParseLevel(logLevel),
			JSONOutput: logJSON,
		})
		logger := log.WithComponent("workload")

		settings := joke.SettingsFromEnv()
		client := joke.NewClient(baseURL, joke.DefaultTimeout)

		server := &http.Server{
			Addr:              ":" + settings.Port,
			Handler:           joke.NewRouter(client, settings.Category),
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
		}()

		logger.Info().
			Str("port", settings.Port).
			Str("category", settings.Category).
			Str("upstream", client.RandomURL(settings.Category)).
			Msg("Serving jokes")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case <-sigCh:
			logger.Info().Msg("Shutting down")
		case err := <-errCh:
			return fmt.Errorf("http server error: %v", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(ctx)
	},
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"charmed-norris version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.Flags().String("api-url", joke.DefaultBaseURL, "Joke API base URL")
	rootCmd.Flags().String("log-level", "info", "Log level (debug|info|warn|error)")
	rootCmd.Flags().Bool("log-json", false, "Log as JSON")
}
