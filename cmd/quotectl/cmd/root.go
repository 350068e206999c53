// Package cmd provides the quotectl commands.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shiva/courierquote/config"
	"github.com/shiva/courierquote/internal/repository"
	"github.com/shiva/courierquote/internal/service"
	"github.com/shiva/courierquote/pkg/db"
	"github.com/shiva/courierquote/pkg/logger"
)

var (
	jsonOutput bool
	useDB      bool
	verbose    bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "quotectl",
	Short: "Price courier jobs from the command line",
	Long: `quotectl runs the quoting core without the HTTP server.

It reads the same environment and .env file as the server.

Examples:
  quotectl quote "SW1A 1AA" "M1 1AE"
  quotectl quote --distance 198.4 --at 2026-03-10T23:30:00Z "SW1A 1AA" "M1 1AE"
  quotectl price --vehicle luton_van --service timed --distance 40
  quotectl rates --json`,
	SilenceUsage: true,
}

// Execute runs the CLI
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print JSON instead of a table")
	rootCmd.PersistentFlags().BoolVar(&useDB, "db", false, "merge rate rows from Postgres")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log to stderr")

	rootCmd.AddCommand(quoteCmd)
	rootCmd.AddCommand(priceCmd)
	rootCmd.AddCommand(ratesCmd)
}

// env is everything a command needs, built from config.
type env struct {
	cfg   *config.Config
	rates *service.RateBook
	log   *zap.Logger
	close func()
}

func loadEnv(ctx context.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	log := zap.NewNop()
	if verbose {
		log = logger.New(cfg.Log)
	}

	e := &env{cfg: cfg, log: log, close: func() {}}

	var source service.RateSource
	if useDB {
		pool, err := db.NewPostgresPool(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		e.close = pool.Close
		source = repository.NewRateRepository(pool)
		cfg.Pricing.RatesFromDB = true
	}

	e.rates, err = service.NewRateBook(cfg, source, log)
	if err != nil {
		e.close()
		return nil, err
	}
	if err := e.rates.Reload(ctx); err != nil {
		e.close()
		return nil, fmt.Errorf("load rate tables: %w", err)
	}
	return e, nil
}

// parseAt reads an RFC 3339 flag value; empty means zero time.
func parseAt(flag, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, fmt.Errorf("--%s: %w", flag, err)
	}
	return &t, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
