package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"pricescout-backend/lib/configutil"
	"pricescout-backend/services/acquire"
)

var rootCmd = &cobra.Command{
	Use:   "pricescout",
	Short: "pricescout acquires product/price records from resistant storefronts.",
}

var configPath string
var timeoutFlag string

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "pricescout.json5", "path to the configuration file")
	rootCmd.PersistentFlags().StringVar(&timeoutFlag, "timeout", "", "override the overall timeout, e.g. 30s")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newService() (*acquire.Service, error) {
	cfg, err := configutil.ReadConfig[acquire.Config](configPath)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading %s: %w", configPath, err)
	}
	if timeoutFlag != "" {
		var d configutil.Duration
		if err := d.UnmarshalJSON([]byte(fmt.Sprintf("%q", timeoutFlag))); err != nil {
			return nil, err
		}
		cfg.OverallTimeout = d
	}
	return acquire.NewService(cfg, acquire.Deps{}), nil
}
