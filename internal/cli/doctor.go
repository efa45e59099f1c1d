package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ppiankov/loreguard/internal/cache"
	"github.com/ppiankov/loreguard/internal/llm"
)

// doctorCmd checks that the configured provider can be used
var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the analysis provider configuration",
	Long: `Doctor resolves the configured provider, checks its credential and
verifies that the service is reachable. No analysis is sent.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(viper.GetViper())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		fmt.Fprintf(out, "Provider:    %s\n", cfg.LLM.Provider)
		fmt.Fprintf(out, "Model:       %s\n", cfg.LLM.Model)
		fmt.Fprintf(out, "Endpoint:    %s\n", llm.DefaultEndpoint(llm.ConfigFromModel(cfg.LLM, "")))
		fmt.Fprintf(out, "Credential:  %s\n", credentialStatus(cfg.LLM))

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		client := llm.NewClient(cfg.LLM, cfg.Analysis, llm.WithLogger(logger.Named("llm")))
		if err := client.Ping(ctx); err != nil {
			fmt.Fprintf(out, "Status:      ✗ %v\n", err)
			return err
		}
		fmt.Fprintf(out, "Status:      ✓ reachable\n")
		return nil
	},
}

// cacheCmd manages the reply cache
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the analysis reply cache",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cached analysis reply",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(viper.GetViper())
		if err != nil {
			return err
		}
		cfg.Cache.Enabled = true
		if err := cache.FromConfig(cfg.Cache).Clear(); err != nil {
			return fmt.Errorf("clear cache: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Cleared cache: %s\n", cfg.Cache.Dir)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheClearCmd)
}
