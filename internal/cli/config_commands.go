package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ragdesk/ragdesk/internal/api"
	"github.com/ragdesk/ragdesk/internal/config"
)

// newConfigCmd creates the 'config' command group.
func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage ragdesk configuration",
		Long: `Configuration management commands for ragdesk.

Commands:
  init  - Interactive configuration setup
  show  - Display current configuration
  test  - Test the backend connection
  path  - Show configuration file path`,
	}

	configCmd.AddCommand(newConfigInitCmd())
	configCmd.AddCommand(newConfigShowCmd())
	configCmd.AddCommand(newConfigTestCmd())
	configCmd.AddCommand(newConfigPathCmd())

	return configCmd
}

func configPath() (string, error) {
	if cfgFile != "" {
		return cfgFile, nil
	}
	return config.DefaultConfigPath()
}

// newConfigInitCmd creates the 'config init' command.
func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration interactively",
		Long: `Interactive configuration setup for ragdesk.

The configuration is saved to ~/.config/ragdesk/config (or --config).
Use --force to overwrite an existing configuration.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if !force {
				if _, err := os.Stat(path); err == nil {
					fmt.Fprintf(out, "Configuration already exists at: %s\n", path)
					fmt.Fprintln(out, "Use --force to overwrite or run 'config show' to view current config.")
					return nil
				}
			}

			fmt.Fprintln(out, "ragdesk Configuration Setup")
			fmt.Fprintln(out, "===========================")
			fmt.Fprintln(out)

			cfg := config.Default()
			reader := bufio.NewReader(cmd.InOrStdin())

			cfg.APIBaseURL = promptLine(reader, out, "Backend URL", cfg.APIBaseURL)

			fmt.Fprintln(out)
			fmt.Fprintln(out, "Ingestion Settings (press Enter for defaults)")
			fmt.Fprintln(out, "---------------------------------------------")
			if d, err := time.ParseDuration(promptLine(reader, out, "Poll interval", cfg.PollInterval.String())); err == nil {
				cfg.PollInterval = d
			}
			if d, err := time.ParseDuration(promptLine(reader, out, "Give up polling after", cfg.PollMaxDuration.String())); err == nil {
				cfg.PollMaxDuration = d
			}

			fmt.Fprintln(out)
			if answer := promptLine(reader, out, "Configure proxy? [y/N]", ""); strings.EqualFold(answer, "y") || strings.EqualFold(answer, "yes") {
				fmt.Fprintln(out, "Proxy modes: no-proxy, system, basic, ntlm")
				cfg.ProxyMode = promptLine(reader, out, "Proxy mode", "system")
				if cfg.ProxyMode == "basic" || cfg.ProxyMode == "ntlm" {
					cfg.ProxyHost = promptLine(reader, out, "Proxy host", "")
					if v, err := strconv.Atoi(promptLine(reader, out, "Proxy port", "8080")); err == nil && v > 0 {
						cfg.ProxyPort = v
					}
					cfg.ProxyUser = promptLine(reader, out, "Proxy user (password is asked at run time)", "")
				}
				cfg.NoProxy = promptLine(reader, out, "Hosts that bypass the proxy (comma-separated)", "")
			}

			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			if err := config.Save(cfg, path); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}

			GetLogger().Info().Str("path", path).Msg("Configuration saved")
			fmt.Fprintln(out)
			fmt.Fprintf(out, "✓ Configuration saved to: %s\n", path)
			fmt.Fprintln(out, "Test your configuration with: ragdesk config test")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite existing configuration")

	return cmd
}

// newConfigShowCmd creates the 'config show' command.
func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display current configuration",
		Long: `Display the merged configuration.

Priority: flags > environment (RAGDESK_API_URL, RAGDESK_SESSION_FILE,
RAGDESK_LOG_FILE) > config file > defaults`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			path, _ := configPath()
			out := cmd.OutOrStdout()

			fmt.Fprintln(out, "Current Configuration")
			fmt.Fprintln(out, "=====================")
			fmt.Fprintln(out)

			fmt.Fprintln(out, "Backend:")
			fmt.Fprintf(out, "  URL:          %s\n", cfg.APIBaseURL)
			fmt.Fprintf(out, "  Retries:      %d\n", cfg.APIRetryMax)
			fmt.Fprintf(out, "  Rate limit:   %g/s (burst %g)\n", cfg.RatePerSec, cfg.Burst)
			fmt.Fprintln(out)

			fmt.Fprintln(out, "Upload:")
			fmt.Fprintf(out, "  Attempts:      %d\n", cfg.UploadRetries)
			fmt.Fprintf(out, "  Transfer band: 0-%d%%\n", cfg.TransferBand)
			if cfg.UploadConcurrency > 0 {
				fmt.Fprintf(out, "  Concurrency:   %d\n", cfg.UploadConcurrency)
			} else {
				fmt.Fprintln(out, "  Concurrency:   auto")
			}
			fmt.Fprintln(out)

			fmt.Fprintln(out, "Ingestion:")
			fmt.Fprintf(out, "  Poll interval: %s\n", cfg.PollInterval)
			fmt.Fprintf(out, "  Poll budget:   %s\n", cfg.PollMaxDuration)
			fmt.Fprintf(out, "  Settle delay:  %s\n", cfg.SettleDelay)
			fmt.Fprintln(out)

			fmt.Fprintln(out, "Proxy:")
			fmt.Fprintf(out, "  Mode: %s\n", cfg.ProxyMode)
			if cfg.ProxyHost != "" {
				fmt.Fprintf(out, "  Host: %s:%d\n", cfg.ProxyHost, cfg.ProxyPort)
			}
			if cfg.ProxyUser != "" {
				fmt.Fprintf(out, "  User: %s\n", cfg.ProxyUser)
			}
			if cfg.NoProxy != "" {
				fmt.Fprintf(out, "  Bypass: %s\n", cfg.NoProxy)
			}
			fmt.Fprintln(out)

			fmt.Fprintf(out, "Session file:  %s\n", cfg.SessionFile)
			fmt.Fprintf(out, "Notifications: %t\n", cfg.Notifications)
			if cfg.LogFile != "" {
				fmt.Fprintf(out, "Log file:      %s\n", cfg.LogFile)
			}
			fmt.Fprintln(out)

			fmt.Fprintf(out, "Configuration file: %s\n", path)
			if _, err := os.Stat(path); os.IsNotExist(err) {
				fmt.Fprintln(out, "  (file does not exist - using defaults)")
			}
			return nil
		},
	}
}

// newConfigTestCmd creates the 'config test' command.
func newConfigTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Test the backend connection",
		Long:  `Check that the backend answers with the current configuration.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			logger := GetLogger()

			fmt.Fprintf(out, "Backend URL: %s\n", cfg.APIBaseURL)
			fmt.Fprintln(out, "Testing connection...")

			client, err := api.NewClient(cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to create API client: %w", err)
			}
			sess, err := resolveSession(cfg)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(GetContext(), 10*time.Second)
			defer cancel()

			labels, err := client.ListCategories(ctx, sess.UserID)
			if err != nil {
				logger.Error().Err(err).Msg("Connection test failed")
				fmt.Fprintln(out, "✗ Connection FAILED")
				fmt.Fprintf(out, "  Error: %v\n", err)
				return fmt.Errorf("connection test failed")
			}

			fmt.Fprintln(out, "✓ Connection SUCCESSFUL")
			fmt.Fprintf(out, "  User %s has %d categories\n", sess.UserID, len(labels))
			return nil
		},
	}
}

// newConfigPathCmd creates the 'config path' command.
func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "  %s\n", path)

			if info, err := os.Stat(path); err == nil {
				fmt.Fprintln(out, "Status: ✓ File exists")
				fmt.Fprintf(out, "Modified: %s\n", info.ModTime().Format("2006-01-02 15:04:05"))
			} else {
				fmt.Fprintln(out, "Status: File does not exist")
				fmt.Fprintln(out, "Create a configuration file with: ragdesk config init")
			}
			return nil
		},
	}
}
