package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"podmill/internal/config"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}

	configCmd.AddCommand(newConfigShowCommand(ctx))
	configCmd.AddCommand(newConfigValidateCommand(ctx))
	configCmd.AddCommand(newConfigInitCommand())

	return configCmd
}

func newConfigShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the resolved configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, exists, err := config.Load(ctx.configPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			source := path
			if !exists {
				source = fmt.Sprintf("%s (missing, using defaults)", path)
			}

			printSection(out, "Configuration", colorize)
			printSetting(out, "Source", source)
			fmt.Fprintln(out)

			printSection(out, "Server", colorize)
			printSetting(out, "Bind", cfg.Server.Bind)
			printSetting(out, "Request timeout", fmt.Sprintf("%ds", cfg.Server.RequestTimeout))
			fmt.Fprintln(out)

			printSection(out, "Paths", colorize)
			printSetting(out, "Staging dir", cfg.Paths.StagingDir)
			printSetting(out, "Log dir", cfg.Paths.LogDir)
			printSetting(out, "Object store", cfg.Storage.DataDir)
			fmt.Fprintln(out)

			printSection(out, "Services", colorize)
			printSetting(out, "Redis", serviceTarget(cfg.Redis.URL))
			printSetting(out, "MongoDB", serviceTarget(cfg.Mongo.URI))
			printSetting(out, "RabbitMQ", serviceTarget(cfg.RabbitMQ.URL))
			printSetting(out, "Transcriber model", cfg.Transcriber.Model)
			printSetting(out, "Generator model", cfg.ContentGen.Model)
			fmt.Fprintln(out)

			printSection(out, "Pipeline", colorize)
			printSetting(out, "Runner", cfg.Pipeline.Runner)
			printSetting(out, "Workers", fmt.Sprintf("%d", cfg.Pipeline.Workers))
			printSetting(out, "Job retention", fmt.Sprintf("%dh", cfg.Jobs.RetentionHours))
			printSetting(out, "Cleanup interval", fmt.Sprintf("%dm", cfg.Jobs.CleanupIntervalMinutes))
			printSetting(out, "Limits fail open", yesNo(cfg.Limits.FailOpen))
			fmt.Fprintln(out)

			printSection(out, "Credentials", colorize)
			printSetting(out, "JWT secret", secretStatus(cfg.Auth.JWTSecret))
			printSetting(out, "Signing secret", secretStatus(cfg.Storage.SigningSecret))
			printSetting(out, "Transcriber key", secretStatus(cfg.Transcriber.APIKey))
			printSetting(out, "Generator key", secretStatus(cfg.ContentGen.APIKey))
			fmt.Fprintln(out)

			printSection(out, "Logging", colorize)
			printSetting(out, "Level", cfg.Logging.Level)
			printSetting(out, "Format", cfg.Logging.Format)
			printSetting(out, "Retention days", fmt.Sprintf("%d", cfg.Logging.RetentionDays))
			printSetting(out, "Ntfy topic", serviceTarget(cfg.Notifications.NtfyTopic))
			return nil
		},
	}
}

func newConfigInitCommand() *cobra.Command {
	var targetPath string
	var overwrite bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Create a sample configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target := strings.TrimSpace(targetPath)
			if target == "" {
				defaultPath, err := config.DefaultConfigPath()
				if err != nil {
					return fmt.Errorf("determine default config path: %w", err)
				}
				target = defaultPath
			} else {
				expanded, err := config.ExpandPath(target)
				if err != nil {
					return fmt.Errorf("resolve config path: %w", err)
				}
				target = expanded
			}

			dir := filepath.Dir(target)
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create config directory %q: %w", dir, err)
			}

			if !overwrite {
				if _, err := os.Stat(target); err == nil {
					return fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", target)
				} else if err != nil && !os.IsNotExist(err) {
					return fmt.Errorf("check config path: %w", err)
				}
			}

			if err := config.CreateSample(target); err != nil {
				return fmt.Errorf("create sample config: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			fmt.Fprintln(out, "Edit the file to set jwt_secret and the transcriber and contentgen API keys before running Podmill.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite existing configuration if present")
	return cmd
}

func newConfigValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, exists, err := config.Load(ctx.configPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return fmt.Errorf("ensure directories: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config path: %s\n", path)
			if !exists {
				fmt.Fprintln(out, "Config file did not exist; defaults were used")
			}
			fmt.Fprintln(out, "Configuration valid")
			return nil
		},
	}
}

func printSection(out io.Writer, title string, colorize bool) {
	for _, line := range renderSectionHeader(title, colorize) {
		fmt.Fprintln(out, line)
	}
}

func printSetting(out io.Writer, label, value string) {
	if strings.TrimSpace(value) == "" {
		value = "-"
	}
	fmt.Fprintf(out, "  %-18s %s\n", label+":", value)
}

func serviceTarget(value string) string {
	if strings.TrimSpace(value) == "" {
		return "not configured"
	}
	return value
}

func secretStatus(value string) string {
	if strings.TrimSpace(value) == "" {
		return "not set"
	}
	return "set"
}
