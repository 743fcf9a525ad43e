package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/matheus3301/chatsync/internal/config"
	"github.com/spf13/cobra"
)

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	rootCmd.AddCommand(configCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change the configuration file",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, name, err := resolve()
		if err != nil {
			return err
		}
		if jsonFlag {
			return outputJSON(cfg)
		}

		table := newTable(os.Stdout, "Key", "Value")
		table.Append([]string{"profile", name})
		table.Append([]string{"server_url", cfg.ServerURL})
		table.Append([]string{"user_id", valueOr(cfg.UserID, "(not set)")})
		table.Append([]string{"token", maskToken(cfg.Token)})
		table.Append([]string{"user_ttl", cfg.UserTTL.String()})
		table.Append([]string{"placeholder_tolerance", cfg.PlaceholderTolerance.String()})
		table.Append([]string{"request_timeout", cfg.RequestTimeout.String()})
		table.Append([]string{"log_level", cfg.LogLevel})
		table.Render()
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a value in the configuration file",
	Args:  cobra.ExactArgs(2),
	RunE: func(_ *cobra.Command, args []string) error {
		cfg, err := config.Load(configFlag)
		if errors.Is(err, fs.ErrNotExist) {
			cfg, err = config.Default(), nil
		}
		if err != nil {
			return fmt.Errorf("read config: %w", err)
		}
		if err := setValue(cfg, args[0], args[1]); err != nil {
			return err
		}
		if err := cfg.CheckValues(); err != nil {
			return err
		}
		if err := config.Save(configFlag, cfg); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		success("%s updated in %s", args[0], configFlag)
		return nil
	},
}

func setValue(cfg *config.Config, key, value string) error {
	duration := func(dst *time.Duration) error {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = d
		return nil
	}

	switch key {
	case "default_profile":
		cfg.DefaultProfile = value
	case "server_url":
		cfg.ServerURL = value
	case "user_id":
		cfg.UserID = value
	case "token":
		cfg.Token = value
	case "log_level":
		cfg.LogLevel = value
	case "user_ttl":
		return duration(&cfg.UserTTL)
	case "placeholder_tolerance":
		return duration(&cfg.PlaceholderTolerance)
	case "request_timeout":
		return duration(&cfg.RequestTimeout)
	default:
		return fmt.Errorf("unknown config key %q", key)
	}
	return nil
}

func maskToken(token string) string {
	if token == "" {
		return "(not set)"
	}
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "…" + token[len(token)-4:]
}
