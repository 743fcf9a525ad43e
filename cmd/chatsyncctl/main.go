package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gookit/color"
	"github.com/matheus3301/chatsync/internal/api"
	"github.com/matheus3301/chatsync/internal/app"
	"github.com/matheus3301/chatsync/internal/config"
	"github.com/matheus3301/chatsync/internal/profile"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

var (
	profileFlag string
	configFlag  string
	jsonFlag    bool
	verboseFlag bool
	timeoutFlag time.Duration
)

var rootCmd = &cobra.Command{
	Use:           "chatsyncctl",
	Short:         "chatsync command line client",
	Long:          "Query and update conversations through the chatsync cache without the terminal UI.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&profileFlag, "profile", "", "profile name (overrides config default)")
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", profile.ConfigPath(), "config file")
	rootCmd.PersistentFlags().BoolVar(&jsonFlag, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "log to stderr")
	rootCmd.PersistentFlags().DurationVar(&timeoutFlag, "timeout", 30*time.Second, "timeout for one-shot commands")
}

// services are the api services a command can use.
type services struct {
	chats    *api.ChatService
	messages *api.MessageService
	users    *api.UserService
	session  *api.SessionService
	cfg      *config.Config
}

func resolve() (*config.Config, string, error) {
	cfg, err := config.Resolve(configFlag, profile.EnvPath())
	if err != nil {
		return nil, "", err
	}
	name := profile.Resolve(profileFlag, cfg)
	if err := profile.ValidateName(name); err != nil {
		return nil, "", err
	}
	return cfg, name, nil
}

// withApp starts the client, runs fn and stops the client. With push set
// the cache follows the server's push channel while fn runs.
func withApp(ctx context.Context, push bool, fn func(ctx context.Context, s *services) error) error {
	cfg, name, err := resolve()
	if err != nil {
		return err
	}

	s := &services{cfg: cfg}
	fxApp := fx.New(
		app.Module(app.Params{
			Profile: name,
			Config:  cfg,
			Command: "chatsyncctl",
			Push:    push,
			Console: verboseFlag,
		}),
		fx.NopLogger,
		fx.Populate(&s.chats, &s.messages, &s.users, &s.session),
	)
	if err := fxApp.Err(); err != nil {
		return err
	}

	startCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := fxApp.Start(startCtx); err != nil {
		return err
	}
	defer func() {
		stopCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
		defer stop()
		_ = fxApp.Stop(stopCtx)
	}()

	return fn(ctx, s)
}

// oneShot wraps a command body with the --timeout deadline.
func oneShot(cmd *cobra.Command, fn func(ctx context.Context, s *services) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeoutFlag)
	defer cancel()
	return withApp(ctx, false, fn)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.Red.Sprintf("error: %v", err))
		os.Exit(1)
	}
}

