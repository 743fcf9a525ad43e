package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/gookit/color"
	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/cache"
	"github.com/matheus3301/chatsync/internal/model"
	"github.com/matheus3301/chatsync/internal/status"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(watchCmd)
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the push channel and print new messages until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return withApp(ctx, true, func(ctx context.Context, s *services) error {
			if _, err := s.chats.EnsureConversations(ctx); err != nil {
				return fmt.Errorf("fetch conversations: %w", err)
			}

			lines := make(chan string, 64)
			printed := make(map[string]bool)

			// Observers run on the push goroutine; printing happens below.
			unsub := s.messages.SubscribeAllMessages(func(e cache.Entry[[]model.Message]) {
				for _, m := range e.Value {
					if m.IsPending() || printed[m.ID] {
						continue
					}
					printed[m.ID] = true
					lines <- fmt.Sprintf("%s %s %s: %s",
						dim(formatTime(m.Timestamp)), color.Cyan.Sprint(e.Key.ID()),
						color.Bold.Sprint(s.users.DisplayName(m.SenderID)), m.Text)
				}
			})
			defer unsub()

			go func() {
				_ = s.session.WatchLink(ctx, func(evt bus.Event) {
					switch evt.Kind {
					case bus.PushLinkChanged:
						if ch, ok := evt.Payload.(status.StatusChange); ok {
							lines <- color.Yellow.Sprintf("push link %s -> %s", ch.From, ch.To)
						}
					case bus.PushReset:
						lines <- color.Yellow.Sprint("push channel reconnected; cached lists invalidated")
					case bus.PushRejected:
						lines <- color.Red.Sprintf("rejected push event: %v", evt.Payload)
					}
				})
			}()

			fmt.Println(dim("watching " + s.cfg.ServerURL + " (ctrl-c to stop)"))
			for {
				select {
				case line := <-lines:
					fmt.Println(line)
				case <-ctx.Done():
					return nil
				}
			}
		})
	},
}
