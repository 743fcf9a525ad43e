package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(messagesCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(userCmd)
}

var messagesCmd = &cobra.Command{
	Use:   "messages <conversation-id>",
	Short: "Show the messages of a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return oneShot(cmd, func(ctx context.Context, s *services) error {
			e, err := s.messages.EnsureMessages(ctx, args[0])
			if err != nil {
				return fmt.Errorf("fetch messages: %w", err)
			}
			if jsonFlag {
				return outputJSON(e.Value)
			}
			if len(e.Value) == 0 {
				fmt.Println("No messages.")
				return nil
			}

			table := newTable(os.Stdout, "Time", "From", "Text")
			for _, m := range e.Value {
				from := m.SenderID
				if from == s.cfg.UserID {
					from = "you"
				} else if u, err := s.users.EnsureUser(ctx, m.SenderID); err == nil && u.Value.DisplayName != "" {
					from = u.Value.DisplayName
				}
				table.Append([]string{formatTime(m.Timestamp), from, m.Text})
			}
			table.Render()
			return nil
		})
	},
}

var sendCmd = &cobra.Command{
	Use:   "send <conversation-id> <text...>",
	Short: "Send a message and wait for the server to accept it",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return oneShot(cmd, func(ctx context.Context, s *services) error {
			p, err := s.messages.Send(ctx, args[0], strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			msg, err := p.Wait(ctx)
			if err != nil {
				return fmt.Errorf("send: %w", err)
			}
			if jsonFlag {
				return outputJSON(msg)
			}
			success("sent %s %s", msg.ID, dim(formatTime(msg.Timestamp)))
			return nil
		})
	},
}

var userCmd = &cobra.Command{
	Use:   "user <user-id>",
	Short: "Show a user profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return oneShot(cmd, func(ctx context.Context, s *services) error {
			e, err := s.users.EnsureUser(ctx, args[0])
			if err != nil {
				return fmt.Errorf("fetch user: %w", err)
			}
			if jsonFlag {
				return outputJSON(e.Value)
			}
			fmt.Printf("ID:   %s\n", e.Value.ID)
			fmt.Printf("Name: %s\n", e.Value.DisplayName)
			return nil
		})
	},
}
