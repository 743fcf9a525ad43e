package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/matheus3301/chatsync/internal/model"
	"github.com/spf13/cobra"
)

var nameFlag string

func init() {
	createCmd.Flags().StringVar(&nameFlag, "name", "", "conversation name")
	rootCmd.AddCommand(conversationsCmd)
	rootCmd.AddCommand(createCmd)
}

var conversationsCmd = &cobra.Command{
	Use:     "conversations",
	Aliases: []string{"ls"},
	Short:   "List conversations, newest first",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return oneShot(cmd, func(ctx context.Context, s *services) error {
			e, err := s.chats.EnsureConversations(ctx)
			if err != nil {
				return fmt.Errorf("fetch conversations: %w", err)
			}
			if jsonFlag {
				return outputJSON(e.Value)
			}
			if len(e.Value) == 0 {
				fmt.Println("No conversations.")
				return nil
			}

			names := s.resolveNames(ctx, e.Value)
			table := newTable(os.Stdout, "ID", "Title", "Members", "Last Active", "Last Message")
			for _, c := range e.Value {
				table.Append([]string{
					c.ID,
					c.Title(s.cfg.UserID, names),
					fmt.Sprint(len(c.RecipientIDs)),
					formatTime(c.LastMessageTimestamp),
					c.LastMessagePreview,
				})
			}
			table.Render()
			return nil
		})
	},
}

var createCmd = &cobra.Command{
	Use:   "create <user-id> [user-id...]",
	Short: "Start a conversation with the given users",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return oneShot(cmd, func(ctx context.Context, s *services) error {
			conv, err := s.chats.CreateConversation(ctx, nameFlag, args)
			if err != nil {
				return err
			}
			if jsonFlag {
				return outputJSON(conv)
			}
			if conv.Name != "" {
				success("created conversation %s (%s) with %s", conv.ID, conv.Name, strings.Join(conv.RecipientIDs, ", "))
				return nil
			}
			success("created conversation %s with %s", conv.ID, strings.Join(conv.RecipientIDs, ", "))
			return nil
		})
	},
}

// resolveNames fetches the profiles of every member and returns a resolver
// falling back to the user ID.
func (s *services) resolveNames(ctx context.Context, convs []model.Conversation) func(string) string {
	seen := make(map[string]string)
	for _, c := range convs {
		for _, id := range c.RecipientIDs {
			if _, ok := seen[id]; ok || id == s.cfg.UserID {
				continue
			}
			seen[id] = id
			if u, err := s.users.EnsureUser(ctx, id); err == nil && u.Value.DisplayName != "" {
				seen[id] = u.Value.DisplayName
			}
		}
	}
	return func(id string) string {
		if n, ok := seen[id]; ok {
			return n
		}
		return id
	}
}
