package main

import (
	"context"
	"fmt"

	"github.com/gookit/color"
	"github.com/matheus3301/chatsync/internal/lock"
	"github.com/matheus3301/chatsync/internal/profile"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

type statusOutput struct {
	Profile       string `json:"profile"`
	ProfileDir    string `json:"profileDir"`
	ServerURL     string `json:"serverUrl"`
	UserID        string `json:"userId"`
	Reachable     bool   `json:"reachable"`
	Error         string `json:"error,omitempty"`
	Conversations int    `json:"conversations"`
	ClientRunning bool   `json:"clientRunning"`
	ClientPID     int    `json:"clientPid,omitempty"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the profile, the server and whether a client is running",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return oneShot(cmd, func(ctx context.Context, s *services) error {
			st := s.session.Status()
			out := statusOutput{
				Profile:    st.Profile,
				ProfileDir: profile.Dir(st.Profile),
				ServerURL:  st.ServerURL,
				UserID:     st.UserID,
			}
			if holder, ok := lock.Read(out.ProfileDir); ok {
				out.ClientRunning = true
				out.ClientPID = holder.PID
			}
			if e, err := s.chats.EnsureConversations(ctx); err != nil {
				out.Error = err.Error()
			} else {
				out.Reachable = true
				out.Conversations = len(e.Value)
			}

			if jsonFlag {
				return outputJSON(out)
			}
			fmt.Printf("Profile:  %s %s\n", out.Profile, dim(out.ProfileDir))
			fmt.Printf("User:     %s\n", valueOr(out.UserID, "(not set)"))
			if out.Reachable {
				fmt.Printf("Server:   %s %s\n", out.ServerURL, color.Green.Sprintf("(%d conversations)", out.Conversations))
			} else {
				fmt.Printf("Server:   %s %s\n", out.ServerURL, color.Red.Sprint(out.Error))
			}
			if out.ClientRunning {
				fmt.Printf("Client:   running (PID %d)\n", out.ClientPID)
			} else {
				fmt.Println("Client:   not running")
			}
			return nil
		})
	},
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
