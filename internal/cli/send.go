package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

type sendBody struct {
	UserID    string `json:"user_id"`
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
	IsAvatar  bool   `json:"is_avatar,omitempty"`
}

type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func (a *app) sendCommand() *cobra.Command {
	var avatar bool
	cmd := &cobra.Command{
		Use:   "send <room> <name> <text>",
		Short: "Post a chat message to a room",
		Long: `Posts a chat message through the REST API. The room may be a webinar id or a
"webinarId:sessionId" key. With a host token the message is posted as the host
(or, with --avatar, under <name> as a scripted attendee).`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			webinarID, sessionID, _ := strings.Cut(args[0], ":")
			body, err := json.Marshal(sendBody{
				UserID:    args[1],
				Message:   args[2],
				SessionID: sessionID,
				IsAvatar:  avatar,
			})
			if err != nil {
				return err
			}

			target := a.server() + "/webinars/" + url.PathEscape(strings.TrimSpace(webinarID)) + "/messages"
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, target, bytes.NewReader(body))
			if err != nil {
				return err
			}
			req.Header = a.header()
			req.Header.Set("Content-Type", "application/json")

			client := &http.Client{Timeout: 10 * time.Second}
			resp, err := client.Do(req)
			if err != nil {
				return fmt.Errorf("send message: %w", err)
			}
			defer resp.Body.Close()

			var out apiResponse
			if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
				return fmt.Errorf("send message: status %d", resp.StatusCode)
			}
			if !out.Success {
				return fmt.Errorf("send message: %s (status %d)", out.Error, resp.StatusCode)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out.Data))
			return nil
		},
	}
	cmd.Flags().BoolVar(&avatar, "avatar", false, "post as a scripted attendee (host only)")
	return cmd
}
