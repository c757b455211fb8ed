package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/spf13/cobra"

	"github.com/simulive/backend/pkg/socketclient"
)

type chatLine struct {
	UserID   string `json:"user_id"`
	Message  string `json:"message"`
	IsAdmin  bool   `json:"is_admin"`
	IsAvatar bool   `json:"is_avatar"`
}

func (a *app) tailCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tail <room>...",
		Short: "Print chat messages and viewer counts of rooms until interrupted",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := a.logger()
			defer func() { _ = logger.Sync() }()

			dialer, err := socketclient.NewDialer(a.server(), a.header(), logger)
			if err != nil {
				return err
			}
			p := &printer{out: cmd.OutOrStdout()}
			client := socketclient.New(dialer, socketclient.Handlers{
				OnChatMessage: p.chat,
				OnViewerCount: p.viewers,
				OnDisconnect: func(err error) {
					p.printf("-- disconnected: %v\n", err)
				},
			}, socketclient.Options{Logger: logger})

			for _, room := range args {
				if err := client.Join(ctx, room); err != nil {
					return err
				}
			}
			err = client.Run(ctx)
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, socketclient.ErrGaveUp) {
				return fmt.Errorf("server unreachable: %w", err)
			}
			return err
		},
	}
}

// printer serializes output from the client's callbacks.
type printer struct {
	mu  sync.Mutex
	out io.Writer
}

func (p *printer) printf(format string, args ...interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, format, args...)
}

func (p *printer) chat(room string, payload json.RawMessage) {
	var line chatLine
	if err := json.Unmarshal(payload, &line); err != nil || line.Message == "" {
		p.printf("[%s] %s\n", room, payload)
		return
	}
	tag := ""
	switch {
	case line.IsAdmin:
		tag = " (host)"
	case line.IsAvatar:
		tag = " (avatar)"
	}
	p.printf("[%s] %s%s: %s\n", room, line.UserID, tag, line.Message)
}

func (p *printer) viewers(room string, n int) {
	p.printf("[%s] viewers=%d\n", room, n)
}
