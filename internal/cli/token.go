package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/simulive/backend/internal/auth"
)

func (a *app) tokenCommand() *cobra.Command {
	var hours int
	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Sign a bearer token for a user id with the server's JWT secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := a.v.GetString(secretKey)
			if secret == "" {
				return errors.New("jwt secret required (--jwt-secret or CHATWATCH_JWT_SECRET)")
			}
			token, err := auth.NewJWTService(secret, hours).Generate(args[0], "")
			if err != nil {
				return fmt.Errorf("sign token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().String("jwt-secret", "", "HMAC secret shared with the server")
	cmd.Flags().IntVar(&hours, "hours", 24, "token lifetime in hours")
	_ = a.v.BindPFlag(secretKey, cmd.Flags().Lookup("jwt-secret"))
	return cmd
}
