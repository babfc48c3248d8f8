package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"facturation/internal/auth"
)

func newTokenCmd(app *App) *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token <email>",
		Short: "Sign a bearer token for the HTTP API",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(app.JWTSecret) == 0 {
				return errors.New("JWT_SECRET is not set")
			}
			token, err := auth.Sign(args[0], app.JWTSecret, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(out(cmd), token)
			return nil
		},
	}

	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "Token lifetime")
	return cmd
}
