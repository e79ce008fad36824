package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/bindery/internal/auth"
)

// TokenOptions holds flags for the token command.
type TokenOptions struct {
	*RootOptions
	Secret string
	Issuer string
	Admin  bool
	TTL    time.Duration
}

// TokenResult is the JSON payload of the token command.
type TokenResult struct {
	User      string `json:"user"`
	Admin     bool   `json:"admin"`
	Token     string `json:"token"`
	ExpiresIn string `json:"expires_in,omitempty"`
}

// NewTokenCommand creates the token command.
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TokenOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "token <user>",
		Short: "Issue a connection token",
		Long: `Issue an HS256 bearer token for connecting to the server as <user>.

Clients send it in the Authorization header ("Bearer <token>") or the
"token" query parameter of the websocket upgrade.

Example:
  bindery token alice --secret s3cret
  bindery token root --secret s3cret --admin --ttl 1h`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runToken(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Secret, "secret", "", "JWT signing secret (required)")
	cmd.Flags().StringVar(&opts.Issuer, "issuer", "", "token issuer")
	cmd.Flags().BoolVar(&opts.Admin, "admin", false, "issue an admin token")
	cmd.Flags().DurationVar(&opts.TTL, "ttl", 24*time.Hour, "token lifetime (0 for no expiry)")
	_ = cmd.MarkFlagRequired("secret")

	return cmd
}

func runToken(opts *TokenOptions, user string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	issuer := auth.NewJWT([]byte(opts.Secret), auth.WithIssuer(opts.Issuer))
	token, err := issuer.Issue(auth.User{Name: user, Admin: opts.Admin, Authenticated: true}, opts.TTL)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to issue token", err)
	}
	formatter.VerboseLog("Issued token for %s (admin=%t, ttl=%s)", user, opts.Admin, opts.TTL)

	if formatter.Format == "json" {
		result := TokenResult{User: user, Admin: opts.Admin, Token: token}
		if opts.TTL > 0 {
			result.ExpiresIn = opts.TTL.String()
		}
		return formatter.Success(result)
	}

	fmt.Fprintln(formatter.Writer, token)
	return nil
}
