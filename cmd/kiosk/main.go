package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"librarylog/internal/kioskclient"
)

type options struct {
	server  string
	token   string
	timeout time.Duration
	verbose bool
}

// Kiosk posts card ids to the library server, either one at a time or as a
// reader loop over stdin (a USB card reader types the id and a newline).
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "kiosk",
		Short:         "Library card kiosk client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.server, "server", envOr("KIOSK_SERVER", "http://localhost:5000"), "library server base URL")
	cmd.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("KIOSK_TOKEN"), "device access token")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "request timeout")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log requests")

	cmd.AddCommand(
		newIDCommand(opts, "tap <id>", "Sign in or out, whichever applies", toggle),
		newIDCommand(opts, "signin <id>", "Start a visit", signIn),
		newIDCommand(opts, "signout <id>", "End the open visit", signOut),
		newReaderCommand(opts),
		newRegisterCommand(opts),
	)
	return cmd
}

type action func(ctx context.Context, c *kioskclient.Client, id string) (string, error)

func toggle(ctx context.Context, c *kioskclient.Client, id string) (string, error) {
	res, err := c.Toggle(ctx, id)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s (%d signed in)", res.Message, res.SignedInCount), nil
}

func signIn(ctx context.Context, c *kioskclient.Client, id string) (string, error) {
	res, err := c.SignIn(ctx, id)
	if err != nil {
		return "", err
	}
	return res.Message, nil
}

func signOut(ctx context.Context, c *kioskclient.Client, id string) (string, error) {
	res, err := c.SignOut(ctx, id)
	if err != nil {
		return "", err
	}
	return res.Message, nil
}

func newIDCommand(opts *options, use, short string, do action) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			msg, err := do(cmd.Context(), newClient(opts), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		},
	}
}

func newReaderCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "reader",
		Short: "Toggle every id read from stdin, one per line",
		RunE: func(cmd *cobra.Command, args []string) error {
			return readLoop(cmd.Context(), newClient(opts), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

func newRegisterCommand(opts *options) *cobra.Command {
	var viewToken string
	cmd := &cobra.Command{
		Use:   "register <device-id>",
		Short: "Obtain a device token using the staff view token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tokens, err := newClient(opts).Register(cmd.Context(), args[0], viewToken)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "KIOSK_TOKEN=%s\n# expires %s\n# refresh token: %s\n",
				tokens.AccessToken, tokens.AccessExpiresAt.Format(time.RFC3339), tokens.RefreshToken)
			return nil
		},
	}
	cmd.Flags().StringVar(&viewToken, "view-token", os.Getenv("AUTH_VIEW_TOKEN"), "staff view token")
	return cmd
}

// readLoop keeps going after a failed tap; only a closed input or a
// cancelled context ends it.
func readLoop(ctx context.Context, c *kioskclient.Client, in io.Reader, out io.Writer) error {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		id := strings.TrimSpace(sc.Text())
		if id == "" {
			continue
		}
		msg, err := toggle(ctx, c, id)
		if err != nil {
			var apiErr *kioskclient.APIError
			if errors.As(err, &apiErr) {
				fmt.Fprintf(out, "%s: %s\n", id, apiErr.Message)
				continue
			}
			fmt.Fprintf(out, "%s: server unavailable: %v\n", id, err)
			continue
		}
		fmt.Fprintln(out, msg)
	}
	return sc.Err()
}

func newClient(opts *options) *kioskclient.Client {
	logger := zap.NewNop()
	if opts.verbose {
		if l, err := zap.NewDevelopment(); err == nil {
			logger = l
		}
	}
	c := kioskclient.New(opts.server, opts.timeout, logger)
	if opts.token != "" {
		c.SetToken(opts.token)
	}
	return c
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
