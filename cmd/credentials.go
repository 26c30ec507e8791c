package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"github.com/teemow/voicecal/internal/credentials"
	"github.com/teemow/voicecal/internal/google"
	"github.com/teemow/voicecal/internal/logging"
)

type credentialsFlags struct {
	envFile string
	file    string
}

func newCredentialsCmd() *cobra.Command {
	var flags credentialsFlags

	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Manage the encrypted Google Calendar credential file",
		Long: `Manage the credential file the server reads its Google OAuth token from.

The file is encrypted with AES-256-GCM under a key derived from
TOKEN_ENCRYPTION_KEY. Run "voicecal credentials authorize" to grant access
with Google, or seal a token obtained elsewhere with "voicecal credentials seal".`,
	}

	cmd.PersistentFlags().StringVar(&flags.envFile, "env-file", defaultEnvFile, "Environment file loaded before parsing the environment")
	cmd.PersistentFlags().StringVar(&flags.file, "file", "", "Credential file (default: GOOGLE_TOKENS_FILE or the user cache directory)")

	cmd.AddCommand(newCredentialsAuthorizeCmd(&flags))
	cmd.AddCommand(newCredentialsSealCmd(&flags))
	cmd.AddCommand(newCredentialsStatusCmd(&flags))
	cmd.AddCommand(newCredentialsGenerateKeyCmd())

	return cmd
}

func newCredentialsAuthorizeCmd(flags *credentialsFlags) *cobra.Command {
	var code string

	cmd := &cobra.Command{
		Use:   "authorize",
		Short: "Authorize calendar access with Google and seal the resulting token",
		Long: `Without --code, print the URL where the calendar owner grants access.
Visit it, approve access and run the command again with the authorization
code Google hands back. The exchanged token is sealed into the credential file.

Requires GOOGLE_CLIENT_ID, GOOGLE_CLIENT_SECRET and GOOGLE_REDIRECT_URI.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := credentialsConfig(flags)
			if err != nil {
				return err
			}
			if cfg.GoogleClientID == "" || cfg.GoogleClientSecret == "" {
				return errors.New("GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET are required")
			}
			conf := google.OAuthConfig(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL)

			if code == "" {
				fmt.Fprintf(cmd.OutOrStdout(), `To authorize calendar access:

1. Visit this URL in your browser:
   %s

2. Sign in with the Google account that owns the calendar
3. Grant access to Google Calendar
4. Run "voicecal credentials authorize --code <code>" with the code you receive
`, conf.AuthCodeURL("voicecal", oauth2.AccessTypeOffline, oauth2.ApprovalForce))
				return nil
			}
			return authorizeCredentials(cmd, cfg, conf, code)
		},
	}

	cmd.Flags().StringVar(&code, "code", "", "Authorization code returned by Google")

	return cmd
}

func newCredentialsSealCmd(flags *credentialsFlags) *cobra.Command {
	var input string

	cmd := &cobra.Command{
		Use:   "seal",
		Short: "Encrypt a plaintext OAuth token into the credential file",
		Long: `Read a plaintext OAuth token as JSON and write it to the credential file
in encrypted form. Both the stored layout (expiry_date in epoch milliseconds)
and the layout written by golang.org/x/oauth2 (expiry as RFC 3339) are
accepted. Use "-" to read the token from standard input.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := credentialsConfig(flags)
			if err != nil {
				return err
			}
			data, err := readInput(cmd.InOrStdin(), input)
			if err != nil {
				return err
			}
			return sealCredentials(cmd, cfg, data)
		},
	}

	cmd.Flags().StringVarP(&input, "in", "i", "-", "Plaintext token JSON file, or - for stdin")

	return cmd
}

func newCredentialsStatusCmd(flags *credentialsFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether the credential file can be read",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := credentialsConfig(flags)
			if err != nil {
				return err
			}
			return credentialsStatus(cmd, cfg)
		},
	}
}

func newCredentialsGenerateKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "generate-key",
		Short: "Print a random value suitable for TOKEN_ENCRYPTION_KEY",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := credentials.GenerateKey()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		},
	}
}

func credentialsConfig(flags *credentialsFlags) (Config, error) {
	cfg, err := loadConfig(flags.envFile)
	if err != nil {
		return Config{}, err
	}
	if flags.file != "" {
		cfg.CredentialsFile = flags.file
	}
	if cfg.EncryptionKey == "" {
		return Config{}, errors.New("TOKEN_ENCRYPTION_KEY is required")
	}
	return cfg, nil
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "" || path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read token from stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}
	return data, nil
}

func authorizeCredentials(cmd *cobra.Command, cfg Config, conf *oauth2.Config, code string) error {
	tok, err := conf.Exchange(cmd.Context(), code)
	if err != nil {
		return fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	return saveCredentials(cmd, cfg, tok)
}

func sealCredentials(cmd *cobra.Command, cfg Config, data []byte) error {
	tok, err := credentials.UnmarshalToken(data)
	if err != nil {
		return err
	}
	if tok.AccessToken == "" && tok.RefreshToken == "" {
		return errors.New("token has neither an access token nor a refresh token")
	}
	return saveCredentials(cmd, cfg, tok)
}

func saveCredentials(cmd *cobra.Command, cfg Config, tok *oauth2.Token) error {
	sealer, err := credentials.NewSealer(cfg.EncryptionKey)
	if err != nil {
		return err
	}
	store := credentials.NewFileStore(cfg.CredentialsFile, sealer)
	if err := store.Save(cmd.Context(), tok); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Credentials sealed into %s\n", store.Path())
	if tok.RefreshToken == "" {
		fmt.Fprintln(out, "Warning: the token has no refresh token and stops working when the access token expires")
	}
	if scope, _ := tok.Extra("scope").(string); scope != "" && !google.HasCalendarScope(scope) {
		fmt.Fprintln(out, "Warning: the token does not grant calendar access")
	}
	return nil
}

func credentialsStatus(cmd *cobra.Command, cfg Config) error {
	sealer, err := credentials.NewSealer(cfg.EncryptionKey)
	if err != nil {
		return err
	}
	store := credentials.NewFileStore(cfg.CredentialsFile, sealer)
	logger := logging.New(cmd.ErrOrStderr(), false)
	manager := credentials.NewManager(store, nil, credentials.WithLogger(logging.NewSlogAdapter(logger)))

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Credential file: %s\n", store.Path())

	connected, err := manager.Initialize(cmd.Context())
	if err != nil {
		fmt.Fprintln(out, "Status: unreadable")
		return err
	}
	if !connected {
		fmt.Fprintln(out, "Status: not connected")
		return nil
	}

	status := manager.Status()
	fmt.Fprintln(out, "Status: connected")
	if !status.Expiry.IsZero() {
		state := "valid"
		if !status.Expiry.After(time.Now()) {
			state = "expired"
		}
		fmt.Fprintf(out, "Access token: %s until %s\n", state, status.Expiry.Format(time.RFC3339))
	}
	fmt.Fprintf(out, "Refresh token: %t\n", status.HasRefreshToken)
	if status.Scope != "" {
		fmt.Fprintf(out, "Calendar scope: %t\n", google.HasCalendarScope(status.Scope))
	}
	return nil
}
