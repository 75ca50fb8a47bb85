package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"desk-assistant-go/internal/config"
	"desk-assistant-go/internal/google"
)

// googleAuthCmd runs the OAuth consent flow and stores the token.
var googleAuthCmd = &cobra.Command{
	Use:   "google-auth",
	Short: "Authorize Gmail, Calendar and Tasks access",
	Long: `Prints the Google consent URL, reads the authorization code from stdin and
writes the token file configured in google.token_file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runGoogleAuth()
	},
}

// secretCmd manages secrets in the OS keyring.
var secretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Store or delete secrets in the OS keyring",
}

var secretSetCmd = &cobra.Command{
	Use:   "set <bot_token|ai_api_key> <value>",
	Short: "Store a secret",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkSecretName(args[0]); err != nil {
			return err
		}
		return config.StoreSecret(args[0], args[1])
	},
}

var secretDeleteCmd = &cobra.Command{
	Use:   "delete <bot_token|ai_api_key>",
	Short: "Delete a secret",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkSecretName(args[0]); err != nil {
			return err
		}
		return config.DeleteSecret(args[0])
	},
}

func init() {
	secretCmd.AddCommand(secretSetCmd)
	secretCmd.AddCommand(secretDeleteCmd)
}

func checkSecretName(name string) error {
	switch name {
	case config.KeyringBotToken, config.KeyringAIKey:
		return nil
	default:
		return fmt.Errorf("unknown secret %q (want %s or %s)", name, config.KeyringBotToken, config.KeyringAIKey)
	}
}

func runGoogleAuth() error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	conf, err := google.LoadOAuthConfig(a.cfg.Google.CredentialsFile)
	if err != nil {
		return err
	}

	fmt.Printf("Open this URL in a browser and authorize access:\n\n%s\n\nPaste the authorization code: ", google.AuthURL(conf))
	code, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return fmt.Errorf("read code: %w", err)
	}

	ctx, cancel := signalContext()
	defer cancel()
	if _, err := google.Exchange(ctx, conf, strings.TrimSpace(code), a.cfg.Google.TokenFile); err != nil {
		return err
	}
	fmt.Printf("Token saved to %s\n", a.cfg.Google.TokenFile)
	return nil
}
