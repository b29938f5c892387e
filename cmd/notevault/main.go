// Command notevault is a terminal client for a notevault server. Notes are
// encrypted and decrypted locally; the passphrase is asked for on every
// command that touches note content and is never stored.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/MrEthical07/notevault/client"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

type app struct {
	serverURL   string
	sessionFile string
	noColor     bool

	api     *client.API
	session *client.Session
	out     *printer
	prompt  *prompter
}

func main() {
	a := &app{}
	root := &cobra.Command{
		Use:           "notevault",
		Short:         "Zero-knowledge encrypted notes",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.serverURL, "server", envOr("NOTEVAULT_SERVER", "http://localhost:5000"), "server base URL")
	flags.StringVar(&a.sessionFile, "session-file", os.Getenv("NOTEVAULT_SESSION_FILE"), "session cookie file (default under the user config dir)")
	flags.BoolVar(&a.noColor, "no-color", false, "disable colored output")

	root.AddCommand(
		a.signupCmd(),
		a.verifyMFACmd(),
		a.loginCmd(),
		a.meCmd(),
		a.logoutCmd(),
		a.notesCmd(),
	)

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error:"), err)
		os.Exit(1)
	}
}

func (a *app) init(cmd *cobra.Command) error {
	if a.noColor {
		color.NoColor = true
	}
	a.out = newPrinter(cmd.OutOrStdout())
	a.prompt = newPrompter(cmd.InOrStdin(), cmd.ErrOrStderr())

	path := a.sessionFile
	if path == "" {
		var err error
		if path, err = client.DefaultSessionPath(); err != nil {
			return fmt.Errorf("locate session file: %w", err)
		}
	}

	api, err := client.NewAPI(a.serverURL, client.NewFileStore(path))
	if err != nil {
		return err
	}
	a.api = api
	a.session = client.NewSession(api)
	return nil
}

// unlocked resumes the stored session and unlocks it with a prompted
// passphrase.
func (a *app) unlocked(ctx context.Context) error {
	if err := a.session.Resume(ctx); err != nil {
		return fmt.Errorf("not logged in: %w", err)
	}
	first := a.session.User().EncryptionSalt == ""
	label := "Encryption passphrase: "
	if first {
		a.out.warn("No encryption passphrase is set for this account yet. It cannot be recovered if lost.")
		label = "Choose an encryption passphrase (12+ characters): "
	}

	pass, err := a.prompt.secret(label)
	if err != nil {
		return err
	}
	defer clear(pass)

	if first {
		again, err := a.prompt.secret("Repeat passphrase: ")
		if err != nil {
			return err
		}
		defer clear(again)
		if string(again) != string(pass) {
			return fmt.Errorf("passphrases do not match")
		}
	}
	return a.session.Unlock(ctx, pass)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
