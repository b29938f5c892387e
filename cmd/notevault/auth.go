package main

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/MrEthical07/notevault/client"
	"github.com/spf13/cobra"
)

func (a *app) signupCmd() *cobra.Command {
	var name, email, qrFile string
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account and enroll an authenticator app",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			var err error
			if name == "" {
				if name, err = a.prompt.line("Name: "); err != nil {
					return err
				}
			}
			if email == "" {
				if email, err = a.prompt.line("Email: "); err != nil {
					return err
				}
			}
			pw, err := a.prompt.secret("Password: ")
			if err != nil {
				return err
			}

			res, err := a.session.Signup(ctx, name, email, string(pw))
			if err != nil {
				return describe(err)
			}

			a.out.ok("Account created. Add this secret to your authenticator app:")
			fmt.Fprintf(cmd.OutOrStdout(), "\n  %s\n\n", res.Secret)
			if qrFile != "" {
				if err := writeQRCode(qrFile, res.QRCode); err != nil {
					a.out.warn("could not save QR code: %v", err)
				} else {
					a.out.ok("QR code written to %s", qrFile)
				}
			}

			code, err := a.prompt.line("Code from the app: ")
			if err != nil {
				return err
			}
			codes, err := a.session.VerifyMFA(ctx, code)
			if err != nil {
				a.out.warn("Enrollment not finished. Retry within 10 minutes with:")
				fmt.Fprintf(cmd.OutOrStdout(), "  notevault verify-mfa --token %s\n", res.TempToken)
				return describe(err)
			}

			a.out.ok("MFA enabled. You are logged in.")
			a.out.backupCodes(codes)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&qrFile, "qr-file", "", "write the enrollment QR code PNG to this path")
	return cmd
}

func (a *app) verifyMFACmd() *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "verify-mfa",
		Short: "Finish an interrupted MFA enrollment",
		RunE: func(cmd *cobra.Command, _ []string) error {
			code, err := a.prompt.line("Code from the app: ")
			if err != nil {
				return err
			}
			res, err := a.api.VerifyMFA(cmd.Context(), token, code)
			if err != nil {
				return describe(err)
			}
			a.out.ok("MFA enabled for %s. You are logged in.", res.User.Email)
			a.out.backupCodes(res.BackupCodes)
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "enrollment token printed by signup")
	_ = cmd.MarkFlagRequired("token")
	return cmd
}

func (a *app) loginCmd() *cobra.Command {
	var email string
	var useBackup bool
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in with password and second factor",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			var err error
			if email == "" {
				if email, err = a.prompt.line("Email: "); err != nil {
					return err
				}
			}
			pw, err := a.prompt.secret("Password: ")
			if err != nil {
				return err
			}

			state, err := a.session.Login(ctx, email, string(pw))
			if err != nil {
				return describe(err)
			}
			if state == client.StateAwaitingMFA {
				if useBackup {
					code, err := a.prompt.line("Backup code: ")
					if err != nil {
						return err
					}
					if err := a.session.VerifyBackupCode(ctx, code); err != nil {
						return describe(err)
					}
					a.out.warn("Backup code used. It cannot be used again.")
				} else {
					code, err := a.prompt.line("Authenticator code: ")
					if err != nil {
						return err
					}
					if _, err := a.session.VerifyMFA(ctx, code); err != nil {
						return describe(err)
					}
				}
			}

			a.out.ok("Logged in as %s", a.session.User().Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().BoolVar(&useBackup, "backup-code", false, "use a backup code instead of the authenticator")
	return cmd
}

func (a *app) meCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "me",
		Short: "Show the logged in account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.session.Resume(cmd.Context()); err != nil {
				return describe(err)
			}
			return a.out.user(a.session.User())
		},
	}
}

func (a *app) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session and forget stored cookies",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !a.api.HasCredentials() {
				a.out.ok("Already logged out")
				return nil
			}
			if err := a.session.Logout(cmd.Context()); err != nil {
				return describe(err)
			}
			a.out.ok("Logged out")
			return nil
		},
	}
}

// describe turns API failures into messages for the terminal.
func describe(err error) error {
	if errors.Is(err, client.ErrSessionExpired) {
		return errors.New("session expired, run `notevault login`")
	}
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	if apiErr.Status == http.StatusTooManyRequests {
		return fmt.Errorf("%s, try again later", apiErr.Message)
	}
	if len(apiErr.Errors) == 0 {
		return errors.New(apiErr.Message)
	}
	parts := make([]string, 0, len(apiErr.Errors))
	for _, fe := range apiErr.Errors {
		parts = append(parts, fe.Field+": "+fe.Message)
	}
	return fmt.Errorf("%s (%s)", apiErr.Message, strings.Join(parts, "; "))
}

func writeQRCode(path, dataURL string) error {
	_, encoded, ok := strings.Cut(dataURL, ";base64,")
	if !ok {
		return errors.New("unexpected QR code format")
	}
	png, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return err
	}
	return os.WriteFile(path, png, 0o600)
}
