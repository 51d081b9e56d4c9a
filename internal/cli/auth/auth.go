// Package auth implements the "auth" command group: login, status, logout,
// and apptoken, driving internal/account.Login with interactive or
// flag-supplied credentials.
package auth

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/AlecAivazis/survey/v2"
	"github.com/peterbourgon/ff/v3/ffcli"

	"github.com/shaw-baobao/go-anisette/internal/account"
	"github.com/shaw-baobao/go-anisette/internal/cli/shared"
	"github.com/shaw-baobao/go-anisette/internal/config"
)

const passwordEnvVar = "ASAUTH_PASSWORD"

// AuthCommand returns the auth command group.
func AuthCommand() *ffcli.Command {
	fs := flag.NewFlagSet("auth", flag.ExitOnError)

	return &ffcli.Command{
		Name:       "auth",
		ShortUsage: "asauth auth <subcommand> [flags]",
		ShortHelp:  "Authenticate with Apple and manage the cached session.",
		LongHelp: `Authenticate with Apple's GrandSlam service and manage the cached session.

Subcommands:
  login      Authenticate with an Apple ID, prompting for 2FA if required.
  status     Show whether a cached session is present and unexpired.
  logout     Remove the cached session.
  apptoken   Request an app-scoped token, re-authenticating first.`,
		FlagSet:   fs,
		UsageFunc: shared.DefaultUsageFunc,
		Subcommands: []*ffcli.Command{
			LoginCommand(),
			StatusCommand(),
			LogoutCommand(),
			AppTokenCommand(),
		},
		Exec: func(ctx context.Context, args []string) error {
			return flag.ErrHelp
		},
	}
}

type credentialFlags struct {
	appleID       *string
	passwordStdin *bool
	configPath    *string
}

func bindCredentialFlags(fs *flag.FlagSet) credentialFlags {
	return credentialFlags{
		appleID:       fs.String("apple-id", "", "Apple ID email"),
		passwordStdin: fs.Bool("password-stdin", false, "Read the Apple ID password from stdin"),
		configPath:    fs.String("config", "", "Path to config.yaml/config.jsonc (default: platform config dir)"),
	}
}

func loadConfig(explicitPath string) (config.Config, error) {
	path := strings.TrimSpace(explicitPath)
	if path == "" {
		defaultPath, err := config.Path()
		if err == nil {
			path = defaultPath
		}
	}
	return config.Load(path)
}

func readPasswordFromStdin() (string, error) {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("auth: read password from stdin: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// resolveCredentialPrompt builds the account.CredentialPrompt for a login
// invocation: flags/env first, interactive survey prompts otherwise.
func resolveCredentialPrompt(flags credentialFlags) account.CredentialPrompt {
	return func(ctx context.Context) (string, string, error) {
		appleID := strings.TrimSpace(*flags.appleID)
		if appleID == "" {
			if err := survey.AskOne(&survey.Input{
				Message: "Apple ID (email):",
			}, &appleID, survey.WithValidator(survey.Required)); err != nil {
				return "", "", err
			}
		}

		var password string
		switch {
		case *flags.passwordStdin:
			pw, err := readPasswordFromStdin()
			if err != nil {
				return "", "", err
			}
			password = pw
		case strings.TrimSpace(os.Getenv(passwordEnvVar)) != "":
			password = strings.TrimSpace(os.Getenv(passwordEnvVar))
		default:
			if err := survey.AskOne(&survey.Password{
				Message: "Apple ID password:",
			}, &password, survey.WithValidator(survey.Required)); err != nil {
				return "", "", err
			}
		}
		if strings.TrimSpace(password) == "" {
			return "", "", shared.UsageError("password is required: use --password-stdin, set %s, or answer the interactive prompt", passwordEnvVar)
		}
		return appleID, password, nil
	}
}

func promptTwoFactorCode(ctx context.Context) (string, error) {
	var code string
	err := survey.AskOne(&survey.Input{
		Message: "Enter the 6-digit verification code:",
	}, &code, survey.WithValidator(func(ans interface{}) error {
		s, _ := ans.(string)
		s = strings.TrimSpace(s)
		if len(s) != 6 {
			return fmt.Errorf("code must be 6 digits")
		}
		if _, err := strconv.Atoi(s); err != nil {
			return fmt.Errorf("code must be numeric")
		}
		return nil
	}))
	return strings.TrimSpace(code), err
}

type loginResult struct {
	ADSID     string `json:"adsid"`
	PET       string `json:"pet,omitempty"`
	PETExpiry string `json:"petExpiry,omitempty"`
}

// Headers implements output.TableRenderer.
func (r loginResult) Headers() []string { return []string{"Field", "Value"} }

// Rows implements output.TableRenderer.
func (r loginResult) Rows() [][]string {
	return [][]string{
		{"ADSID", shared.OrNA(r.ADSID)},
		{"PET", shared.OrNA(r.PET)},
		{"PET Expiry", shared.OrNA(r.PETExpiry)},
	}
}

// LoginCommand authenticates with Apple and caches the resulting session.
func LoginCommand() *ffcli.Command {
	fs := flag.NewFlagSet("auth login", flag.ExitOnError)
	credFlags := bindCredentialFlags(fs)
	output := shared.BindOutputFlags(fs)

	return &ffcli.Command{
		Name:       "login",
		ShortUsage: "asauth auth login [--apple-id EMAIL] [--password-stdin] [flags]",
		ShortHelp:  "Authenticate with Apple, prompting for 2FA if required.",
		LongHelp: `Authenticate with Apple's GrandSlam Authentication service.

Password input options:
  - --password-stdin (recommended for scripts)
  - ASAUTH_PASSWORD environment variable
  - interactive prompt (default, requires a TTY)

Examples:
  asauth auth login --apple-id "user@example.com" --password-stdin
  ASAUTH_PASSWORD="..." asauth auth login --apple-id "user@example.com"
  asauth auth login`,
		FlagSet:   fs,
		UsageFunc: shared.DefaultUsageFunc,
		Exec: func(ctx context.Context, args []string) error {
			requestCtx, cancel := shared.ContextWithTimeout(ctx)
			defer cancel()

			cfg, err := loadConfig(*credFlags.configPath)
			if err != nil {
				return fmt.Errorf("auth login: %w", err)
			}

			provider, err := account.NewAnisetteProvider(cfg, nil)
			if err != nil {
				return fmt.Errorf("auth login: %w", err)
			}

			var appleIDUsed string
			credentialPrompt := resolveCredentialPrompt(credFlags)
			wrappedPrompt := func(ctx context.Context) (string, string, error) {
				id, pw, err := credentialPrompt(ctx)
				appleIDUsed = id
				return id, pw, err
			}

			var acct *account.AppleAccount
			err = shared.WithSpinner("authenticating with Apple...", func() error {
				var loginErr error
				acct, loginErr = account.Login(requestCtx, provider, nil, wrappedPrompt, promptTwoFactorCode)
				return loginErr
			})
			if err != nil {
				return fmt.Errorf("auth login: %w", err)
			}

			result := loginResult{ADSID: acct.ADSID()}
			petToken, petExpiry, ok := acct.GetPET()
			if ok {
				result.PET = petToken
				var expiry time.Time
				if petExpiry != nil {
					expiry = *petExpiry
					result.PETExpiry = expiry.Format(time.RFC3339)
				}
				if err := account.SaveSession(appleIDUsed, account.PersistedSession{
					ADSID:     acct.ADSID(),
					PET:       petToken,
					PETExpiry: expiry,
				}); err != nil {
					fmt.Fprintf(os.Stderr, "Warning: failed to cache session: %v\n", err)
				}
			} else {
				if err := account.SaveSession(appleIDUsed, account.PersistedSession{ADSID: acct.ADSID()}); err != nil {
					fmt.Fprintf(os.Stderr, "Warning: failed to cache session: %v\n", err)
				}
			}

			return shared.PrintOutput(result, *output.Output, *output.Pretty)
		},
	}
}

type statusResult struct {
	Cached    bool   `json:"cached"`
	ADSID     string `json:"adsid,omitempty"`
	PETValid  bool   `json:"petValid"`
	PETExpiry string `json:"petExpiry,omitempty"`
}

func (r statusResult) Headers() []string { return []string{"Field", "Value"} }

func (r statusResult) Rows() [][]string {
	return [][]string{
		{"Cached", fmt.Sprintf("%t", r.Cached)},
		{"ADSID", shared.OrNA(r.ADSID)},
		{"PET valid", fmt.Sprintf("%t", r.PETValid)},
		{"PET Expiry", shared.OrNA(r.PETExpiry)},
	}
}

// StatusCommand reports whether a cached session exists and is unexpired.
func StatusCommand() *ffcli.Command {
	fs := flag.NewFlagSet("auth status", flag.ExitOnError)
	appleID := fs.String("apple-id", "", "Apple ID email to check (required)")
	output := shared.BindOutputFlags(fs)

	return &ffcli.Command{
		Name:       "status",
		ShortUsage: "asauth auth status --apple-id EMAIL [flags]",
		ShortHelp:  "Show cached session status for an Apple ID.",
		FlagSet:    fs,
		UsageFunc:  shared.DefaultUsageFunc,
		Exec: func(ctx context.Context, args []string) error {
			trimmed := strings.TrimSpace(*appleID)
			if trimmed == "" {
				return shared.UsageError("--apple-id is required")
			}

			sess, ok, err := account.LoadSession(trimmed)
			if err != nil {
				return fmt.Errorf("auth status: %w", err)
			}
			if !ok {
				return shared.PrintOutput(statusResult{Cached: false}, *output.Output, *output.Pretty)
			}

			result := statusResult{Cached: true, ADSID: sess.ADSID}
			if !sess.PETExpiry.IsZero() {
				result.PETExpiry = sess.PETExpiry.Format(time.RFC3339)
				result.PETValid = time.Now().Before(sess.PETExpiry)
			} else {
				result.PETValid = sess.PET != ""
			}
			return shared.PrintOutput(result, *output.Output, *output.Pretty)
		},
	}
}

// LogoutCommand clears the cached session for an Apple ID.
func LogoutCommand() *ffcli.Command {
	fs := flag.NewFlagSet("auth logout", flag.ExitOnError)
	appleID := fs.String("apple-id", "", "Apple ID email to clear (required)")

	return &ffcli.Command{
		Name:       "logout",
		ShortUsage: "asauth auth logout --apple-id EMAIL",
		ShortHelp:  "Remove the cached session for an Apple ID.",
		FlagSet:    fs,
		UsageFunc:  shared.DefaultUsageFunc,
		Exec: func(ctx context.Context, args []string) error {
			trimmed := strings.TrimSpace(*appleID)
			if trimmed == "" {
				return shared.UsageError("--apple-id is required")
			}
			if err := account.ClearSession(trimmed); err != nil {
				return fmt.Errorf("auth logout: %w", err)
			}
			fmt.Fprintf(os.Stdout, "Removed cached session for %s.\n", trimmed)
			return nil
		},
	}
}

type appTokenResult struct {
	AppName string `json:"appName"`
	Token   string `json:"token"`
	Expiry  string `json:"expiry,omitempty"`
}

func (r appTokenResult) Headers() []string { return []string{"App", "Token", "Expiry"} }

func (r appTokenResult) Rows() [][]string {
	return [][]string{{r.AppName, r.Token, shared.OrNA(r.Expiry)}}
}

// AppTokenCommand re-authenticates and requests a single app-scoped token.
// The SRP session key never persists, so every app-token request re-drives
// login rather than reusing a cached session.
func AppTokenCommand() *ffcli.Command {
	fs := flag.NewFlagSet("auth apptoken", flag.ExitOnError)
	credFlags := bindCredentialFlags(fs)
	appName := fs.String("app", "", "App name to request a token for (required)")
	output := shared.BindOutputFlags(fs)

	return &ffcli.Command{
		Name:       "apptoken",
		ShortUsage: "asauth auth apptoken --app NAME [--apple-id EMAIL] [--password-stdin] [flags]",
		ShortHelp:  "Request an app-scoped token, re-authenticating first.",
		LongHelp: `Request an app-scoped token. Since the SRP session key is never persisted
to disk, this re-authenticates with Apple before requesting the token.

Examples:
  asauth auth apptoken --app com.apple.gs.icloud.family --apple-id "user@example.com" --password-stdin`,
		FlagSet:   fs,
		UsageFunc: shared.DefaultUsageFunc,
		Exec: func(ctx context.Context, args []string) error {
			trimmedApp := strings.TrimSpace(*appName)
			if trimmedApp == "" {
				return shared.UsageError("--app is required")
			}

			requestCtx, cancel := shared.ContextWithTimeout(ctx)
			defer cancel()

			cfg, err := loadConfig(*credFlags.configPath)
			if err != nil {
				return fmt.Errorf("auth apptoken: %w", err)
			}
			provider, err := account.NewAnisetteProvider(cfg, nil)
			if err != nil {
				return fmt.Errorf("auth apptoken: %w", err)
			}

			credentialPrompt := resolveCredentialPrompt(credFlags)
			var acct *account.AppleAccount
			err = shared.WithSpinner("authenticating with Apple...", func() error {
				var loginErr error
				acct, loginErr = account.Login(requestCtx, provider, nil, credentialPrompt, promptTwoFactorCode)
				return loginErr
			})
			if err != nil {
				return fmt.Errorf("auth apptoken: %w", err)
			}

			token, err := acct.GetAppToken(requestCtx, trimmedApp)
			if err != nil {
				return fmt.Errorf("auth apptoken: %w", err)
			}

			return shared.PrintOutput(appTokenResult{
				AppName: token.AppName,
				Token:   token.Token,
				Expiry:  token.Expiry,
			}, *output.Output, *output.Pretty)
		},
	}
}
