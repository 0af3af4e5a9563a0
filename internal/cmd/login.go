// Package cmd implements the command-line login flow of loginbridge.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/loginbridge/loginbridge/internal/auth/deeplogin"
	"github.com/loginbridge/loginbridge/internal/browser"
	"github.com/loginbridge/loginbridge/internal/config"
	"github.com/loginbridge/loginbridge/internal/misc"
	"github.com/loginbridge/loginbridge/internal/store"
	"github.com/loginbridge/loginbridge/internal/util"
	log "github.com/sirupsen/logrus"
)

// LoginOptions contains options for the login process.
type LoginOptions struct {
	// NoBrowser indicates whether to skip opening the browser automatically.
	NoBrowser bool

	// Email is the account the resulting credential is recorded for.
	Email string

	// Password is stored alongside the tokens when set.
	Password string

	// Retries is the number of extra exchanges attempted after a timeout.
	Retries int

	// Prompt replaces the interactive confirmation prompt when set.
	Prompt func(ctx context.Context, message string) error

	// UI overrides the system browser collaborator.
	UI deeplogin.UI
}

// LoginResult describes a completed login.
type LoginResult struct {
	Credential *deeplogin.Credential
	SavedTo    string
}

// ExchangeOptions maps the configuration onto exchange options.
func ExchangeOptions(cfg *config.Config, email string) deeplogin.Options {
	opts := deeplogin.DefaultOptions()
	opts.Email = strings.TrimSpace(email)
	opts.Stages = cfg.Verification.Stages

	v := cfg.Verification
	opts.Solver = deeplogin.SolverOptions{
		Attempts:      v.Attempts,
		ActivateDelay: millisRange(v.ActivateDelayMin, v.ActivateDelayMax),
		RetryDelay:    millisRange(v.RetryDelayMin, v.RetryDelayMax),
		Settle:        time.Duration(v.SettleDelayMillis) * time.Millisecond,
	}

	opts.Poll = deeplogin.PollOptions{
		LoginBaseURL:   cfg.LoginBaseURL,
		APIBaseURL:     cfg.APIBaseURL,
		MaxAttempts:    cfg.Poll.MaxAttempts,
		Interval:       cfg.Poll.PollInterval(),
		SettleAttempts: cfg.Poll.SettleAttempts,
		SettleInterval: cfg.Poll.SettleInterval(),
		ConfirmDelay:   cfg.Poll.ConfirmDelay(),
	}

	m := cfg.Markers
	opts.Markers = deeplogin.Markers{
		deeplogin.StateSignUp:          deeplogin.Marker(m.SignUp),
		deeplogin.StatePasswordEntry:   deeplogin.Marker(m.Password),
		deeplogin.StateCaptchaPending:  deeplogin.Marker(m.Captcha),
		deeplogin.StateAccountSettings: deeplogin.Marker(m.AccountSettings),
		deeplogin.StateSessionActive:   deeplogin.Marker(m.SessionActive),
	}
	return opts
}

func millisRange(minMillis, maxMillis int) deeplogin.DelayRange {
	return deeplogin.DelayRange{
		Min: time.Duration(minMillis) * time.Millisecond,
		Max: time.Duration(maxMillis) * time.Millisecond,
	}
}

// RunLogin performs a deep-login exchange, retrying with a fresh challenge after
// timeouts, and persists the credential to the configured store.
func RunLogin(ctx context.Context, cfg *config.Config, options *LoginOptions) (*LoginResult, error) {
	if cfg == nil {
		return nil, fmt.Errorf("login: configuration is nil")
	}
	if options == nil {
		options = &LoginOptions{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ui := options.UI
	if ui == nil {
		systemUI := browser.NewSystemUI(options.NoBrowser)
		systemUI.Prompt = options.Prompt
		ui = systemUI
	}

	exchange := deeplogin.NewExchange(ui, util.NewHTTPClient(&cfg.SDKConfig), ExchangeOptions(cfg, options.Email))

	var cred *deeplogin.Credential
	var err error
	for attempt := 0; attempt <= options.Retries; attempt++ {
		if attempt > 0 {
			log.Infof("retrying login with a fresh challenge (%d/%d)", attempt, options.Retries)
		}
		cred, err = exchange.Run(ctx)
		if err == nil || !deeplogin.IsRetryable(err) || ctx.Err() != nil {
			break
		}
	}
	if err != nil {
		return nil, err
	}

	savedTo, err := saveCredential(ctx, cfg, cred, options.Password)
	if err != nil {
		return &LoginResult{Credential: cred}, err
	}
	return &LoginResult{Credential: cred, SavedTo: savedTo}, nil
}

func saveCredential(ctx context.Context, cfg *config.Config, cred *deeplogin.Credential, password string) (string, error) {
	st, err := store.New(ctx, cfg.Store, cfg.AuthDir)
	if err != nil {
		return "", fmt.Errorf("login: open credential store: %w", err)
	}
	defer func() {
		if errClose := st.Close(); errClose != nil {
			log.Warnf("failed to close credential store: %v", errClose)
		}
	}()

	record := &store.Record{
		ID:      deeplogin.CredentialFileName(cred.Email, cred.IssuedAt),
		Storage: deeplogin.NewTokenStorage(cred, password),
		Extra:   map[string]string{"auth_id": cred.AuthID},
	}
	misc.LogCredentialSeparator()
	savedTo, err := st.Save(ctx, record)
	if err != nil {
		return "", fmt.Errorf("login: save credential: %w", err)
	}
	return savedTo, nil
}

// DoLogin runs the login flow and reports the outcome on stdout.
func DoLogin(ctx context.Context, cfg *config.Config, options *LoginOptions) error {
	result, err := RunLogin(ctx, cfg, options)
	if err != nil {
		switch {
		case errors.Is(err, deeplogin.ErrAuthTimeout):
			log.Errorf("login timed out: %v", err)
			fmt.Println("The login was not approved in time. Run the command again to start a new login.")
		case errors.Is(err, deeplogin.ErrAuthAborted):
			log.Errorf("login aborted: %v", err)
		default:
			log.Errorf("login failed: %v", err)
		}
		return err
	}

	tok, errToken := result.Credential.TokenSource().Token()
	if errToken == nil {
		fmt.Printf("Access token: %s\n", util.MaskToken(tok.AccessToken))
	}
	if result.SavedTo != "" {
		fmt.Printf("Authentication saved to %s\n", result.SavedTo)
	}
	if result.Credential.Email != "" {
		fmt.Printf("Authenticated as %s\n", result.Credential.Email)
	}
	fmt.Println("Login successful!")
	return nil
}
