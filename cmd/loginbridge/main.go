// Package main provides the loginbridge command. It runs a browser-mediated deep login:
// it opens the login page for a fresh PKCE challenge, waits for the user to approve it
// and stores the resulting tokens.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/loginbridge/loginbridge/internal/buildinfo"
	"github.com/loginbridge/loginbridge/internal/cmd"
	"github.com/loginbridge/loginbridge/internal/config"
	"github.com/loginbridge/loginbridge/internal/logging"
	"github.com/loginbridge/loginbridge/internal/misc"
	"github.com/loginbridge/loginbridge/internal/util"
	log "github.com/sirupsen/logrus"
)

var (
	Version           = "dev"
	Commit            = "none"
	BuildDate         = "unknown"
	DefaultConfigPath = "config.yaml"
)

// init initializes the shared logger setup.
func init() {
	logging.SetupBaseLogger()
	buildinfo.Version = Version
	buildinfo.Commit = Commit
	buildinfo.BuildDate = BuildDate
}

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath   string
		email        string
		password     string
		noBrowser    bool
		retries      int
		loginBaseURL string
		apiBaseURL   string
		maxAttempts  int
		stages       int
		debug        bool
		showVersion  bool
		initConfig   bool
		listCreds    bool
	)

	flag.StringVar(&configPath, "config", DefaultConfigPath, "Configure File Path")
	flag.StringVar(&email, "email", "", "Account email recorded with the credential")
	flag.StringVar(&password, "password", "", "")
	flag.BoolVar(&noBrowser, "no-browser", false, "Don't open browser automatically; print the login URL instead")
	flag.IntVar(&retries, "retries", 0, "Extra exchanges with a fresh challenge after a timeout")
	flag.StringVar(&loginBaseURL, "login-base-url", "", "Override the login page base URL")
	flag.StringVar(&apiBaseURL, "api-base-url", "", "Override the poll endpoint base URL")
	flag.IntVar(&maxAttempts, "poll-attempts", 0, "Override the number of poll attempts")
	flag.IntVar(&stages, "stages", -1, "Override the number of verification stages")
	flag.BoolVar(&debug, "debug", false, "Enable debug logging")
	flag.BoolVar(&showVersion, "version", false, "Print version information and exit")
	flag.BoolVar(&listCreds, "list", false, "List credentials saved in the auth directory and exit")
	flag.BoolVar(&initConfig, "init", false, "Copy config.example.yaml to the config path and exit")

	flag.CommandLine.Usage = func() {
		out := flag.CommandLine.Output()
		_, _ = fmt.Fprintf(out, "Usage of %s\n", os.Args[0])
		flag.CommandLine.VisitAll(func(f *flag.Flag) {
			if f.Name == "password" {
				return
			}
			s := fmt.Sprintf("  -%s", f.Name)
			name, unquoteUsage := flag.UnquoteUsage(f)
			if name != "" {
				s += " " + name
			}
			s += "\n    " + unquoteUsage
			if f.DefValue != "" && f.DefValue != "false" && f.DefValue != "0" && f.DefValue != "-1" {
				s += fmt.Sprintf(" (default %s)", f.DefValue)
			}
			_, _ = fmt.Fprint(out, s+"\n")
		})
	}
	flag.Parse()

	if showVersion {
		fmt.Printf("loginbridge Version: %s, Commit: %s, BuiltAt: %s\n", buildinfo.Version, buildinfo.Commit, buildinfo.BuildDate)
		return 0
	}

	wd, err := os.Getwd()
	if err != nil {
		log.Errorf("failed to get working directory: %v", err)
		return 1
	}

	if initConfig {
		if err = misc.CopyConfigTemplate(filepath.Join(wd, "config.example.yaml"), configPath); err != nil {
			log.Errorf("failed to write config: %v", err)
			return 1
		}
		fmt.Printf("Wrote %s\n", configPath)
		return 0
	}

	if errLoad := godotenv.Load(filepath.Join(wd, ".env")); errLoad != nil && !errors.Is(errLoad, os.ErrNotExist) {
		log.WithError(errLoad).Warn("failed to load .env file")
	}

	cfg, err := config.LoadConfigOptional(configPath, true)
	if err != nil {
		log.Errorf("failed to load config: %v", err)
		return 1
	}
	cfg.ApplyEnv(nil)
	if loginBaseURL != "" {
		cfg.LoginBaseURL = loginBaseURL
	}
	if apiBaseURL != "" {
		cfg.APIBaseURL = apiBaseURL
	}
	if maxAttempts > 0 {
		cfg.Poll.MaxAttempts = maxAttempts
	}
	if stages >= 0 {
		cfg.Verification.Stages = stages
	}
	if debug {
		cfg.Debug = true
	}
	cfg.SanitizeDefaults()

	if err = logging.ConfigureLogOutput(cfg); err != nil {
		log.Errorf("failed to configure log output: %v", err)
		return 1
	}
	defer logging.Close()
	util.SetLogLevel(cfg)
	log.Debugf("loginbridge Version: %s, Commit: %s, BuiltAt: %s", buildinfo.Version, buildinfo.Commit, buildinfo.BuildDate)

	if listCreds {
		if err = cmd.DoListCredentials(context.Background(), cfg); err != nil {
			return 1
		}
		return 0
	}

	if email == "" {
		email = os.Getenv("LOGINBRIDGE_EMAIL")
	}
	if password == "" {
		password = os.Getenv("LOGINBRIDGE_PASSWORD")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	options := &cmd.LoginOptions{
		NoBrowser: noBrowser,
		Email:     email,
		Password:  password,
		Retries:   retries,
	}
	if err = cmd.DoLogin(ctx, cfg, options); err != nil {
		return 1
	}
	return 0
}
