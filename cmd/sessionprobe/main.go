// sessionprobe drives the admin and reader session holders against a
// running Gazette proxy tier and prints each resulting snapshot as JSON.
//
// Admin mode logs in (when credentials are given), verifies, checks a
// role gate, and logs out.  Client mode performs the initial check,
// provisioning an anonymous session when none exists, then refreshes.
//
//	sessionprobe admin  --base http://localhost:8080 --identifier ed@example.com --role admin
//	sessionprobe client --base http://localhost:8080
//
// The admin password is read from the environment variable named by
// --password-env so it never appears in the process list.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/yanizio/gazette/internal/auth"
	"github.com/yanizio/gazette/internal/session"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	base        string
	identifier  string
	passwordEnv string
	roles       []string
	timeout     time.Duration
	keep        bool
	verbose     bool
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" {
		printHelp(stdout)
		return nil
	}
	mode, args := args[0], args[1:]

	var opt options
	flagSet := pflag.NewFlagSet("sessionprobe "+mode, pflag.ContinueOnError)
	flagSet.SetOutput(stdout)
	flagSet.StringVar(&opt.base, "base", "http://localhost:8080", "proxy tier base URL")
	flagSet.StringVar(&opt.identifier, "identifier", "", "admin login identifier (email)")
	flagSet.StringVar(&opt.passwordEnv, "password-env", "GAZETTE_PROBE_PASSWORD", "environment variable holding the password")
	flagSet.StringSliceVar(&opt.roles, "role", nil, "roles the probed page admits (repeatable)")
	flagSet.DurationVar(&opt.timeout, "timeout", 30*time.Second, "overall deadline")
	flagSet.BoolVar(&opt.keep, "keep", false, "skip the final logout")
	flagSet.BoolVarP(&opt.verbose, "verbose", "v", false, "log holder activity to stderr")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	log := zap.NewNop().Sugar()
	if opt.verbose {
		l, err := zap.NewDevelopment()
		if err != nil {
			return err
		}
		log = l.Sugar()
		defer func() { _ = l.Sync() }()
	}

	ctx, cancel := context.WithTimeout(ctx, opt.timeout)
	defer cancel()

	out := json.NewEncoder(stdout)
	out.SetIndent("", "  ")

	switch mode {
	case "admin":
		return probeAdmin(ctx, opt, log, out)
	case "client":
		return probeClient(ctx, opt, log, out)
	}
	return fmt.Errorf("unknown mode %q (want admin or client)", mode)
}

type step struct {
	Step     string `json:"step"`
	State    string `json:"state"`
	Loading  bool   `json:"loading,omitempty"`
	User     string `json:"user,omitempty"`
	Role     string `json:"role,omitempty"`
	ClientID string `json:"client_id,omitempty"`
	HasCSRF  bool   `json:"has_csrf"`
	Error    string `json:"error,omitempty"`
	Granted  *bool  `json:"granted,omitempty"`
	Redirect string `json:"redirect,omitempty"`
	Message  string `json:"message,omitempty"`
}

func adminStep(name string, s session.AdminSnapshot) step {
	st := step{Step: name, State: s.State.String(), Loading: s.IsLoading, HasCSRF: s.CSRFToken != "", Error: s.Error}
	if s.User != nil {
		st.User, st.Role = s.User.DisplayName(), string(s.User.Role)
	}
	return st
}

func clientStep(name string, s session.ClientSnapshot) step {
	return step{Step: name, State: s.State.String(), Loading: s.IsLoading, ClientID: s.ClientID,
		HasCSRF: s.CSRFToken != "", Error: s.Error}
}

func probeAdmin(ctx context.Context, opt options, log *zap.SugaredLogger, out *json.Encoder) error {
	a, err := session.NewAdmin(opt.base, session.Options{Log: log})
	if err != nil {
		return err
	}
	defer a.Close()

	if opt.identifier != "" {
		res := a.Login(ctx, opt.identifier, os.Getenv(opt.passwordEnv))
		st := adminStep("login", a.Snapshot())
		st.Message = res.Text()
		if err := out.Encode(st); err != nil {
			return err
		}
	}

	if err := out.Encode(adminStep("verify", a.Init(ctx))); err != nil {
		return err
	}

	roles := make([]auth.Role, len(opt.roles))
	for i, r := range opt.roles {
		roles[i] = auth.Role(r)
	}
	d := a.Authorize(roles...)
	st := adminStep("authorize", a.Snapshot())
	st.Granted, st.Redirect, st.Message = &d.Granted, d.Redirect, d.Message
	if err := out.Encode(st); err != nil {
		return err
	}

	if opt.keep {
		return nil
	}
	a.Logout(ctx)
	return out.Encode(adminStep("logout", a.Snapshot()))
}

func probeClient(ctx context.Context, opt options, log *zap.SugaredLogger, out *json.Encoder) error {
	c, err := session.NewClient(opt.base, session.Options{Log: log})
	if err != nil {
		return err
	}
	defer c.Close()

	if err := out.Encode(clientStep("init", c.Init(ctx))); err != nil {
		return err
	}
	if err := out.Encode(clientStep("refresh", c.RefreshSession(ctx))); err != nil {
		return err
	}
	if opt.keep {
		return nil
	}
	return out.Encode(clientStep("logout", func() session.ClientSnapshot {
		c.Logout(ctx)
		return c.Snapshot()
	}()))
}

func printHelp(w io.Writer) {
	fmt.Fprint(w, `sessionprobe: exercise Gazette session holders against a proxy tier.

Usage:
  sessionprobe admin  [--base URL] [--identifier EMAIL] [--password-env VAR] [--role ROLE]... [--keep]
  sessionprobe client [--base URL] [--keep]

Each step prints one JSON object: state, identity, CSRF presence, error.
`)
}
