// Command clinic is the staff command-line client. It resolves the stored
// session and the user's profile the same way the desk application does and
// reports where the user would be routed.
//
// Usage:
//
//	clinic login -email EMAIL [-password PASSWORD]
//	clinic status [-debug]
//	clinic retry
//	clinic logout
//	clinic watch
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/stomacrm/clinic/internal/core/domain"
	"github.com/stomacrm/clinic/internal/core/resolver"
	"github.com/stomacrm/clinic/internal/core/service"
	"github.com/stomacrm/clinic/internal/infrastructure/backend"
	"github.com/stomacrm/clinic/internal/pkg/config"
	"github.com/stomacrm/clinic/pkg/logger"
)

const usage = `usage: clinic <command> [flags]

commands:
  login    sign in with email and password
  status   show the resolved session, profile and route
  retry    retry loading the profile
  logout   sign out and forget the stored session
  watch    follow session changes until signed out
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	cfg, err := config.LoadClient(ctx)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	log := logger.Init(logger.Options{Level: cfg.LogLevel, Pretty: true, Output: stderr})

	path, err := sessionPath(cfg.SessionFile)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	client := backend.New(cfg.BackendURL, backend.NewFileTokenStore(path), log)

	r := resolver.New(client, client, resolver.Options{
		SessionTimeout: cfg.SessionTimeout,
		ProfileTimeout: cfg.ProfileTimeout,
	}, log)
	defer r.Close()

	app := &cli{resolver: r, client: client, out: stdout, errOut: stderr, log: log}

	switch args[0] {
	case "login":
		return app.login(ctx, args[1:])
	case "status":
		return app.status(ctx, args[1:])
	case "retry":
		return app.retry(ctx)
	case "logout":
		return app.logout(ctx)
	case "watch":
		return app.watch(ctx)
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", args[0], usage)
		return 2
	}
}

type cli struct {
	resolver *resolver.Resolver
	client   *backend.Client
	out      io.Writer
	errOut   io.Writer
	log      zerolog.Logger
}

func (a *cli) login(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	fs.SetOutput(a.errOut)
	email := fs.String("email", "", "account email")
	password := fs.String("password", os.Getenv("CLINIC_PASSWORD"), "account password (default $CLINIC_PASSWORD)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *email == "" || *password == "" {
		fmt.Fprintln(a.errOut, "login: -email and -password are required")
		return 2
	}

	a.resolver.Initialize(ctx)
	if _, err := waitSettled(ctx, a.resolver); err != nil {
		return a.interrupted(err)
	}

	if err := a.resolver.SignIn(ctx, *email, *password); err != nil {
		fmt.Fprintln(a.errOut, service.LoginErrorMessage(err))
		return 1
	}

	s, err := waitSettled(ctx, a.resolver)
	if err != nil {
		return a.interrupted(err)
	}
	a.print(s, false)
	return exitCode(s)
}

func (a *cli) status(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(a.errOut)
	debug := fs.Bool("debug", false, "print the auth debug banner")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	a.resolver.Initialize(ctx)
	s, err := waitSettled(ctx, a.resolver)
	if err != nil {
		return a.interrupted(err)
	}
	a.print(s, *debug)
	return exitCode(s)
}

func (a *cli) retry(ctx context.Context) int {
	a.resolver.Initialize(ctx)
	s, err := waitSettled(ctx, a.resolver)
	if err != nil {
		return a.interrupted(err)
	}
	if s.Identity == nil {
		a.print(s, false)
		return exitCode(s)
	}

	a.resolver.RetryProfile()
	if s, err = waitSettled(ctx, a.resolver); err != nil {
		return a.interrupted(err)
	}
	a.print(s, false)
	return exitCode(s)
}

func (a *cli) logout(ctx context.Context) int {
	a.resolver.Initialize(ctx)
	if _, err := waitSettled(ctx, a.resolver); err != nil {
		return a.interrupted(err)
	}
	a.resolver.SignOut(ctx)
	a.print(a.resolver.State(), false)
	return 0
}

// watch prints every phase change while following the server's session
// notifications. It returns once the session ends.
func (a *cli) watch(ctx context.Context) int {
	changes := make(chan resolver.State, 16)
	cancel := a.resolver.Watch(func(s resolver.State) {
		select {
		case changes <- s:
		default:
		}
	})
	defer cancel()

	a.resolver.Initialize(ctx)
	s, err := waitSettled(ctx, a.resolver)
	if err != nil {
		return a.interrupted(err)
	}
	a.print(s, false)
	if s.Identity == nil {
		return exitCode(s)
	}

	followErr := make(chan error, 1)
	go func() { followErr <- a.client.Follow(ctx) }()

	last := s.Phase()
	for {
		select {
		case s := <-changes:
			if p := s.Phase(); p != last && p.Settled() {
				last = p
				a.print(s, false)
			}
		case err := <-followErr:
			if err != nil && !backend.IsUnauthenticated(err) {
				fmt.Fprintln(a.errOut, err)
				return 1
			}
			if s := a.resolver.State(); s.Phase() != last {
				a.print(s, false)
			}
			return 0
		case <-ctx.Done():
			return 0
		}
	}
}

func (a *cli) print(s resolver.State, debug bool) {
	fmt.Fprintf(a.out, "phase: %s\n", s.Phase())
	if route := s.Route(); route != "" {
		fmt.Fprintf(a.out, "route: %s\n", route)
	}
	if s.Identity != nil {
		fmt.Fprintf(a.out, "user:  %s (%s)\n", s.Identity.Email, s.Role)
	}
	if s.LastError != "" {
		fmt.Fprintf(a.out, "error: %s\n", s.LastError)
	}
	if s.Phase() == resolver.PhaseNoRole {
		fmt.Fprintf(a.out, "note:  %s\n", domain.MsgContactAdmin)
	}
	if debug {
		for _, line := range s.DebugLines() {
			fmt.Fprintf(a.out, "  %s\n", line)
		}
	}
}

func (a *cli) interrupted(err error) int {
	a.log.Debug().Err(err).Msg("interrupted")
	return 130
}

// waitSettled blocks until the resolver reaches a phase with no automatic
// transition pending. The advisory timers bound the wait.
func waitSettled(ctx context.Context, r *resolver.Resolver) (resolver.State, error) {
	changed := make(chan struct{}, 1)
	cancel := r.Watch(func(resolver.State) {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer cancel()

	for {
		s := r.State()
		if s.Phase().Settled() {
			return s, nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return s, ctx.Err()
		}
	}
}

func exitCode(s resolver.State) int {
	switch s.Phase() {
	case resolver.PhaseReady:
		return 0
	case resolver.PhaseSignedOut:
		return 3
	default:
		return 4
	}
}

func sessionPath(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", errors.New("cannot locate a config directory, set SESSION_FILE")
	}
	return filepath.Join(dir, "stomacrm", "session"), nil
}
