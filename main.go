package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"palaver/internal/app"
	"palaver/internal/commands"
	"palaver/internal/config"

	"go.uber.org/fx"
)

type options struct {
	configPath string
	addUser    string
	token      string
}

func run(ctx context.Context, opts options) error {
	cliMode := opts.addUser != "" || opts.token != ""
	cfg, err := config.Load(opts.configPath, cliMode)
	if err != nil {
		return err
	}

	if opts.addUser != "" {
		return commands.AddUser(opts.addUser, cfg)
	}
	if opts.token != "" {
		return commands.IssueToken(opts.token, cfg)
	}

	application := fx.New(app.Module(app.Params{Config: cfg}))
	if err := application.Start(ctx); err != nil {
		return err
	}

	var exitErr error
	select {
	case <-ctx.Done():
	case sig := <-application.Wait():
		if sig.ExitCode != 0 {
			exitErr = errors.New("server stopped with an error")
		}
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), application.StopTimeout())
	defer cancel()
	if err := application.Stop(stopCtx); err != nil {
		return err
	}
	return exitErr
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "palaver.toml", "Path to an optional TOML config file")
	flag.StringVar(&opts.addUser, "add-user", "", "Username to create on the running server (prints a session token)")
	flag.StringVar(&opts.token, "token", "", "User ID to issue a new session token for")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, opts); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Application error: %v", err)
	}
}
