// Command forge is gradeforge's CLI surface: an interactive shell and
// a one-shot submit command, both driven through an in-process
// Orchestrator rather than the HTTP API.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/gradeforge/gradeforge/internal/config"
	"github.com/gradeforge/gradeforge/internal/goexercise"
	"github.com/gradeforge/gradeforge/internal/logger"
	"github.com/gradeforge/gradeforge/internal/orchestrator"
	"github.com/gradeforge/gradeforge/internal/pipeline"
	"github.com/gradeforge/gradeforge/internal/store"
	"github.com/gradeforge/gradeforge/internal/store/memstore"
	"github.com/gradeforge/gradeforge/internal/store/sqlitestore"
)

// cliUsername/cliPassword name the local user the CLI registers and
// logs in as once at startup, rather than prompting for credentials.
const (
	cliUsername = "forge-cli"
	cliPassword = "forge-cli"
)

func main() {
	log, err := logger.New(logger.Options{Component: "forge"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}

	cfgPath := os.Getenv("FORGE_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	app, err := bootstrap(ctx, cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start forge: %v\n", err)
		os.Exit(1)
	}

	rootCmd := newRootCmd(app)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func bootstrap(ctx context.Context, cfg config.Config, log *logger.Logger) (*AppContext, error) {
	st, err := openStore(cfg.StoreDSN)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	o := orchestrator.New(pipeline.NewTagMap(), st, cfg.Workers, log)
	if err := o.AddPlugin(ctx, goexercise.Plugin{}); err != nil {
		return nil, fmt.Errorf("register goexercise plugin: %w", err)
	}

	ref := o.Run(ctx)

	user, err := loginCLIUser(ctx, st)
	if err != nil {
		return nil, fmt.Errorf("log in cli user: %w", err)
	}

	return &AppContext{Config: &cfg, Logger: log, Ref: ref, User: user}, nil
}

func openStore(dsn string) (store.Store, error) {
	if dsn == "" || dsn == ":memory:" {
		return memstore.New(), nil
	}
	return sqlitestore.Open(dsn)
}

func loginCLIUser(ctx context.Context, st store.Store) (store.User[store.AuthenticatedRole], error) {
	if _, err := st.Register(ctx, cliUsername, cliPassword); err != nil {
		if _, lookupErr := st.LookupByUsername(ctx, cliUsername); lookupErr != nil {
			return store.User[store.AuthenticatedRole]{}, err
		}
	}
	return st.Login(ctx, cliUsername, cliPassword)
}
