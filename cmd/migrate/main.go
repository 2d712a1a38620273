package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"complexityofneed.org/internal/migrate"
	"complexityofneed.org/internal/obs"
	"complexityofneed.org/migrations"
)

func main() {
	var (
		dsn      = flag.String("dsn", os.Getenv("DATABASE_URL"), "PostgreSQL DSN")
		timeout  = flag.Duration("timeout", 60*time.Second, "Overall deadline")
		logLevel = flag.String("log-level", "info", "Log level")
	)
	flag.Parse()
	log := obs.NewLogger(*logLevel, "text", os.Stderr)

	if *dsn == "" {
		log.Error("missing DSN: provide via -dsn or DATABASE_URL")
		os.Exit(2)
	}
	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: migrate [up|down|seed|status]")
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		log.Error("open db", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	mgr := migrate.NewManager(db, migrations.SQL(), migrations.Seeds(), migrate.WithLogger(log))

	cmd := flag.Arg(0)
	switch cmd {
	case "up":
		var applied []string
		applied, err = mgr.Up(ctx)
		if err == nil {
			log.Info("migrations applied", "count", len(applied), "names", applied)
		}
	case "seed":
		var applied []string
		applied, err = mgr.Seed(ctx)
		if err == nil {
			log.Info("seeds applied", "count", len(applied), "names", applied)
		}
	case "down":
		var reverted string
		reverted, err = mgr.Down(ctx)
		if errors.Is(err, migrate.ErrNothingApplied) {
			log.Info("nothing to revert")
			err = nil
		} else if err == nil {
			log.Info("migration reverted", "name", reverted)
		}
	case "status":
		var history []string
		history, err = mgr.Status(ctx)
		if err == nil {
			for _, item := range history {
				fmt.Println(item)
			}
		}
	default:
		log.Error("unknown command", "command", cmd)
		os.Exit(2)
	}
	if err != nil {
		log.Error("migrate failed", "command", cmd, "error", err)
		os.Exit(1)
	}
}
