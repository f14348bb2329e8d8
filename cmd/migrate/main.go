package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"authgate.org/internal/migrate"
)

func main() {
	log.SetFlags(0)
	var (
		dsn     = flag.String("dsn", os.Getenv("AUTHGATE_PG_DSN"), "PostgreSQL DSN")
		opsDir  = flag.String("ops", "ops", "Directory containing migrations/ and seeds/")
		timeout = flag.Duration("timeout", 60*time.Second, "Overall timeout")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or AUTHGATE_PG_DSN")
	}
	if len(flag.Args()) == 0 {
		log.Fatal("usage: migrate [up|down|seed|status]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	runner, err := migrate.NewRunner(db, os.DirFS(*opsDir), "migrations", "seeds")
	if err != nil {
		log.Fatalf("migrate: %v", err)
	}

	switch cmd := flag.Arg(0); cmd {
	case "up":
		err = runner.Up(ctx)
	case "down":
		err = runner.Down(ctx)
	case "seed":
		err = runner.Seed(ctx)
	case "status":
		var applied []string
		applied, err = runner.Status(ctx)
		if err == nil {
			for _, name := range applied {
				fmt.Println(name)
			}
		}
	default:
		log.Fatalf("unknown command %q", cmd)
	}
	if err != nil {
		log.Fatalf("migrate %s: %v", flag.Arg(0), err)
	}
}
