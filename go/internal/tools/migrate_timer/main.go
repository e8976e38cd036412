package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mcdev12/tasktimer/go/internal/dbconfig"
	"github.com/mcdev12/tasktimer/go/internal/models"
	"github.com/mcdev12/tasktimer/go/internal/store"
	"github.com/mcdev12/tasktimer/go/internal/timer"
)

func main() {
	var (
		seed bool
		key  string
	)
	flag.BoolVar(&seed, "seed", false, "insert the default timer record when none exists")
	flag.StringVar(&key, "key", timer.DefaultKey, "timer record key to seed")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// 1) Connect using shared dbconfig
	cfg := dbconfig.NewConfigFromEnv()
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	// 2) Create the document table
	if _, err := pool.Exec(ctx, store.Schema); err != nil {
		fmt.Fprintf(os.Stderr, "create schema: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("schema ready on %s\n", cfg)

	if !seed {
		return
	}

	// 3) Seed the never-started timer
	data, err := json.Marshal(models.DefaultSnapshot())
	if err != nil {
		fmt.Fprintf(os.Stderr, "marshal default timer: %v\n", err)
		os.Exit(1)
	}
	cmdTag, err := pool.Exec(ctx, `
        INSERT INTO timer_documents (key, data)
        VALUES ($1, $2)
        ON CONFLICT (key) DO NOTHING
    `, key, data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed timer %s: %v\n", key, err)
		os.Exit(1)
	}

	if cmdTag.RowsAffected() == 1 {
		fmt.Printf("seeded timer %q\n", key)
	} else {
		fmt.Printf("timer %q already exists, left untouched\n", key)
	}
}
