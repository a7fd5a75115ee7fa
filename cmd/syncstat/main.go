package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/alexeysirenko/prjctr-home-assignments-2-tig/internal/config"
	mongoInfra "github.com/alexeysirenko/prjctr-home-assignments-2-tig/internal/infrastructure/mongo"
)

func main() {
	fix := flag.Bool("fix", false, "release every processing/dispatched claim back to pending, live leases included; stop pollers first")
	limit := flag.Int("n", 5, "number of latest messages to print")
	flag.Parse()

	cfg, err := config.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unable to load config: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := mongoInfra.NewClient(ctx, mongoInfra.Config{URI: cfg.Mongo.URI})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unable to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer client.Disconnect(context.Background())

	db := client.Database(mongoInfra.DatabaseName(cfg.Mongo.URI))
	repo := mongoInfra.NewMessageRepository(db, cfg.Mongo.Collection, cfg.Sync.Lease)

	if *fix {
		n, err := repo.ResetStale(ctx)
		if err != nil {
			fmt.Printf("Fix failed: %v\n", err)
		} else {
			fmt.Printf("Fixed %d messages\n", n)
		}
	}

	fmt.Println("--- Messages ---")
	msgs, err := repo.List(ctx, 0, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "List failed: %v\n", err)
		os.Exit(1)
	}
	for _, m := range msgs {
		fmt.Printf("ID: %s | Created: %s | Text: %.40q\n", m.ID, m.CreatedAt.Format(time.RFC3339), m.Text)
	}

	fmt.Println("\n--- Sync status ---")
	stats, err := repo.Stats(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Stats failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("pending: %d | processing: %d | dispatched: %d | indexed: %d | legacy: %d\n",
		stats.Pending, stats.Processing, stats.Dispatched, stats.Indexed, stats.Legacy)
	fmt.Printf("backlog: %d\n", stats.Backlog())
}
