package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"storozh.org/internal/legacy"
	"storozh.org/internal/migrate"
	"storozh.org/internal/store/pg"
)

func main() {
	log.SetFlags(0)
	var (
		dsn     = flag.String("dsn", os.Getenv("STOROZH_DATABASE_DSN"), "PostgreSQL DSN")
		admins  = flag.String("admins", "", "import-json: path to admins.json")
		mutes   = flag.String("mutes", "", "import-json: path to mutes.json")
		logs    = flag.String("logs", "", "import-json: path to logs.json")
		timeout = flag.Duration("timeout", 5*time.Minute, "overall deadline")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or STOROZH_DATABASE_DSN")
	}
	if len(flag.Args()) == 0 {
		log.Fatal("usage: migrate [up|down|status|import-json]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	st, err := pg.Open(*dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer st.Close()

	mgr := migrate.NewManager(st.DB(), nil)

	switch flag.Arg(0) {
	case "up":
		var applied []string
		applied, err = mgr.Up(ctx)
		for _, name := range applied {
			fmt.Println("applied", name)
		}
	case "down":
		var name string
		name, err = mgr.Down(ctx)
		if err == nil && name != "" {
			fmt.Println("rolled back", name)
		}
	case "status":
		var history []string
		history, err = mgr.Status(ctx)
		if err == nil {
			for _, item := range history {
				fmt.Println(item)
			}
		}
	case "import-json":
		if _, err = mgr.Up(ctx); err == nil {
			err = importJSON(ctx, st, *admins, *mutes, *logs)
		}
	default:
		log.Fatalf("unknown command %q", flag.Arg(0))
	}
	if err != nil {
		log.Fatalf("migrate %s: %v", flag.Arg(0), err)
	}
}

func importJSON(ctx context.Context, st *pg.Store, admins, mutes, logs string) error {
	steps := []struct {
		name string
		path string
		run  func(context.Context, io.Reader, legacy.Target) (legacy.Counts, error)
	}{
		{"admins", admins, legacy.ImportAdmins},
		{"mutes", mutes, legacy.ImportMutes},
		{"logs", logs, legacy.ImportLogs},
	}
	ran := false
	for _, step := range steps {
		if step.path == "" {
			continue
		}
		ran = true
		f, err := os.Open(step.path)
		if err != nil {
			return err
		}
		counts, err := step.run(ctx, f, st)
		f.Close()
		if err != nil {
			return fmt.Errorf("%s: %w", step.name, err)
		}
		fmt.Printf("%s: imported %d, skipped %d\n", step.name, counts.Imported, counts.Skipped)
	}
	if !ran {
		return fmt.Errorf("nothing to import: pass -admins, -mutes or -logs")
	}
	return nil
}
