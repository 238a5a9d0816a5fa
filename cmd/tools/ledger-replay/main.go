// cmd/tools/ledger-replay/main.go

// ledger-replay feeds exported provider events back through reconciliation.
// Operators use it to fill webhook delivery gaps: every fact is applied with
// the replay source, so duplicates land as no-op ledger entries and nothing
// is applied twice.
//
// Usage:
//
//	ledger-replay -file events.json [-dry-run]
//	ledger-replay -suspend ws_1 -note "chargeback dispute"
//
// The input is a JSON array of facts:
//
//	[{"workspaceId": "ws_1", "externalPriceId": "price_...",
//	  "externalStatus": "active", "externalEventId": "evt_..."}]
//
// With -suspend the tool bypasses the status mapping and forces the named
// workspace into suspended, recording a manual-suspension ledger entry.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"courtside-billing/internal/billing/catalog"
	"courtside-billing/internal/billing/ledger"
	"courtside-billing/internal/billing/reconcile"
	"courtside-billing/internal/common/config"
	"courtside-billing/internal/common/database"
	"courtside-billing/internal/common/errors"
	"courtside-billing/internal/common/logger"
	"courtside-billing/internal/models"
	"courtside-billing/internal/store"
)

type replayFact struct {
	WorkspaceID      string `json:"workspaceId"`
	ExternalPriceID  string `json:"externalPriceId"`
	ExternalStatus   string `json:"externalStatus"`
	ExternalEventID  string `json:"externalEventId"`
	CurrentPeriodEnd int64  `json:"currentPeriodEnd"` // unix seconds, optional
}

func main() {
	file := flag.String("file", "", "Path to the JSON file of exported events")
	dryRun := flag.Bool("dry-run", false, "Parse and validate the file without applying anything")
	suspend := flag.String("suspend", "", "Workspace id to manually suspend instead of replaying a file")
	note := flag.String("note", "", "Operator note recorded on the manual suspension entry")
	flag.Parse()

	if *suspend != "" {
		suspendWorkspace(*suspend, *note)
		return
	}

	if *file == "" {
		fmt.Fprintln(os.Stderr, "Error: -file or -suspend is required")
		flag.Usage()
		os.Exit(1)
	}

	raw, err := os.ReadFile(*file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", *file, err)
		os.Exit(1)
	}

	var facts []replayFact
	if err := json.Unmarshal(raw, &facts); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing %s: %v\n", *file, err)
		os.Exit(1)
	}
	fmt.Printf("Loaded %d facts from %s\n", len(facts), *file)

	if *dryRun {
		for i, f := range facts {
			if f.WorkspaceID == "" || f.ExternalPriceID == "" || f.ExternalStatus == "" {
				fmt.Printf("  [%d] INVALID: workspaceId, externalPriceId and externalStatus are required\n", i)
			}
		}
		fmt.Println("Dry run complete, nothing applied")
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	log := logger.NewStructured(cfg.Logging.Level, cfg.Logging.Format)

	pg, err := database.NewPostgres(cfg.Database.Postgres)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to postgres: %v\n", err)
		os.Exit(1)
	}
	defer pg.Close()

	ctx := context.Background()
	if err := pg.Ping(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error pinging postgres: %v\n", err)
		os.Exit(1)
	}

	cat := catalog.New(cfg.Stripe.PriceIDs)
	engine := reconcile.NewEngine(pg.DB,
		store.NewWorkspaceStore(pg.DB, log),
		ledger.NewPostgresStore(pg.DB, log),
		cat, log)

	var applied, noops, rejected int
	for i, f := range facts {
		fact := &models.BillingFact{
			WorkspaceID:     f.WorkspaceID,
			ExternalPriceID: f.ExternalPriceID,
			ExternalStatus:  f.ExternalStatus,
			Source:          models.SourceReplay,
			ObservedAt:      time.Now().UTC(),
		}
		if f.ExternalEventID != "" {
			eventID := f.ExternalEventID
			fact.ExternalEventID = &eventID
		}
		if f.CurrentPeriodEnd > 0 {
			end := time.Unix(f.CurrentPeriodEnd, 0).UTC()
			fact.CurrentPeriodEnd = &end
		}

		entry, err := engine.Reconcile(ctx, fact)
		switch {
		case err != nil:
			rejected++
			fmt.Printf("  [%d] REJECTED %s: %s (%v)\n", i, f.WorkspaceID, errors.CodeOf(err), err)
		case entry == nil || !entry.Changed():
			noops++
		default:
			applied++
			fmt.Printf("  [%d] APPLIED %s: %s -> %s, %s -> %s\n", i, f.WorkspaceID,
				entry.StatusBefore, entry.StatusAfter, entry.PlanBefore, entry.PlanAfter)
		}
	}

	fmt.Printf("Replay complete: %d applied, %d no-ops, %d rejected\n", applied, noops, rejected)
	if rejected > 0 {
		os.Exit(2)
	}
}

func suspendWorkspace(workspaceID, note string) {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	log := logger.NewStructured(cfg.Logging.Level, cfg.Logging.Format)

	pg, err := database.NewPostgres(cfg.Database.Postgres)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to postgres: %v\n", err)
		os.Exit(1)
	}
	defer pg.Close()

	ctx := context.Background()
	engine := reconcile.NewEngine(pg.DB,
		store.NewWorkspaceStore(pg.DB, log),
		ledger.NewPostgresStore(pg.DB, log),
		catalog.New(cfg.Stripe.PriceIDs), log)

	entry, err := engine.Suspend(ctx, workspaceID, note)
	switch {
	case err != nil:
		fmt.Fprintf(os.Stderr, "Error suspending %s: %s (%v)\n", workspaceID, errors.CodeOf(err), err)
		os.Exit(1)
	case entry == nil:
		fmt.Printf("Workspace %s is already suspended, nothing recorded\n", workspaceID)
	default:
		fmt.Printf("Suspended %s: %s -> %s\n", workspaceID, entry.StatusBefore, entry.StatusAfter)
	}
}
