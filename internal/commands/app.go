package commands

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/dmitriyabr/duma-erp-sub003/internal/accounts"
	"github.com/dmitriyabr/duma-erp-sub003/internal/auditlog"
	"github.com/dmitriyabr/duma-erp-sub003/internal/claims"
	"github.com/dmitriyabr/duma-erp-sub003/internal/config"
	"github.com/dmitriyabr/duma-erp-sub003/internal/inventory"
	"github.com/dmitriyabr/duma-erp-sub003/internal/invoicing"
	"github.com/dmitriyabr/duma-erp-sub003/internal/payouts"
	"github.com/dmitriyabr/duma-erp-sub003/internal/procurement"
	"github.com/dmitriyabr/duma-erp-sub003/internal/reconcile"
	"github.com/dmitriyabr/duma-erp-sub003/internal/reports"
	"github.com/dmitriyabr/duma-erp-sub003/internal/server"
	"github.com/dmitriyabr/duma-erp-sub003/internal/store"
)

// app is an opened database with every service wired to it.
type app struct {
	cfg *config.Config
	log *zap.Logger
	svc server.Services
}

// openApp opens and migrates the configured database, seeds the chart of
// accounts when empty and builds the services.
func openApp(ctx context.Context, g *globals) (*app, error) {
	db, err := store.Open(ctx, g.cfg.Database.Driver, g.cfg.Database.DSN, g.log)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	accts := accounts.NewService(db, g.log)
	seeded, err := accts.Seed(ctx)
	if err != nil {
		db.Close()
		return nil, err
	}
	if seeded {
		g.log.Info("seeded default chart of accounts")
	}

	audit := auditlog.New(g.cfg.Paths.DataDir)
	stock := inventory.NewService(db, g.log)
	return &app{
		cfg: g.cfg,
		log: g.log,
		svc: server.Services{
			DB:          db,
			Accounts:    accts,
			Invoices:    invoicing.NewService(db, stock, g.log),
			Procurement: procurement.NewService(db, stock, g.log),
			Inventory:   stock,
			Claims:      claims.NewService(db, audit, g.log),
			Payouts:     payouts.NewService(db),
			Reconcile:   reconcile.NewService(db, nil, reconcile.RulesFrom(g.cfg.Reconciliation), audit, g.log),
			Reports:     reports.NewService(db, g.log),
			Fiscal:      g.cfg.Fiscal,
		},
	}, nil
}

func (a *app) Close() error {
	return a.svc.DB.Close()
}
