// Package server exposes the back office services as a JSON API under /api/v1.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dmitriyabr/duma-erp-sub003/internal/accounts"
	"github.com/dmitriyabr/duma-erp-sub003/internal/buildinfo"
	"github.com/dmitriyabr/duma-erp-sub003/internal/claims"
	"github.com/dmitriyabr/duma-erp-sub003/internal/config"
	"github.com/dmitriyabr/duma-erp-sub003/internal/inventory"
	"github.com/dmitriyabr/duma-erp-sub003/internal/invoicing"
	"github.com/dmitriyabr/duma-erp-sub003/internal/logging"
	"github.com/dmitriyabr/duma-erp-sub003/internal/payouts"
	"github.com/dmitriyabr/duma-erp-sub003/internal/procurement"
	"github.com/dmitriyabr/duma-erp-sub003/internal/reconcile"
	"github.com/dmitriyabr/duma-erp-sub003/internal/reports"
	"github.com/dmitriyabr/duma-erp-sub003/internal/store"
)

// Services are the domain services the API serves.
type Services struct {
	DB          *store.DB
	Accounts    *accounts.Service
	Invoices    *invoicing.Service
	Procurement *procurement.Service
	Inventory   *inventory.Service
	Claims      *claims.Service
	Payouts     *payouts.Service
	Reconcile   *reconcile.Service
	Reports     *reports.Service
	Fiscal      config.FiscalConfig
}

// Server is the HTTP API.
type Server struct {
	svc    Services
	log    *zap.Logger
	engine *gin.Engine
	http   *http.Server
}

// New builds the gin engine and registers every route.
func New(svc Services, cfg config.ServerConfig, logger *zap.Logger) *Server {
	s := &Server{svc: svc, log: logging.OrNop(logger)}

	r := gin.New()
	r.Use(requestID(), accessLog(s.log), recovery(s.log), actor())
	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:  cfg.CORSOrigins,
			AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:  []string{"Content-Type", "Authorization", headerRequestID, headerActor},
			ExposeHeaders: []string{"Content-Length", headerRequestID},
			MaxAge:        12 * time.Hour,
		}))
	}
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})
	s.routes(r)
	s.engine = r

	s.http = &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeoutSeconds) * time.Second,
	}
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		s.log.Info("listening", zap.String("addr", s.http.Addr), zap.String("version", buildinfo.Version))
		errc <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving http: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	s.log.Info("shutting down")
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}

func (s *Server) routes(r *gin.Engine) {
	r.GET("/healthz", s.health)

	api := r.Group("/api/v1")
	api.GET("/healthz", s.health)
	api.GET("/accounts", s.listAccounts)

	api.GET("/invoices", s.listInvoices)
	api.POST("/invoices", s.createInvoice)
	api.GET("/invoices/:id", s.getInvoice)
	api.PUT("/invoices/:id", s.updateInvoice)
	api.POST("/invoices/:id/issue", s.issueInvoice)
	api.POST("/invoices/:id/void", s.voidInvoice)
	api.POST("/invoices/:id/reinstate", s.reinstateInvoice)
	api.POST("/invoices/:id/payments", s.recordPayment)
	api.GET("/payments", s.listPayments)
	api.GET("/payments/:id", s.getPayment)

	api.GET("/suppliers", s.listSuppliers)
	api.POST("/suppliers", s.createSupplier)
	api.GET("/suppliers/:id", s.getSupplier)
	api.PUT("/suppliers/:id", s.updateSupplier)
	api.PATCH("/suppliers/:id/status", s.setSupplierStatus)

	api.GET("/purchase-orders", s.listPOs)
	api.POST("/purchase-orders", s.createPO)
	api.GET("/purchase-orders/:id", s.getPO)
	api.PUT("/purchase-orders/:id", s.updatePO)
	api.POST("/purchase-orders/:id/submit", s.submitPO)
	api.POST("/purchase-orders/:id/cancel", s.cancelPO)
	api.POST("/purchase-orders/:id/receipts", s.receivePO)
	api.POST("/purchase-orders/:id/payments", s.paySupplier)
	api.GET("/receipts", s.listReceipts)

	api.GET("/items", s.listItems)
	api.POST("/items", s.createItem)
	api.GET("/items/:id", s.getItem)
	api.PUT("/items/:id", s.updateItem)
	api.PATCH("/items/:id/status", s.setItemStatus)
	api.POST("/items/:id/adjustments", s.adjustItem)
	api.GET("/stock-movements", s.listMovements)
	api.GET("/variant-groups", s.listGroups)
	api.POST("/variant-groups", s.createGroup)
	api.PUT("/variant-groups/:id/default", s.setGroupDefault)
	api.GET("/kits", s.listKits)
	api.POST("/kits", s.createKit)
	api.GET("/kits/:id", s.getKit)
	api.PATCH("/kits/:id/status", s.setKitStatus)

	api.GET("/claims", s.listClaims)
	api.POST("/claims", s.submitClaim)
	api.GET("/claims/:id", s.getClaim)
	api.POST("/claims/:id/approve", s.approveClaim)
	api.POST("/claims/:id/reject", s.rejectClaim)
	api.POST("/claims/:id/pay", s.payClaim)
	api.GET("/payouts", s.listPayouts)
	api.GET("/payouts/:id", s.getPayout)

	api.POST("/bank-transactions/import", s.importStatement)
	api.GET("/bank-transactions", s.listBankTxs)
	api.GET("/bank-transactions/:id", s.getBankTx)
	api.GET("/bank-transactions/:id/candidates", s.candidates)
	api.POST("/bank-transactions/:id/match", s.matchManual)
	api.DELETE("/bank-transactions/:id/match", s.unmatch)
	api.PATCH("/bank-transactions/:id/status", s.setBankTxStatus)
	api.POST("/reconciliation/auto-match", s.autoMatch)
	api.GET("/reconciliation/runs", s.listRuns)

	api.GET("/reports/invoice-aging", s.agingReport)
	api.GET("/reports/reconciliation", s.reconReport)
	api.GET("/reports/inventory-valuation", s.valuationReport)
	api.GET("/reports/claims", s.claimsReport)
	api.GET("/reports/dashboard", s.dashboard)
}

func (s *Server) health(c *gin.Context) {
	if err := s.svc.DB.PingContext(c.Request.Context()); err != nil {
		s.log.Warn("health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "version": buildinfo.Version})
}
