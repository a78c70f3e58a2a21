package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dmitriyabr/duma-erp-sub003/internal/model"
	"github.com/dmitriyabr/duma-erp-sub003/internal/reports"
)

// report writes t as JSON, or as a CSV attachment when ?format=csv.
func (s *Server) report(c *gin.Context, name string, t reports.Table, err error) {
	if err != nil {
		s.fail(c, err)
		return
	}
	if c.Query("format") != "csv" {
		c.JSON(http.StatusOK, t)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+".csv"))
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Status(http.StatusOK)
	if err := reports.WriteCSV(c.Writer, t); err != nil {
		_ = c.Error(err)
	}
}

// asOf reads ?asOf=, defaulting to today.
func (q *query) asOf() model.Date {
	if d := q.date("asOf"); !d.IsZero() {
		return d
	}
	return model.Today()
}

func (s *Server) agingReport(c *gin.Context) {
	q := newQuery(c)
	asOf := q.asOf()
	if !q.ok(s) {
		return
	}
	rep, err := s.svc.Reports.InvoiceAging(c.Request.Context(), asOf)
	s.report(c, "invoice-aging-"+asOf.String(), rep, err)
}

func (s *Server) reconReport(c *gin.Context) {
	q := newQuery(c)
	f := reports.ReconFilter{AccountCode: q.str("account"), From: q.date("from"), To: q.date("to")}
	if !q.ok(s) {
		return
	}
	rep, err := s.svc.Reports.Reconciliation(c.Request.Context(), f)
	s.report(c, "reconciliation", rep, err)
}

func (s *Server) valuationReport(c *gin.Context) {
	rep, err := s.svc.Reports.InventoryValuation(c.Request.Context())
	s.report(c, "inventory-valuation", rep, err)
}

func (s *Server) claimsReport(c *gin.Context) {
	q := newQuery(c)
	f := reports.ClaimsFilter{From: q.date("from"), To: q.date("to")}
	if !q.ok(s) {
		return
	}
	rep, err := s.svc.Reports.ClaimsSummary(c.Request.Context(), f)
	s.report(c, "claims", rep, err)
}

func (s *Server) dashboard(c *gin.Context) {
	q := newQuery(c)
	asOf := q.asOf()
	if !q.ok(s) {
		return
	}
	start, err := s.svc.Fiscal.YearStartFor(asOf.Time)
	if err != nil {
		s.fail(c, err)
		return
	}
	d, err := s.svc.Reports.Dashboard(c.Request.Context(), asOf, model.DateOf(start))
	s.reply(c, http.StatusOK, d, err)
}
