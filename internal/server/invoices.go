package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dmitriyabr/duma-erp-sub003/internal/invoicing"
	"github.com/dmitriyabr/duma-erp-sub003/internal/model"
)

func (s *Server) listAccounts(c *gin.Context) {
	q := newQuery(c)
	typ := model.AccountType(q.str("type"))
	if typ != "" && !typ.Valid() {
		q.errs.Add("type", "one_of", "unknown account type %q", typ)
	}
	if !q.ok(s) {
		return
	}
	var (
		accts []model.Account
		err   error
	)
	if typ == "" {
		accts, err = s.svc.Accounts.List(c.Request.Context())
	} else {
		accts, err = s.svc.Accounts.ByType(c.Request.Context(), typ)
	}
	s.reply(c, http.StatusOK, gin.H{"items": accts}, err)
}

func (s *Server) listInvoices(c *gin.Context) {
	q := newQuery(c)
	f := invoicing.Filter{
		Status:     model.InvoiceStatus(q.str("status")),
		StudentRef: q.str("studentRef"),
		Q:          q.str("q"),
		From:       q.date("from"),
		To:         q.date("to"),
		Page:       q.page(),
	}
	if !q.ok(s) {
		return
	}
	res, err := s.svc.Invoices.List(c.Request.Context(), f)
	s.reply(c, http.StatusOK, res, err)
}

func (s *Server) createInvoice(c *gin.Context) {
	var p invoicing.Params
	if !s.bind(c, &p) {
		return
	}
	inv, err := s.svc.Invoices.Create(c.Request.Context(), p)
	s.reply(c, http.StatusCreated, inv, err)
}

func (s *Server) getInvoice(c *gin.Context) {
	inv, err := s.svc.Invoices.Get(c.Request.Context(), c.Param("id"))
	s.reply(c, http.StatusOK, inv, err)
}

func (s *Server) updateInvoice(c *gin.Context) {
	var p invoicing.Params
	if !s.bind(c, &p) {
		return
	}
	inv, err := s.svc.Invoices.Update(c.Request.Context(), c.Param("id"), p)
	s.reply(c, http.StatusOK, inv, err)
}

func (s *Server) issueInvoice(c *gin.Context) {
	inv, err := s.svc.Invoices.Issue(c.Request.Context(), c.Param("id"))
	s.reply(c, http.StatusOK, inv, err)
}

func (s *Server) voidInvoice(c *gin.Context) {
	inv, err := s.svc.Invoices.Void(c.Request.Context(), c.Param("id"))
	s.reply(c, http.StatusOK, inv, err)
}

func (s *Server) reinstateInvoice(c *gin.Context) {
	inv, err := s.svc.Invoices.Reinstate(c.Request.Context(), c.Param("id"))
	s.reply(c, http.StatusOK, inv, err)
}

func (s *Server) recordPayment(c *gin.Context) {
	var p invoicing.PaymentParams
	if !s.bind(c, &p) {
		return
	}
	pay, err := s.svc.Invoices.RecordPayment(c.Request.Context(), c.Param("id"), p)
	s.reply(c, http.StatusCreated, pay, err)
}

func (s *Server) getPayment(c *gin.Context) {
	pay, err := s.svc.Invoices.GetPayment(c.Request.Context(), c.Param("id"))
	s.reply(c, http.StatusOK, pay, err)
}

func (s *Server) listPayments(c *gin.Context) {
	q := newQuery(c)
	f := invoicing.PaymentFilter{
		InvoiceID: q.str("invoiceId"),
		Matched:   q.bool("matched"),
		From:      q.date("from"),
		To:        q.date("to"),
		Page:      q.page(),
	}
	if !q.ok(s) {
		return
	}
	res, err := s.svc.Invoices.ListPayments(c.Request.Context(), f)
	s.reply(c, http.StatusOK, res, err)
}
