package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dmitriyabr/duma-erp-sub003/internal/model"
	"github.com/dmitriyabr/duma-erp-sub003/internal/procurement"
)

func (s *Server) listSuppliers(c *gin.Context) {
	q := newQuery(c)
	f := procurement.SupplierFilter{Q: q.str("q"), Active: q.bool("active"), Page: q.page()}
	if !q.ok(s) {
		return
	}
	res, err := s.svc.Procurement.ListSuppliers(c.Request.Context(), f)
	s.reply(c, http.StatusOK, res, err)
}

func (s *Server) createSupplier(c *gin.Context) {
	var p procurement.SupplierParams
	if !s.bind(c, &p) {
		return
	}
	sp, err := s.svc.Procurement.CreateSupplier(c.Request.Context(), p)
	s.reply(c, http.StatusCreated, sp, err)
}

func (s *Server) getSupplier(c *gin.Context) {
	sp, err := s.svc.Procurement.GetSupplier(c.Request.Context(), c.Param("id"))
	s.reply(c, http.StatusOK, sp, err)
}

func (s *Server) updateSupplier(c *gin.Context) {
	var p procurement.SupplierParams
	if !s.bind(c, &p) {
		return
	}
	sp, err := s.svc.Procurement.UpdateSupplier(c.Request.Context(), c.Param("id"), p)
	s.reply(c, http.StatusOK, sp, err)
}

func (s *Server) setSupplierStatus(c *gin.Context) {
	active, ok := s.bindActive(c)
	if !ok {
		return
	}
	sp, err := s.svc.Procurement.SetSupplierActive(c.Request.Context(), c.Param("id"), active)
	s.reply(c, http.StatusOK, sp, err)
}

func (s *Server) listPOs(c *gin.Context) {
	q := newQuery(c)
	f := procurement.POFilter{
		Status:     model.POStatus(q.str("status")),
		SupplierID: q.str("supplierId"),
		Q:          q.str("q"),
		From:       q.date("from"),
		To:         q.date("to"),
		Page:       q.page(),
	}
	if !q.ok(s) {
		return
	}
	res, err := s.svc.Procurement.ListPOs(c.Request.Context(), f)
	s.reply(c, http.StatusOK, res, err)
}

func (s *Server) createPO(c *gin.Context) {
	var p procurement.POParams
	if !s.bind(c, &p) {
		return
	}
	po, err := s.svc.Procurement.CreatePO(c.Request.Context(), p)
	s.reply(c, http.StatusCreated, po, err)
}

func (s *Server) getPO(c *gin.Context) {
	po, err := s.svc.Procurement.GetPO(c.Request.Context(), c.Param("id"))
	s.reply(c, http.StatusOK, po, err)
}

func (s *Server) updatePO(c *gin.Context) {
	var p procurement.POParams
	if !s.bind(c, &p) {
		return
	}
	po, err := s.svc.Procurement.UpdatePO(c.Request.Context(), c.Param("id"), p)
	s.reply(c, http.StatusOK, po, err)
}

func (s *Server) submitPO(c *gin.Context) {
	po, err := s.svc.Procurement.Submit(c.Request.Context(), c.Param("id"))
	s.reply(c, http.StatusOK, po, err)
}

func (s *Server) cancelPO(c *gin.Context) {
	po, err := s.svc.Procurement.Cancel(c.Request.Context(), c.Param("id"))
	s.reply(c, http.StatusOK, po, err)
}

func (s *Server) receivePO(c *gin.Context) {
	var p procurement.ReceiveParams
	if !s.bind(c, &p) {
		return
	}
	grn, err := s.svc.Procurement.Receive(c.Request.Context(), c.Param("id"), p)
	s.reply(c, http.StatusCreated, grn, err)
}

func (s *Server) paySupplier(c *gin.Context) {
	var p procurement.SupplierPaymentParams
	if !s.bind(c, &p) {
		return
	}
	out, err := s.svc.Procurement.PaySupplier(c.Request.Context(), c.Param("id"), p)
	s.reply(c, http.StatusCreated, out, err)
}

func (s *Server) listReceipts(c *gin.Context) {
	q := newQuery(c)
	f := procurement.ReceiptFilter{POID: q.str("poId"), Page: q.page()}
	if !q.ok(s) {
		return
	}
	res, err := s.svc.Procurement.ListReceipts(c.Request.Context(), f)
	s.reply(c, http.StatusOK, res, err)
}
