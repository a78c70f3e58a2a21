package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dmitriyabr/duma-erp-sub003/internal/auditlog"
	"github.com/dmitriyabr/duma-erp-sub003/internal/claims"
	"github.com/dmitriyabr/duma-erp-sub003/internal/model"
	"github.com/dmitriyabr/duma-erp-sub003/internal/payouts"
)

func (s *Server) listClaims(c *gin.Context) {
	q := newQuery(c)
	f := claims.Filter{
		Status:    model.ClaimStatus(q.str("status")),
		Claimant:  q.str("claimant"),
		AccountID: q.int("accountId"),
		From:      q.date("from"),
		To:        q.date("to"),
		Page:      q.page(),
	}
	if !q.ok(s) {
		return
	}
	res, err := s.svc.Claims.List(c.Request.Context(), f)
	s.reply(c, http.StatusOK, res, err)
}

func (s *Server) submitClaim(c *gin.Context) {
	var p claims.Params
	if !s.bind(c, &p) {
		return
	}
	cl, err := s.svc.Claims.Submit(c.Request.Context(), p)
	s.reply(c, http.StatusCreated, cl, err)
}

func (s *Server) getClaim(c *gin.Context) {
	cl, err := s.svc.Claims.Get(c.Request.Context(), c.Param("id"))
	s.reply(c, http.StatusOK, cl, err)
}

func (s *Server) approveClaim(c *gin.Context) {
	var r claims.Review
	if !s.bind(c, &r) {
		return
	}
	reviewer(c, &r)
	cl, err := s.svc.Claims.Approve(c.Request.Context(), c.Param("id"), r)
	s.reply(c, http.StatusOK, cl, err)
}

func (s *Server) rejectClaim(c *gin.Context) {
	var r claims.Review
	if !s.bind(c, &r) {
		return
	}
	reviewer(c, &r)
	cl, err := s.svc.Claims.Reject(c.Request.Context(), c.Param("id"), r)
	s.reply(c, http.StatusOK, cl, err)
}

func (s *Server) payClaim(c *gin.Context) {
	var p claims.PayParams
	if !s.bind(c, &p) {
		return
	}
	cl, err := s.svc.Claims.Pay(c.Request.Context(), c.Param("id"), p)
	s.reply(c, http.StatusOK, cl, err)
}

func (s *Server) listPayouts(c *gin.Context) {
	q := newQuery(c)
	f := payouts.Filter{
		SourceType: model.PayoutSource(q.str("sourceType")),
		SourceID:   q.str("sourceId"),
		Matched:    q.bool("matched"),
		From:       q.date("from"),
		To:         q.date("to"),
		Page:       q.page(),
	}
	if !q.ok(s) {
		return
	}
	res, err := s.svc.Payouts.List(c.Request.Context(), f)
	s.reply(c, http.StatusOK, res, err)
}

func (s *Server) getPayout(c *gin.Context) {
	out, err := s.svc.Payouts.Get(c.Request.Context(), c.Param("id"))
	s.reply(c, http.StatusOK, out, err)
}

// reviewer defaults the reviewer to the request's actor.
func reviewer(c *gin.Context, r *claims.Review) {
	if r.Reviewer != "" {
		return
	}
	if a := auditlog.ActorFrom(c.Request.Context()); a != auditlog.SystemActor {
		r.Reviewer = a
	}
}
