package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dmitriyabr/duma-erp-sub003/internal/model"
	"github.com/dmitriyabr/duma-erp-sub003/internal/reconcile"
)

// maxStatementBytes caps an uploaded statement.
const maxStatementBytes = 10 << 20

type bankStatusBody struct {
	Status model.BankTxStatus `json:"status"`
}

// importStatement stores the CSV request body as statement lines of
// ?account= in ?format=.
func (s *Server) importStatement(c *gin.Context) {
	q := newQuery(c)
	account, format := q.str("account"), q.str("format")
	if format == "" {
		format = "standard"
	}
	if !q.ok(s) {
		return
	}
	body := http.MaxBytesReader(c.Writer, c.Request.Body, maxStatementBytes)
	res, err := s.svc.Reconcile.Import(c.Request.Context(), account, format, body)
	s.reply(c, http.StatusCreated, res, err)
}

func (s *Server) listBankTxs(c *gin.Context) {
	q := newQuery(c)
	f := reconcile.Filter{
		AccountCode: q.str("account"),
		Status:      model.BankTxStatus(q.str("status")),
		Direction:   model.Direction(q.str("direction")),
		From:        q.date("from"),
		To:          q.date("to"),
		Q:           q.str("q"),
		Page:        q.page(),
	}
	if !q.ok(s) {
		return
	}
	res, err := s.svc.Reconcile.List(c.Request.Context(), f)
	s.reply(c, http.StatusOK, res, err)
}

func (s *Server) getBankTx(c *gin.Context) {
	bt, err := s.svc.Reconcile.Get(c.Request.Context(), c.Param("id"))
	s.reply(c, http.StatusOK, bt, err)
}

func (s *Server) candidates(c *gin.Context) {
	cands, err := s.svc.Reconcile.Candidates(c.Request.Context(), c.Param("id"))
	s.reply(c, http.StatusOK, gin.H{"items": cands}, err)
}

func (s *Server) matchManual(c *gin.Context) {
	var m reconcile.ManualMatch
	if !s.bind(c, &m) {
		return
	}
	bt, err := s.svc.Reconcile.MatchManual(c.Request.Context(), c.Param("id"), m)
	s.reply(c, http.StatusOK, bt, err)
}

func (s *Server) unmatch(c *gin.Context) {
	bt, err := s.svc.Reconcile.Unmatch(c.Request.Context(), c.Param("id"))
	s.reply(c, http.StatusOK, bt, err)
}

func (s *Server) setBankTxStatus(c *gin.Context) {
	var b bankStatusBody
	if !s.bind(c, &b) {
		return
	}
	var ignored bool
	switch b.Status {
	case model.BankTxIgnored:
		ignored = true
	case model.BankTxUnmatched:
	default:
		q := newQuery(c)
		q.errs.Add("status", "one_of", "status must be %s or %s", model.BankTxIgnored, model.BankTxUnmatched)
		q.ok(s)
		return
	}
	bt, err := s.svc.Reconcile.SetIgnored(c.Request.Context(), c.Param("id"), ignored)
	s.reply(c, http.StatusOK, bt, err)
}

func (s *Server) autoMatch(c *gin.Context) {
	var p reconcile.AutoMatchParams
	if c.Request.ContentLength != 0 && !s.bind(c, &p) {
		return
	}
	run, err := s.svc.Reconcile.AutoMatch(c.Request.Context(), p)
	s.reply(c, http.StatusOK, run, err)
}

func (s *Server) listRuns(c *gin.Context) {
	q := newQuery(c)
	page := q.page()
	if !q.ok(s) {
		return
	}
	res, err := s.svc.Reconcile.ListRuns(c.Request.Context(), page)
	s.reply(c, http.StatusOK, res, err)
}
