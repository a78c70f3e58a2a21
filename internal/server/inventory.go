package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/dmitriyabr/duma-erp-sub003/internal/inventory"
	"github.com/dmitriyabr/duma-erp-sub003/internal/model"
)

type adjustBody struct {
	Delta decimal.Decimal `json:"delta"`
	Note  string          `json:"note"`
}

type groupBody struct {
	Name string `json:"name"`
}

type groupDefaultBody struct {
	ItemID string `json:"itemId"`
}

func (s *Server) listItems(c *gin.Context) {
	q := newQuery(c)
	low := q.bool("lowStock")
	f := inventory.ItemFilter{
		Q:        q.str("q"),
		GroupID:  q.str("groupId"),
		Active:   q.bool("active"),
		LowStock: low != nil && *low,
		Page:     q.page(),
	}
	if !q.ok(s) {
		return
	}
	res, err := s.svc.Inventory.ListItems(c.Request.Context(), f)
	s.reply(c, http.StatusOK, res, err)
}

func (s *Server) createItem(c *gin.Context) {
	var p inventory.ItemParams
	if !s.bind(c, &p) {
		return
	}
	it, err := s.svc.Inventory.CreateItem(c.Request.Context(), p)
	s.reply(c, http.StatusCreated, it, err)
}

func (s *Server) getItem(c *gin.Context) {
	it, err := s.svc.Inventory.GetItem(c.Request.Context(), c.Param("id"))
	s.reply(c, http.StatusOK, it, err)
}

func (s *Server) updateItem(c *gin.Context) {
	var p inventory.ItemParams
	if !s.bind(c, &p) {
		return
	}
	it, err := s.svc.Inventory.UpdateItem(c.Request.Context(), c.Param("id"), p)
	s.reply(c, http.StatusOK, it, err)
}

func (s *Server) setItemStatus(c *gin.Context) {
	active, ok := s.bindActive(c)
	if !ok {
		return
	}
	it, err := s.svc.Inventory.SetItemActive(c.Request.Context(), c.Param("id"), active)
	s.reply(c, http.StatusOK, it, err)
}

func (s *Server) adjustItem(c *gin.Context) {
	var b adjustBody
	if !s.bind(c, &b) {
		return
	}
	mv, err := s.svc.Inventory.Adjust(c.Request.Context(), c.Param("id"), b.Delta, b.Note)
	s.reply(c, http.StatusCreated, mv, err)
}

func (s *Server) listMovements(c *gin.Context) {
	q := newQuery(c)
	f := inventory.MovementFilter{
		ItemID:  q.str("itemId"),
		RefType: model.MovementRef(q.str("refType")),
		RefID:   q.str("refId"),
		Page:    q.page(),
	}
	if !q.ok(s) {
		return
	}
	res, err := s.svc.Inventory.ListMovements(c.Request.Context(), f)
	s.reply(c, http.StatusOK, res, err)
}

func (s *Server) listGroups(c *gin.Context) {
	groups, err := s.svc.Inventory.ListGroups(c.Request.Context())
	s.reply(c, http.StatusOK, gin.H{"items": groups}, err)
}

func (s *Server) createGroup(c *gin.Context) {
	var b groupBody
	if !s.bind(c, &b) {
		return
	}
	g, err := s.svc.Inventory.CreateGroup(c.Request.Context(), b.Name)
	s.reply(c, http.StatusCreated, g, err)
}

func (s *Server) setGroupDefault(c *gin.Context) {
	var b groupDefaultBody
	if !s.bind(c, &b) {
		return
	}
	g, err := s.svc.Inventory.SetGroupDefault(c.Request.Context(), c.Param("id"), b.ItemID)
	s.reply(c, http.StatusOK, g, err)
}

func (s *Server) listKits(c *gin.Context) {
	q := newQuery(c)
	f := inventory.KitFilter{Q: q.str("q"), Active: q.bool("active"), Page: q.page()}
	if !q.ok(s) {
		return
	}
	res, err := s.svc.Inventory.ListKits(c.Request.Context(), f)
	s.reply(c, http.StatusOK, res, err)
}

func (s *Server) createKit(c *gin.Context) {
	var p inventory.KitParams
	if !s.bind(c, &p) {
		return
	}
	k, err := s.svc.Inventory.CreateKit(c.Request.Context(), p)
	s.reply(c, http.StatusCreated, k, err)
}

func (s *Server) getKit(c *gin.Context) {
	ctx := c.Request.Context()
	k, err := s.svc.Inventory.GetKit(ctx, c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	avail, err := s.svc.Inventory.KitAvailability(ctx, k.ID)
	s.reply(c, http.StatusOK, gin.H{"kit": k, "available": avail}, err)
}

func (s *Server) setKitStatus(c *gin.Context) {
	active, ok := s.bindActive(c)
	if !ok {
		return
	}
	k, err := s.svc.Inventory.SetKitActive(c.Request.Context(), c.Param("id"), active)
	s.reply(c, http.StatusOK, k, err)
}
