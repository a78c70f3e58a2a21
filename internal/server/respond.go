package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dmitriyabr/duma-erp-sub003/internal/apperr"
	"github.com/dmitriyabr/duma-erp-sub003/internal/model"
	"github.com/dmitriyabr/duma-erp-sub003/internal/store"
)

// fail writes the JSON error for err and records it on the context.
func (s *Server) fail(c *gin.Context, err error) {
	_ = c.Error(err)

	var verrs apperr.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "fields": verrs})
	case errors.Is(err, apperr.ErrInvalid):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, apperr.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, apperr.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, apperr.ErrInvalidState):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		s.log.Error("request failed",
			zap.String("path", c.Request.URL.Path),
			zap.String("request_id", c.GetString(keyRequestID)),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// bind decodes the JSON body into v, answering 400 on failure.
func (s *Server) bind(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return false
	}
	return true
}

// reply writes v with status, or fails with err.
func (s *Server) reply(c *gin.Context, status int, v any, err error) {
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(status, v)
}

// query collects the problems found while parsing query parameters.
type query struct {
	c    *gin.Context
	errs apperr.ValidationErrors
}

func newQuery(c *gin.Context) *query { return &query{c: c} }

func (q *query) str(name string) string { return strings.TrimSpace(q.c.Query(name)) }

func (q *query) int(name string) int {
	v := q.str(name)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		q.errs.Add(name, "integer", "%q is not an integer", v)
	}
	return n
}

func (q *query) date(name string) model.Date {
	v := q.str(name)
	if v == "" {
		return model.Date{}
	}
	d, err := model.ParseDate(v)
	if err != nil {
		q.errs.Add(name, "date", "%q is not a YYYY-MM-DD date", v)
	}
	return d
}

func (q *query) bool(name string) *bool {
	v := q.str(name)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		q.errs.Add(name, "boolean", "%q is not true or false", v)
		return nil
	}
	return &b
}

func (q *query) page() store.Page {
	limit, offset := q.int("limit"), q.int("offset")
	if limit < 0 {
		q.errs.Add("limit", "non_negative", "limit must not be negative")
	}
	return store.Page{Limit: limit, Offset: offset}
}

// ok reports whether parsing succeeded, answering 400 otherwise.
func (q *query) ok(s *Server) bool {
	if err := q.errs.Err(); err != nil {
		s.fail(q.c, err)
		return false
	}
	return true
}

// statusBody is the body of the PATCH .../status endpoints.
type statusBody struct {
	Active *bool `json:"active"`
}

func (s *Server) bindActive(c *gin.Context) (bool, bool) {
	var b statusBody
	if !s.bind(c, &b) {
		return false, false
	}
	if b.Active == nil {
		var errs apperr.ValidationErrors
		errs.Add("active", "required", "active is required")
		s.fail(c, errs.Err())
		return false, false
	}
	return *b.Active, true
}
