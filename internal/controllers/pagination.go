package controllers

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// listQuery carries the limit/page/all/sort_by/sort_dir parameters shared by
// every list endpoint.
type listQuery struct {
	All     bool
	Limit   int
	Page    int
	SortCol string
	SortDir string
}

func parseListQuery(c *gin.Context, defaultLimit int, allowedSorts map[string]string, defaultSort string) listQuery {
	q := listQuery{
		All:   strings.EqualFold(c.Query("all"), "true") || c.Query("all") == "1",
		Limit: defaultLimit,
		Page:  1,
	}
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			q.Limit = n
		}
	}
	if v := c.Query("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			q.Page = n
		}
	}
	q.SortDir = strings.ToUpper(c.DefaultQuery("sort_dir", "DESC"))
	if q.SortDir != "ASC" && q.SortDir != "DESC" {
		q.SortDir = "DESC"
	}
	col, ok := allowedSorts[strings.ToLower(c.DefaultQuery("sort_by", defaultSort))]
	if !ok {
		col = allowedSorts[defaultSort]
	}
	q.SortCol = col
	return q
}

func (q listQuery) Order() string {
	return fmt.Sprintf("%s %s", q.SortCol, q.SortDir)
}

// Apply orders and, unless all was requested, paginates db.
func (q listQuery) Apply(db *gorm.DB) *gorm.DB {
	db = db.Order(q.Order())
	if !q.All {
		db = db.Offset((q.Page - 1) * q.Limit).Limit(q.Limit)
	}
	return db
}

func (q listQuery) Meta(total int64) gin.H {
	meta := gin.H{"total": total, "all": q.All}
	if !q.All {
		meta["limit"] = q.Limit
		meta["page"] = q.Page
		meta["sort_by"] = q.SortCol
		meta["sort_dir"] = q.SortDir
	}
	return meta
}

// parseBoolFilter accepts true/1 and false/0. ok is false for anything else.
func parseBoolFilter(v string) (val, ok bool) {
	switch strings.TrimSpace(strings.ToLower(v)) {
	case "true", "1":
		return true, true
	case "false", "0":
		return false, true
	}
	return false, false
}
