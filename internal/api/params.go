package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"todolist/internal/api/render"

	"github.com/gin-gonic/gin"
)

const (
	dateLayout = "2006-01-02"

	msgInvalidNumber = "Enter a whole number."
	msgInvalidDate   = "Enter a valid date."
)

// pathID 解析路径中的 :id，非法时直接写出 404。
func pathID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		render.Detail(c, http.StatusNotFound, render.DetailNotFound)
		return 0, false
	}
	return uint(id), true
}

// queryUint 解析可选的正整数查询参数，ok=false 表示格式错误。
func queryUint(c *gin.Context, key string) (*uint, bool) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, true
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return nil, false
	}
	u := uint(v)
	return &u, true
}

// queryCSV 解析逗号分隔的列表参数，忽略空项。
func queryCSV(c *gin.Context, key string) []string {
	raw := c.Query(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseDate 接受 YYYY-MM-DD 或 RFC3339，空串返回 nil。
func parseDate(raw string) (*time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, true
	}
	if t, err := time.Parse(dateLayout, raw); err == nil {
		return &t, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, false
	}
	return &t, true
}
