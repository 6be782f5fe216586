package mw

import (
	"bytes"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
)

// catalogPage is a rendered catalog response.
type catalogPage struct {
	status      int
	contentType string
	body        []byte
	renderedAt  time.Time
}

// pageCapture tees the body written by the handler into buf.
type pageCapture struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (w *pageCapture) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *pageCapture) WriteString(s string) (int, error) {
	w.buf.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// catalogKey identifies a page by path and canonical query, so
// "?b=1&a=2" and "?a=2&b=1" share an entry.
func catalogKey(r *http.Request) string {
	q := r.URL.Query().Encode()
	if q == "" {
		return r.URL.Path
	}
	return r.URL.Path + "?" + q
}

// CatalogCache serves GET responses of read-mostly catalog endpoints, such as
// the spot list, from entries. Responses are marked X-Cache HIT or MISS and
// hits carry an Age header. Only 2xx pages are kept. A request sending
// "Cache-Control: no-cache" re-renders the page and replaces the entry.
func CatalogCache(entries *cache.Cache, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		key := catalogKey(c.Request)
		refresh := strings.Contains(c.GetHeader("Cache-Control"), "no-cache")
		if v, found := entries.Get(key); found && !refresh {
			page := v.(catalogPage)
			h := c.Writer.Header()
			h.Set("Content-Type", page.contentType)
			h.Set("X-Cache", "HIT")
			h.Set("Age", strconv.Itoa(int(time.Since(page.renderedAt).Seconds())))
			c.Writer.WriteHeader(page.status)
			c.Writer.Write(page.body)
			c.Abort()
			return
		}

		capture := &pageCapture{ResponseWriter: c.Writer}
		capture.Header().Set("X-Cache", "MISS")
		c.Writer = capture
		c.Next()

		status := capture.Status()
		if status < 200 || status >= 300 {
			return
		}
		entries.Set(key, catalogPage{
			status:      status,
			contentType: capture.Header().Get("Content-Type"),
			body:        capture.buf.Bytes(),
			renderedAt:  time.Now(),
		}, ttl)
	}
}
