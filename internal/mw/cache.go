package mw

import (
	"bytes"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
)

type cachedResponse struct {
	status  int
	headers http.Header
	body    []byte
}

type bodyCacheWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w bodyCacheWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w bodyCacheWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// ResponseCache keeps successful GET responses in memory.
type ResponseCache struct {
	store *cache.Cache
	ttl   time.Duration
}

// NewResponseCache creates a cache whose entries live for ttl.
func NewResponseCache(ttl time.Duration) *ResponseCache {
	return &ResponseCache{
		store: cache.New(ttl, 2*ttl),
		ttl:   ttl,
	}
}

// Flush drops every cached response.
func (rc *ResponseCache) Flush() {
	rc.store.Flush()
}

// Len returns the number of cached responses, expired ones included.
func (rc *ResponseCache) Len() int {
	return rc.store.ItemCount()
}

// Handler serves GET requests from the cache and records 2xx responses.
func (rc *ResponseCache) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		key := c.Request.URL.RequestURI()
		if v, found := rc.store.Get(key); found {
			cached := v.(cachedResponse)
			// Headers must be in place before the status line goes out.
			for k, vals := range cached.headers {
				c.Writer.Header()[k] = vals
			}
			c.Writer.Header().Set("X-Cache", "HIT")
			c.Writer.WriteHeader(cached.status)
			_, _ = c.Writer.Write(cached.body)
			c.Abort()
			return
		}

		blw := &bodyCacheWriter{body: bytes.NewBuffer(nil), ResponseWriter: c.Writer}
		c.Writer = blw

		c.Next()

		if status := blw.Status(); status >= 200 && status < 300 {
			rc.store.Set(key, cachedResponse{
				status:  status,
				headers: blw.Header().Clone(),
				body:    bytes.Clone(blw.body.Bytes()),
			}, rc.ttl)
		}
	}
}
