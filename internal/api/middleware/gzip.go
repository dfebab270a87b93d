package middleware

import (
	"io"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzip"
)

var gzipPool = sync.Pool{
	New: func() any {
		w, _ := gzip.NewWriterLevel(io.Discard, gzip.DefaultCompression)
		return w
	},
}

type gzipWriter struct {
	gin.ResponseWriter
	gz    *gzip.Writer
	wrote bool
}

func (w *gzipWriter) Write(b []byte) (int, error) {
	w.wrote = true
	w.Header().Del("Content-Length")
	return w.gz.Write(b)
}

func (w *gzipWriter) WriteString(s string) (int, error) {
	return w.Write([]byte(s))
}

func (w *gzipWriter) WriteHeader(code int) {
	w.Header().Del("Content-Length")
	w.ResponseWriter.WriteHeader(code)
}

// Gzip compresses responses for clients that accept it. WebSocket
// upgrades and paths in skip are passed through.
func Gzip(skip ...string) gin.HandlerFunc {
	skipped := make(map[string]struct{}, len(skip))
	for _, p := range skip {
		skipped[p] = struct{}{}
	}

	return func(c *gin.Context) {
		if _, ok := skipped[c.Request.URL.Path]; ok ||
			isUpgrade(c.Request) ||
			!strings.Contains(c.GetHeader("Accept-Encoding"), "gzip") {
			c.Next()
			return
		}

		gz := gzipPool.Get().(*gzip.Writer)
		gz.Reset(c.Writer)

		c.Header("Content-Encoding", "gzip")
		c.Header("Vary", "Accept-Encoding")

		w := &gzipWriter{ResponseWriter: c.Writer, gz: gz}
		c.Writer = w
		defer func() {
			if !w.wrote {
				// Nothing was written: no gzip footer on an empty body
				gz.Reset(io.Discard)
				if !w.ResponseWriter.Written() {
					w.Header().Del("Content-Encoding")
				}
			}
			_ = gz.Close()
			gzipPool.Put(gz)
		}()

		c.Next()
	}
}
