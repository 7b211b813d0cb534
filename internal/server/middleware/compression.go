package middleware

import (
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzip"
)

// CompressionConfig holds configuration for the compression middleware.
type CompressionConfig struct {
	Level     int
	SkipPaths []string
}

// Compression returns a middleware that gzips responses for clients that
// accept it.
func Compression() gin.HandlerFunc {
	return CompressionWithConfig(CompressionConfig{Level: gzip.DefaultCompression})
}

// CompressionWithConfig returns a compression middleware with custom configuration.
func CompressionWithConfig(config CompressionConfig) gin.HandlerFunc {
	level := config.Level
	if level < gzip.HuffmanOnly || level > gzip.BestCompression {
		level = gzip.DefaultCompression
	}

	pool := &sync.Pool{
		New: func() any {
			gz, _ := gzip.NewWriterLevel(nil, level)
			return gz
		},
	}

	skipPaths := make(map[string]bool, len(config.SkipPaths))
	for _, path := range config.SkipPaths {
		skipPaths[path] = true
	}

	return func(c *gin.Context) {
		if skipPaths[c.Request.URL.Path] || !acceptsGzip(c.Request) || isUpgrade(c.Request) {
			c.Next()
			return
		}

		gw := &gzipWriter{ResponseWriter: c.Writer, pool: pool}
		c.Writer = gw
		defer func() {
			gw.finish()
			c.Writer = gw.ResponseWriter
		}()

		c.Next()
	}
}

// gzipWriter starts compressing on the first body write, so a request that
// writes nothing leaves the response free for a later writer.
type gzipWriter struct {
	gin.ResponseWriter
	pool *sync.Pool
	gz   *gzip.Writer
}

func (w *gzipWriter) start() {
	if w.gz != nil {
		return
	}
	h := w.Header()
	if h.Get("Content-Encoding") != "" {
		return
	}
	h.Del("Content-Length")
	h.Set("Content-Encoding", "gzip")
	h.Add("Vary", "Accept-Encoding")

	w.gz = w.pool.Get().(*gzip.Writer)
	w.gz.Reset(w.ResponseWriter)
}

func (w *gzipWriter) Write(b []byte) (int, error) {
	if !bodyAllowed(w.Status()) {
		return w.ResponseWriter.Write(b)
	}
	w.start()
	if w.gz == nil {
		return w.ResponseWriter.Write(b)
	}
	return w.gz.Write(b)
}

func (w *gzipWriter) WriteString(s string) (int, error) {
	return w.Write([]byte(s))
}

func (w *gzipWriter) Flush() {
	if w.gz != nil {
		_ = w.gz.Flush()
	}
	w.ResponseWriter.Flush()
}

func (w *gzipWriter) finish() {
	if w.gz == nil {
		return
	}
	_ = w.gz.Close()
	w.gz.Reset(nil)
	w.pool.Put(w.gz)
	w.gz = nil
}

func acceptsGzip(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		enc, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		if strings.EqualFold(strings.TrimSpace(enc), "gzip") {
			return strings.ReplaceAll(strings.TrimSpace(params), " ", "") != "q=0"
		}
	}
	return false
}

func isUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket") ||
		strings.Contains(strings.ToLower(r.Header.Get("Connection")), "upgrade")
}

func bodyAllowed(status int) bool {
	return status != http.StatusNoContent && status != http.StatusNotModified &&
		(status < 100 || status >= 200)
}
