package middleware

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/vibemuse-edge/internal/apierror"
)

// DefaultMaxBodyBytes is the request body limit when none is configured.
const DefaultMaxBodyBytes int64 = 1 << 20

// BodyLimit rejects bodies larger than maxBytes with 413. A declared
// Content-Length is checked up front; other bodies are capped while read.
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBodyBytes
	}

	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			Fail(c, apierror.PayloadTooLarge(
				fmt.Sprintf("Request size exceeds maximum allowed size of %d bytes", maxBytes),
			).WithDetails(gin.H{"received": c.Request.ContentLength}))
			return
		}
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}

// RequireContentType rejects POST, PUT and PATCH requests whose
// Content-Type is not one of types with 415. types defaults to
// application/json.
func RequireContentType(types ...string) gin.HandlerFunc {
	if len(types) == 0 {
		types = []string{gin.MIMEJSON}
	}

	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
		default:
			c.Next()
			return
		}

		received := c.GetHeader("Content-Type")
		mediaType, _, err := mime.ParseMediaType(received)
		if err != nil || !containsFold(types, mediaType) {
			if received == "" {
				received = "none"
			}
			Fail(c, apierror.UnsupportedMediaType(
				"Expected Content-Type to be one of: "+strings.Join(types, ", "),
			).WithDetails(gin.H{"received": received}))
			return
		}

		c.Next()
	}
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

var (
	scriptTagPattern    = regexp.MustCompile(`(?is)<script\b.*?</script>`)
	jsSchemePattern     = regexp.MustCompile(`(?i)javascript:`)
	eventHandlerPattern = regexp.MustCompile(`(?i)on\w+\s*=`)
)

// SanitizeString strips script elements, javascript: schemes and inline
// event handler attributes from s and trims surrounding whitespace.
func SanitizeString(s string) string {
	s = scriptTagPattern.ReplaceAllString(s, "")
	s = jsSchemePattern.ReplaceAllString(s, "")
	s = eventHandlerPattern.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

func sanitizeValue(v any) any {
	switch t := v.(type) {
	case string:
		return SanitizeString(t)
	case []any:
		for i := range t {
			t[i] = sanitizeValue(t[i])
		}
		return t
	case map[string]any:
		for k, val := range t {
			t[k] = sanitizeValue(val)
		}
		return t
	default:
		return v
	}
}

// Sanitize rewrites JSON request bodies with every string value passed
// through SanitizeString. Bodies that are not valid JSON are left for the
// handler's binding to reject.
func Sanitize() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body == nil || c.Request.Body == http.NoBody ||
			!strings.HasPrefix(strings.ToLower(c.ContentType()), gin.MIMEJSON) {
			c.Next()
			return
		}

		raw, err := io.ReadAll(c.Request.Body)
		_ = c.Request.Body.Close()
		if err != nil {
			Fail(c, err)
			return
		}

		body := raw
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var payload any
		if err := dec.Decode(&payload); err == nil {
			if clean, err := json.Marshal(sanitizeValue(payload)); err == nil {
				body = clean
			}
		}

		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		c.Request.ContentLength = int64(len(body))
		c.Next()
	}
}
