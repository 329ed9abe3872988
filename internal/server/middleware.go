package server

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"maintenance/internal/domain/errors"
	"maintenance/internal/domain/models"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzip"
)

const (
	callerKey       = "caller"
	tokenCookieName = "jwt_token"
)

// authenticate resolves the bearer token (or jwt_token cookie) into a
// caller and aborts with 401 when that fails.
func (api *TaskAPI) authenticate() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		caller, err := api.users.ResolveCaller(ctx.Request.Context(), requestToken(ctx))
		if err != nil {
			api.writeError(ctx, err)
			return
		}
		ctx.Set(callerKey, caller)
		ctx.Next()
	}
}

func requestToken(ctx *gin.Context) string {
	header := ctx.GetHeader("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	if cookie, err := ctx.Cookie(tokenCookieName); err == nil {
		return cookie
	}
	return ""
}

func callerFrom(ctx *gin.Context) *models.Caller {
	v, ok := ctx.Get(callerKey)
	if !ok {
		return nil
	}
	caller, _ := v.(*models.Caller)
	return caller
}

func RequestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()
		log.Info("http request",
			"method", ctx.Request.Method,
			"path", ctx.Request.URL.Path,
			"status", ctx.Writer.Status(),
			"latency", time.Since(start),
			"client_ip", ctx.ClientIP(),
		)
	}
}

// CORS returns nil when no origins are configured.
func CORS(origins []string) gin.HandlerFunc {
	if len(origins) == 0 {
		return nil
	}
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Content-Encoding", "Accept-Encoding", "Authorization"},
		ExposeHeaders: []string{"Content-Length", "Content-Encoding"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 1 && origins[0] == "*" {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cors.New(cfg)
}

type gzipBody struct {
	*gzip.Reader
	body io.ReadCloser
}

func (b *gzipBody) Close() error {
	err := b.Reader.Close()
	if cerr := b.body.Close(); err == nil {
		err = cerr
	}
	return err
}

func GzipRequestDecompress() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if !strings.Contains(strings.ToLower(ctx.GetHeader("Content-Encoding")), "gzip") {
			ctx.Next()
			return
		}
		gr, err := gzip.NewReader(ctx.Request.Body)
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": errors.ErrInvalidGzipRequest.Error()})
			return
		}
		ctx.Request.Body = &gzipBody{Reader: gr, body: ctx.Request.Body}
		ctx.Request.Header.Del("Content-Encoding")
		ctx.Request.Header.Del("Content-Length")
		ctx.Request.ContentLength = -1
		ctx.Next()
	}
}

const minCompressSize = 1024

var nonCompressibleStatuses = map[int]bool{
	http.StatusNoContent:      true,
	http.StatusNotModified:    true,
	http.StatusPartialContent: true,
}

var compressibleTypes = []string{
	"application/json",
	"application/javascript",
	"application/xml",
	"text/",
}

// gzipResponseWriter buffers the first minCompressSize bytes, then
// decides once whether the rest of the response is compressed.
type gzipResponseWriter struct {
	gin.ResponseWriter
	gw  *gzip.Writer
	buf bytes.Buffer
}

func (w *gzipResponseWriter) Write(data []byte) (int, error) {
	if w.gw != nil {
		n, err := w.gw.Write(data)
		if err != nil {
			return n, errors.ErrGzipCompressionFailed
		}
		return n, nil
	}

	w.buf.Write(data)
	if w.buf.Len() < minCompressSize {
		return len(data), nil
	}
	if w.mayCompress() {
		w.enableGzip()
		if _, err := w.gw.Write(w.buf.Bytes()); err != nil {
			return 0, errors.ErrGzipCompressionFailed
		}
	} else if _, err := w.ResponseWriter.Write(w.buf.Bytes()); err != nil {
		return 0, err
	}
	w.buf.Reset()
	return len(data), nil
}

func (w *gzipResponseWriter) WriteString(s string) (int, error) { return w.Write([]byte(s)) }

func (w *gzipResponseWriter) mayCompress() bool {
	if nonCompressibleStatuses[w.Status()] || w.Header().Get("Content-Encoding") != "" {
		return false
	}
	ct := strings.ToLower(w.Header().Get("Content-Type"))
	if ct == "" || strings.HasPrefix(ct, "text/event-stream") {
		return false
	}
	for _, prefix := range compressibleTypes {
		if strings.HasPrefix(ct, prefix) {
			return true
		}
	}
	return false
}

func (w *gzipResponseWriter) enableGzip() {
	w.Header().Del("Content-Length")
	w.Header().Set("Content-Encoding", "gzip")
	w.gw = gzip.NewWriter(w.ResponseWriter)
}

func (w *gzipResponseWriter) Flush() {
	if w.gw != nil {
		_ = w.gw.Flush()
	} else if w.buf.Len() > 0 {
		_, _ = w.ResponseWriter.Write(w.buf.Bytes())
		w.buf.Reset()
	}
	w.ResponseWriter.Flush()
}

func (w *gzipResponseWriter) finish() error {
	if w.gw != nil {
		return w.gw.Close()
	}
	if w.buf.Len() > 0 {
		_, err := w.ResponseWriter.Write(w.buf.Bytes())
		w.buf.Reset()
		return err
	}
	return nil
}

func GzipResponseCompress() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if ctx.Request.Method == http.MethodHead ||
			!strings.Contains(strings.ToLower(ctx.GetHeader("Accept-Encoding")), "gzip") {
			ctx.Next()
			return
		}

		vary := ctx.Writer.Header().Get("Vary")
		if vary == "" {
			ctx.Writer.Header().Set("Vary", "Accept-Encoding")
		} else if !strings.Contains(vary, "Accept-Encoding") {
			ctx.Writer.Header().Set("Vary", vary+", Accept-Encoding")
		}

		gw := &gzipResponseWriter{ResponseWriter: ctx.Writer}
		ctx.Writer = gw
		defer func() {
			ctx.Writer = gw.ResponseWriter
		}()

		ctx.Next()

		if err := gw.finish(); err != nil {
			_ = ctx.Error(errors.ErrGzipCompressionFailed)
		}
	}
}
