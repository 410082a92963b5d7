package logger

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iurnickita/cashback/internal/logger/config"
)

const (
	// HeaderRequestID связывает записи лога с ответом клиенту
	HeaderRequestID = "X-Request-Id"

	defaultLevel  = "info"
	maxLoggedBody = 2048
)

// NewZapLog строит production-логер с уровнем из конфигурации (info по умолчанию).
func NewZapLog(cfg config.Config) (*zap.Logger, error) {
	level := strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if level == "" {
		level = defaultLevel
	}
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}

	zapcfg := zap.NewProductionConfig()
	zapcfg.Level = lvl
	return zapcfg.Build(zap.Fields(zap.String("service", "cashback")))
}

// RequestLogMdlw пишет в лог запрос и ответ. Тела файлов выгрузок не
// пишутся, остальные тела обрезаются до maxLoggedBody.
func RequestLogMdlw(h http.HandlerFunc, zaplog *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, requestID)
		reqlog := zaplog.With(zap.String("request_id", requestID))

		body := "<multipart>"
		if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body.Close()
			r.Body = io.NopCloser(bytes.NewReader(bodyBytes))
			body = truncate(bodyBytes)
		}
		reqlog.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int64("size", r.ContentLength),
			zap.String("body", body),
		)

		rw := newResponseRecorder(w)
		start := time.Now()
		h(rw, r)

		fields := []zap.Field{
			zap.Int("code", rw.status),
			zap.Int("length", rw.length),
			zap.Duration("duration", time.Since(start)),
			zap.String("body", truncate(rw.body)),
		}
		if rw.status >= http.StatusInternalServerError {
			reqlog.Warn("response", fields...)
			return
		}
		reqlog.Info("response", fields...)
	}
}

func truncate(b []byte) string {
	if len(b) > maxLoggedBody {
		return string(b[:maxLoggedBody]) + "..."
	}
	return string(b)
}

// responseRecorder запоминает код, длину и начало тела ответа.
type responseRecorder struct {
	http.ResponseWriter
	status int
	length int
	body   []byte
}

func newResponseRecorder(w http.ResponseWriter) *responseRecorder {
	return &responseRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (rw *responseRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseRecorder) Write(b []byte) (int, error) {
	if free := maxLoggedBody + 1 - len(rw.body); free > 0 {
		rw.body = append(rw.body, b[:min(free, len(b))]...)
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.length += n
	return n, err
}
