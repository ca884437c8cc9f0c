package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	docIDKey     contextKey = "doc_id"
)

// requestIDMiddleware assigns every request an id, reusing X-Request-ID
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, requestID)))
	})
}

// loggingMiddleware logs HTTP requests and responses
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		log := s.logger.WithRequestID(getRequestID(r.Context()))

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		log.Debug("HTTP request started",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("client_ip", s.proxies.clientIP(r)),
			zap.String("user_agent", r.UserAgent()))

		next.ServeHTTP(rw, r)

		log.Info("HTTP request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status_code", rw.statusCode),
			zap.Duration("duration", time.Since(start)),
			zap.Int("response_size", rw.size))
	})
}

// rateLimitMiddleware rejects clients exceeding their request budget
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow(s.proxies.clientIP(r)) {
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// bodyLimitMiddleware caps the request body size
func (s *Server) bodyLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if limit := s.config.Server.MaxBodyBytes; limit > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, limit)
		}
		next.ServeHTTP(w, r)
	})
}

// limiterIdle is how long an unused client limiter is kept
const limiterIdle = 3 * time.Minute

// clientLimiter keeps one token bucket per client IP
type clientLimiter struct {
	limit   rate.Limit
	burst   int
	mu      sync.Mutex
	clients map[string]*clientEntry
	swept   time.Time
}

type clientEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newClientLimiter(requestsPerMin, burst int) *clientLimiter {
	return &clientLimiter{
		limit:   rate.Limit(float64(requestsPerMin) / 60),
		burst:   burst,
		clients: make(map[string]*clientEntry),
		swept:   time.Now(),
	}
}

// Allow reports whether clientIP may make a request now
func (l *clientLimiter) Allow(clientIP string) bool {
	now := time.Now()

	l.mu.Lock()
	entry, ok := l.clients[clientIP]
	if !ok {
		entry = &clientEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[clientIP] = entry
	}
	entry.lastSeen = now
	if now.Sub(l.swept) > limiterIdle {
		for ip, e := range l.clients {
			if now.Sub(e.lastSeen) > limiterIdle {
				delete(l.clients, ip)
			}
		}
		l.swept = now
	}
	l.mu.Unlock()

	return entry.limiter.AllowN(now, 1)
}

// responseWriter wraps http.ResponseWriter to capture response data
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	size       int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	size, err := rw.ResponseWriter.Write(b)
	rw.size += size
	return size, err
}

// getRequestID extracts request ID from context
func getRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		return requestID
	}
	return "unknown"
}

func getDocID(ctx context.Context) string {
	docID, _ := ctx.Value(docIDKey).(string)
	return docID
}
