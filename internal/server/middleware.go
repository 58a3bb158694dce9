package server

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/w3a11y/artisan-wordpress-sub001/internal/apperrors"
	"github.com/w3a11y/artisan-wordpress-sub001/internal/httpjson"
	"github.com/w3a11y/artisan-wordpress-sub001/internal/nonce"
	"github.com/w3a11y/artisan-wordpress-sub001/pkg/models"
)

// SessionHeader names the session a nonce is bound to
const SessionHeader = "X-W3A11Y-Session"

// DefaultSession is used when a request carries no session header
const DefaultSession = "admin"

func session(r *http.Request) string {
	if s := strings.TrimSpace(r.Header.Get(SessionHeader)); s != "" {
		return s
	}
	return DefaultSession
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func requestLogger(log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			entry := log.WithFields(logrus.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   rec.status,
				"duration": time.Since(start).Round(time.Millisecond),
			})
			switch {
			case rec.status >= 500:
				entry.Error("Request failed")
			case rec.status >= 400:
				entry.Warn("Request rejected")
			default:
				entry.Debug("Request served")
			}
		})
	}
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+models.NonceHeader+", "+SessionHeader)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// adminOnly requires the admin bearer token
func adminOnly(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				httpjson.Write(w, http.StatusUnauthorized, models.ErrorResponse{
					Code:    "unauthorized",
					Message: "admin token required",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// nonceRequired rejects requests whose nonce is missing, forged or expired
func nonceRequired(m *nonce.Manager, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !m.Valid(r.Header.Get(models.NonceHeader), action, session(r)) {
				httpjson.Error(w, apperrors.New(apperrors.KindAuth, "nonce", "Security check failed, reload the page and try again"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
