package mw

import (
	"errors"
	"net/http"

	"lockstats/internal/security"
	"lockstats/pkg/httputil"

	"gitlab.com/nevasik7/alerting/logger"
)

type JWTMiddleware struct {
	log      logger.Logger
	verifier *security.RS256Verifier
}

func NewJWTMiddleware(log logger.Logger, v *security.RS256Verifier) (*JWTMiddleware, error) {
	if v == nil {
		return nil, errors.New("JWT verifier cannot be nil")
	}
	return &JWTMiddleware{log: log, verifier: v}, nil
}

func (m *JWTMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := m.verifier.VerifyBearer(r.Header.Get("Authorization"))
		if err != nil {
			m.log.Debugf("Rejected %s %s: %v", r.Method, r.URL.Path, err)

			code := "unauthorized"
			status := http.StatusUnauthorized
			if errors.Is(err, security.ErrMissingScope) {
				code, status = "forbidden", http.StatusForbidden
			}
			if err = httputil.Error(w, r, status, code, "invalid or missing bearer token", nil); err != nil {
				m.log.Errorf("JWT middleware write error: %v", err)
			}
			return
		}

		next.ServeHTTP(w, r.WithContext(security.WithClaims(r.Context(), claims)))
	})
}

func subjectFromContext(r *http.Request) string {
	if c, ok := security.ClaimsFromContext(r.Context()); ok {
		return c.Subject
	}
	return ""
}
