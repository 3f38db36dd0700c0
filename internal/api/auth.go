package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const identityKey contextKey = "identity"

// Claims are the bearer token claims the API understands. Subject is the
// user id; at most one of PatientID and ProfessionalID is normally set.
type Claims struct {
	PatientID      string `json:"patient_id,omitempty"`
	ProfessionalID string `json:"professional_id,omitempty"`
	jwt.RegisteredClaims
}

// Identity is the authenticated caller.
type Identity struct {
	UserID         string
	PatientID      *uuid.UUID
	ProfessionalID *uuid.UUID
}

// Authenticate enforces an HMAC-signed bearer token and stores the caller's
// Identity in the request context.
func Authenticate(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				handleError(w, r, errUnauthenticated)
				return
			}
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				handleError(w, r, errUnauthenticated)
				return
			}

			var claims Claims
			token, err := jwt.ParseWithClaims(strings.TrimPrefix(auth, "Bearer "), &claims, func(token *jwt.Token) (any, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				handleError(w, r, errUnauthenticated)
				return
			}

			id, err := identityFromClaims(claims)
			if err != nil {
				handleError(w, r, errUnauthenticated)
				return
			}

			ctx := context.WithValue(r.Context(), identityKey, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func identityFromClaims(c Claims) (Identity, error) {
	id := Identity{UserID: c.Subject}
	if c.PatientID != "" {
		p, err := uuid.Parse(c.PatientID)
		if err != nil {
			return Identity{}, err
		}
		id.PatientID = &p
	}
	if c.ProfessionalID != "" {
		p, err := uuid.Parse(c.ProfessionalID)
		if err != nil {
			return Identity{}, err
		}
		id.ProfessionalID = &p
	}
	return id, nil
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// RequirePatient rejects callers whose token carries no patient id.
func RequirePatient(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, ok := IdentityFromContext(r.Context()); !ok || id.PatientID == nil {
			handleError(w, r, errForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireProfessional rejects callers whose token carries no professional id.
func RequireProfessional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, ok := IdentityFromContext(r.Context()); !ok || id.ProfessionalID == nil {
			handleError(w, r, errForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// SignToken mints a bearer token. The API never issues tokens itself; this
// is used by tooling and tests.
func SignToken(secret string, claims Claims, ttl time.Duration) (string, error) {
	now := time.Now()
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
