package external

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTIdentityVerifier validates the bearer token issued by the out-of-scope
// auth system (spec §1: "identity/token verification... accessed only
// through the interfaces in §6") and resolves it into an AuthContext. It
// trusts an HMAC-signed access token the same way
// r3e-network-service_layer/pkg/auth validates its Supabase GoTrue tokens:
// parse, check the signing method, check expiry, read the claims it needs.
type JWTIdentityVerifier struct {
	secret  []byte
	maxAge  time.Duration
	nowFunc func() time.Time
}

// NewJWTIdentityVerifier creates a JWTIdentityVerifier. maxAge rejects a
// token whose "iat" claim is older than the configured TOKEN_MAX_AGE (spec
// §6.3), independent of the token's own "exp" claim.
func NewJWTIdentityVerifier(secret string, maxAge time.Duration) *JWTIdentityVerifier {
	return &JWTIdentityVerifier{
		secret:  []byte(strings.TrimSpace(secret)),
		maxAge:  maxAge,
		nowFunc: time.Now,
	}
}

// identityClaims is the subset of the access token's claims this service
// reads. displayName and photoRef ride along as custom claims so the
// coordinator never needs a separate profile lookup just to render a
// MemberSummary or InstanceSnapshot.
type identityClaims struct {
	UserID      string `json:"sub"`
	DisplayName string `json:"displayName"`
	PhotoRef    string `json:"photoRef"`
	IssuedAt    int64  `json:"iat"`
}

// Verify implements external.IdentityVerifier.
func (v *JWTIdentityVerifier) Verify(ctx context.Context, bearerToken string) (AuthContext, error) {
	if len(v.secret) == 0 {
		return AuthContext{}, errors.New("identity verifier not configured")
	}
	if bearerToken == "" {
		return AuthContext{}, errors.New("empty bearer token")
	}

	token, err := jwt.Parse(bearerToken, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
	if err != nil {
		return AuthContext{}, fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid {
		return AuthContext{}, errors.New("invalid token")
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return AuthContext{}, errors.New("unreadable token claims")
	}
	claims := parseIdentityClaims(mapClaims)
	if claims.UserID == "" {
		return AuthContext{}, errors.New("token missing subject claim")
	}

	if v.maxAge > 0 && claims.IssuedAt > 0 {
		issuedAt := time.Unix(claims.IssuedAt, 0)
		if v.nowFunc().Sub(issuedAt) > v.maxAge {
			return AuthContext{}, errors.New("token exceeds maximum age")
		}
	}

	auth := AuthContext{UserID: claims.UserID, DisplayName: claims.DisplayName}
	if claims.PhotoRef != "" {
		photoRef := claims.PhotoRef
		auth.PhotoRef = &photoRef
	}
	return auth, nil
}

func parseIdentityClaims(m jwt.MapClaims) identityClaims {
	c := identityClaims{}
	if sub, ok := m["sub"].(string); ok {
		c.UserID = sub
	}
	if name, ok := m["displayName"].(string); ok {
		c.DisplayName = name
	}
	if photo, ok := m["photoRef"].(string); ok {
		c.PhotoRef = photo
	}
	if iat, ok := m["iat"].(float64); ok {
		c.IssuedAt = int64(iat)
	}
	return c
}
