package auth

import (
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultTTL applies when no positive TTL is configured.
const DefaultTTL = 60 * time.Minute

// Claims extends the registered claims with the caller's role.
type Claims struct {
	jwt.RegisteredClaims
	Role Role `json:"role"`
}

// Issuer signs access tokens.
type Issuer struct {
	secret []byte
	apiKey string
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer creates an issuer. apiKey may be empty, which disables
// Exchange.
func NewIssuer(secret, apiKey string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Issuer{secret: []byte(secret), apiKey: apiKey, ttl: ttl, now: time.Now}
}

// TTL returns the token lifetime.
func (i *Issuer) TTL() time.Duration { return i.ttl }

// Issue signs a token for subject with role.
func (i *Issuer) Issue(subject string, role Role) (string, error) {
	if subject == "" || !role.Valid() {
		return "", fmt.Errorf("%w: subject and a known role are required", ErrInvalidCredentials)
	}

	now := i.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			ID:        uuid.NewString(),
		},
		Role: role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("signing access token: %w", err)
	}
	return signed, nil
}

// Exchange trades the configured API key for an admin token.
func (i *Issuer) Exchange(apiKey, client string) (string, error) {
	if i.apiKey == "" {
		return "", ErrNoAPIKey
	}
	if subtle.ConstantTimeCompare([]byte(apiKey), []byte(i.apiKey)) != 1 {
		return "", ErrInvalidCredentials
	}
	if client == "" {
		client = "api-key"
	}
	return i.Issue(client, RoleAdmin)
}

// Parse validates signature, expiry and required claims.
func (i *Issuer) Parse(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(_ *jwt.Token) (any, error) {
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(i.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	if !claims.Role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrTokenInvalid, claims.Role)
	}
	return claims, nil
}
