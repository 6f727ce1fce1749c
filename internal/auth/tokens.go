package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultServiceIssuer is the iss claim on tokens minted by ServiceTokens.
const DefaultServiceIssuer = "workbench"

// serviceClaims is the JWT body of a service token.
type serviceClaims struct {
	jwt.RegisteredClaims
	Name   string   `json:"name,omitempty"`
	Roles  []string `json:"roles,omitempty"`
	Groups []string `json:"groups,omitempty"`
}

// ServiceTokens issues and verifies HS256 tokens for machine clients
// (CI jobs, the CLI) that have no identity provider session.
type ServiceTokens struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewServiceTokens creates a service-token verifier. The secret must be at
// least 32 bytes.
func NewServiceTokens(secret, issuer string) (*ServiceTokens, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("service token secret must be at least 32 bytes")
	}
	if issuer == "" {
		issuer = DefaultServiceIssuer
	}
	return &ServiceTokens{
		secret: []byte(secret),
		issuer: issuer,
		now:    time.Now,
	}, nil
}

// Issue mints a token for subject valid for ttl.
func (s *ServiceTokens) Issue(subject string, roles []string, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", fmt.Errorf("subject is required")
	}
	if ttl <= 0 {
		return "", fmt.Errorf("ttl must be positive")
	}

	now := s.now()
	claims := serviceClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Roles: roles,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify validates signature, issuer and expiry of a service token.
func (s *ServiceTokens) Verify(_ context.Context, rawToken string) (*Claims, error) {
	rawToken = trimBearer(rawToken)

	var sc serviceClaims
	token, err := jwt.ParseWithClaims(rawToken, &sc, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if sc.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	claims := &Claims{
		Subject: sc.Subject,
		Name:    sc.Name,
		Roles:   sc.Roles,
		Groups:  sc.Groups,
		Issuer:  sc.Issuer,
		Source:  SourceService,
	}
	if sc.ExpiresAt != nil {
		claims.Expiry = sc.ExpiresAt.Unix()
	}
	if sc.IssuedAt != nil {
		claims.IssuedAt = sc.IssuedAt.Unix()
	}
	return claims, nil
}

// Chain tries each verifier in order and returns the first success.
type Chain []Verifier

// Verify implements Verifier.
func (c Chain) Verify(ctx context.Context, rawToken string) (*Claims, error) {
	var errs []error
	for _, v := range c {
		claims, err := v.Verify(ctx, rawToken)
		if err == nil {
			return claims, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil, fmt.Errorf("%w: no verifiers configured", ErrInvalidToken)
	}
	return nil, errors.Join(errs...)
}
