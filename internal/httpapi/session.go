package httpapi

import (
	"errors"
	"slices"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"laroza/backend/internal/domain"
	"laroza/backend/internal/store"
)

var ErrInvalidSession = errors.New("invalid or expired session")

// SessionManager signs the employee selection into a bearer token. There is
// no password: the employee list is the whole credential set.
type SessionManager struct {
	secret    []byte
	ttl       time.Duration
	employees []string
	now       func() time.Time
}

type sessionClaims struct {
	jwtlib.RegisteredClaims
	StoreType string `json:"store_type"`
}

func NewSessionManager(secret string, ttl time.Duration, employees []string) *SessionManager {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &SessionManager{
		secret:    []byte(secret),
		ttl:       ttl,
		employees: slices.Clone(employees),
		now:       time.Now,
	}
}

func (m *SessionManager) Employees() []string {
	return slices.Clone(m.employees)
}

func (m *SessionManager) Issue(req domain.SessionRequest) (domain.SessionResponse, error) {
	employee := strings.TrimSpace(req.Employee)
	storeType := strings.TrimSpace(req.StoreType)
	if employee == "" {
		return domain.SessionResponse{}, store.NewValidationError("employee", "is required")
	}
	if !slices.Contains(m.employees, employee) {
		return domain.SessionResponse{}, store.NewValidationError("employee", "is not a known employee")
	}
	if !slices.Contains(domain.StoreTypes, storeType) {
		return domain.SessionResponse{}, store.NewValidationError("store_type", "must be one of: online, boutique")
	}

	now := m.now().UTC()
	expiresAt := now.Add(m.ttl)
	claims := sessionClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   employee,
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    "laroza",
		},
		StoreType: storeType,
	}
	token, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return domain.SessionResponse{}, err
	}

	return domain.SessionResponse{
		Token:     token,
		Employee:  employee,
		StoreType: storeType,
		ExpiresAt: expiresAt.Format(time.RFC3339),
	}, nil
}

func (m *SessionManager) Parse(tokenStr string) (domain.Actor, error) {
	claims := &sessionClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		return m.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}), jwtlib.WithIssuer("laroza"), jwtlib.WithTimeFunc(m.now))
	if err != nil || !token.Valid {
		return domain.Actor{}, ErrInvalidSession
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domain.Actor{}, ErrInvalidSession
	}
	// An employee removed from the roster loses access before expiry.
	if !slices.Contains(m.employees, sub) || !slices.Contains(domain.StoreTypes, claims.StoreType) {
		return domain.Actor{}, ErrInvalidSession
	}
	return domain.Actor{Employee: sub, StoreType: claims.StoreType}, nil
}
