// Package auth issues and checks bearer tokens and password hashes.
package auth

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	apperr "github.com/theheadmen/studfund/internal/errors"
	"github.com/theheadmen/studfund/internal/lifecycle"
	"golang.org/x/crypto/bcrypt"
)

// ConfigAdminID is the token subject of the administrator defined in configuration.
const ConfigAdminID int64 = -1

// Principal is the caller of a request.
type Principal struct {
	UserID int64
	Role   lifecycle.Role
	Email  string
}

func (p Principal) IsAdmin() bool {
	return p.Role == lifecycle.RoleAdmin
}

func (p Principal) IsConfigAdmin() bool {
	return p.UserID == ConfigAdminID
}

// Owns reports whether the principal is the database user ownerID.
func (p Principal) Owns(ownerID uint) bool {
	return p.UserID > 0 && uint(p.UserID) == ownerID
}

type contextKey string

const principalKey = contextKey("principal")

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

type Claims struct {
	Role  string `json:"role"`
	Email string `json:"email"`
	jwt.RegisteredClaims
}

type TokenIssuer struct {
	Secret []byte
	TTL    time.Duration
}

func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{Secret: []byte(secret), TTL: ttl}
}

func (ti *TokenIssuer) Issue(userID int64, role lifecycle.Role, email string) (string, error) {
	now := time.Now()
	claims := Claims{
		Role:  string(role),
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ti.TTL)),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(ti.Secret)
}

// Parse validates signature and expiry and returns the principal named by the token.
func (ti *TokenIssuer) Parse(tokenString string) (Principal, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return ti.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Principal{}, apperr.Wrap(apperr.KindAuth, err, apperr.ErrInvalidToken.Message)
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return Principal{}, apperr.Wrap(apperr.KindAuth, err, apperr.ErrInvalidToken.Message)
	}
	return Principal{UserID: id, Role: lifecycle.Role(claims.Role), Email: claims.Email}, nil
}

const referralAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func randomString(alphabet string, n int) (string, error) {
	buf := make([]byte, n)
	max := big.NewInt(int64(len(alphabet)))
	for i := range buf {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = alphabet[idx.Int64()]
	}
	return string(buf), nil
}

// GenerateReferralCode returns an 8 character invite code.
func GenerateReferralCode() (string, error) {
	return randomString(referralAlphabet, 8)
}

// GenerateOTPCode returns a numeric one-time code.
func GenerateOTPCode() (string, error) {
	return randomString("0123456789", lifecycle.OTPCodeLength)
}
