package utils

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/prperemyshlev/authgate/internal/domain"
)

// IDTokenClaims are the claims of tokens minted after a successful login.
type IDTokenClaims struct {
	Email    string `json:"email"`
	Name     string `json:"name,omitempty"`
	AuthFlow string `json:"auth_flow"`
	jwt.RegisteredClaims
}

// JWTSigner mints RS256 id tokens. Its public key is published in the JWKS
// under KeyID so relying services can verify them.
type JWTSigner struct {
	key    *rsa.PrivateKey
	kid    string
	issuer string
	expiry time.Duration
	now    func() time.Time
}

// NewJWTSigner creates a new signer
func NewJWTSigner(key *rsa.PrivateKey, kid, issuer string, expiry time.Duration) *JWTSigner {
	return &JWTSigner{
		key:    key,
		kid:    kid,
		issuer: issuer,
		expiry: expiry,
		now:    time.Now,
	}
}

func (j *JWTSigner) KeyID() string {
	return j.kid
}

func (j *JWTSigner) PublicKey() *rsa.PublicKey {
	return &j.key.PublicKey
}

// SignIDToken issues a token describing who logged in and how
func (j *JWTSigner) SignIDToken(user *domain.User, flow domain.AuthFlow) (string, error) {
	now := j.now()
	claims := IDTokenClaims{
		Email:    user.Email,
		Name:     user.Name,
		AuthFlow: string(flow),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    j.issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.expiry)),
			ID:        uuid.New().String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = j.kid

	tokenString, err := token.SignedString(j.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// ValidateToken verifies signature, issuer and expiry and returns the claims
func (j *JWTSigner) ValidateToken(tokenString string) (*IDTokenClaims, error) {
	claims := &IDTokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return &j.key.PublicKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(j.issuer),
		jwt.WithTimeFunc(j.now),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	return claims, nil
}

// LoadRSAPrivateKey reads an RSA private key given inline as PEM or as a file path.
func LoadRSAPrivateKey(value string) (*rsa.PrivateKey, error) {
	pemBytes, err := ReadPEM(value)
	if err != nil {
		return nil, err
	}

	key, err := jwt.ParseRSAPrivateKeyFromPEM(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse RSA private key: %w", err)
	}

	return key, nil
}

// ReadPEM returns value itself when it holds a PEM block and otherwise reads
// the file it names. Escaped newlines from env files are expanded.
func ReadPEM(value string) ([]byte, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, errors.New("empty key")
	}

	if strings.Contains(value, "-----BEGIN") {
		return []byte(strings.ReplaceAll(value, `\n`, "\n")), nil
	}

	data, err := os.ReadFile(value)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	return data, nil
}
