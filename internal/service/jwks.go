package service

import (
	"bytes"
	"crypto/rsa"
	"encoding/base64"
	"math/big"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prperemyshlev/authgate/internal/utils"
	"go.uber.org/zap"
)

// JWK is one RSA public key in JSON Web Key form
type JWK struct {
	Kty string `json:"kty"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type JWKSet struct {
	Keys []JWK `json:"keys"`
}

// PublicKeyConfig describes a configured verification key. PEM may hold the
// key inline or name a file.
type PublicKeyConfig struct {
	KID string
	Alg string
	Use string
	PEM string
}

// JWKSProvider publishes the public keys relying services use to verify
// tokens. The set is built once; keys that cannot be read are left out.
type JWKSProvider struct {
	set JWKSet
}

// NewJWKSProvider builds the key set from configured keys and, when signer
// is not nil, the signer's own key.
func NewJWKSProvider(configured []PublicKeyConfig, signer *utils.JWTSigner, logger *zap.Logger) *JWKSProvider {
	set := JWKSet{Keys: []JWK{}}
	seen := make(map[string]bool)

	add := func(key JWK) {
		if seen[key.Kid] {
			logger.Debug("skipping duplicate JWKS key", zap.String("kid", key.Kid))
			return
		}
		seen[key.Kid] = true
		set.Keys = append(set.Keys, key)
	}

	for _, c := range configured {
		if c.PEM == "" {
			continue
		}
		pemBytes, err := utils.ReadPEM(c.PEM)
		if err != nil {
			logger.Debug("skipping unreadable JWKS key", zap.String("kid", c.KID), zap.Error(err))
			continue
		}
		pub, err := jwt.ParseRSAPublicKeyFromPEM(pemBytes)
		if err != nil {
			logger.Debug("skipping non-RSA or malformed JWKS key", zap.String("kid", c.KID), zap.Error(err))
			continue
		}
		add(rsaJWK(pub, c.KID, c.Alg, c.Use))
	}

	if signer != nil {
		add(rsaJWK(signer.PublicKey(), signer.KeyID(), jwt.SigningMethodRS256.Alg(), "sig"))
	}

	return &JWKSProvider{set: set}
}

func (p *JWKSProvider) Keys() JWKSet {
	return p.set
}

func rsaJWK(pub *rsa.PublicKey, kid, alg, use string) JWK {
	e := big.NewInt(int64(pub.E)).Bytes()
	e = bytes.TrimLeft(e, "\x00")

	return JWK{
		Kty: "RSA",
		Use: use,
		Alg: alg,
		Kid: kid,
		N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(e),
	}
}
