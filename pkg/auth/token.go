package auth

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultTokenTTL is used when NewSigner is given a zero ttl
const DefaultTokenTTL = 15 * time.Minute

// Claims are the JWT claims issued to bidders. Subject is the bidder identity.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Token is a signed access token and its expiry
type Token struct {
	AccessToken string
	ExpiresAt   time.Time
}

// Signer handles token generation and validation.
type Signer struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	issuer     string
	ttl        time.Duration
}

// NewSigner creates a Signer from PEM-encoded keys.
func NewSigner(privateKeyPEM, publicKeyPEM []byte, issuer string, ttl time.Duration) (*Signer, error) {
	block, _ := pem.Decode(privateKeyPEM)
	if block == nil {
		return nil, errors.New("failed to parse private key PEM")
	}
	priv, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	pub, err := parsePublicKey(publicKeyPEM)
	if err != nil {
		return nil, err
	}

	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	return &Signer{
		privateKey: priv,
		publicKey:  pub,
		issuer:     issuer,
		ttl:        ttl,
	}, nil
}

func parsePublicKey(publicKeyPEM []byte) (*rsa.PublicKey, error) {
	blockPub, _ := pem.Decode(publicKeyPEM)
	if blockPub == nil {
		return nil, errors.New("failed to parse public key PEM")
	}
	pub, err := x509.ParsePKIXPublicKey(blockPub.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("public key is not RSA")
	}
	return rsaPub, nil
}

// GenerateToken issues an RS256 access token for the user.
func (s *Signer) GenerateToken(userID uuid.UUID, email string) (*Token, error) {
	now := time.Now()
	expiresAt := now.Add(s.ttl)

	claims := &Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signedToken, err := token.SignedString(s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return &Token{
		AccessToken: signedToken,
		ExpiresAt:   expiresAt,
	}, nil
}

// ValidateToken parses and verifies the JWT signature, expiry and issuer.
func (s *Signer) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.publicKey, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		if claims.Subject == "" {
			return nil, errors.New("token has no subject")
		}
		return claims, nil
	}

	return nil, errors.New("invalid token")
}
