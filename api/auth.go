package api

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"

	"chat-server/domain"
)

const (
	tokenIssuer   = "chat_server"
	tokenAudience = "chat_web"
	tokenTTL      = 7 * 24 * time.Hour
)

// Claims is the token payload attached to every authenticated request.
type Claims struct {
	UserID int64 `json:"uid"`
	WsID   int64 `json:"ws_id"`
	jwt.RegisteredClaims
}

// Auth signs and verifies access tokens. In the default mode it holds a
// local Ed25519 key pair; when constructed with a JWKS it verifies RS256
// tokens issued by an external identity provider instead and cannot sign.
type Auth struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey

	jwks     *keyfunc.JWKS
	audience string
	issuer   string
}

// NewAuth creates an Auth instance from PEM-encoded Ed25519 keys.
func NewAuth(privPEM, pubPEM []byte) (*Auth, error) {
	priv, err := jwt.ParseEdPrivateKeyFromPEM(privPEM)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	pub, err := jwt.ParseEdPublicKeyFromPEM(pubPEM)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	edPriv, ok := priv.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("private key is not Ed25519")
	}
	edPub, ok := pub.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("public key is not Ed25519")
	}
	return &Auth{priv: edPriv, pub: edPub, audience: tokenAudience, issuer: tokenIssuer}, nil
}

// NewAuthJWKS creates a verify-only Auth instance backed by a remote JWKS.
// audience and issuer are the values the identity provider stamps on its
// tokens; an empty value skips that check. The user id is taken from the
// uid claim, falling back to a numeric subject.
func NewAuthJWKS(jwks *keyfunc.JWKS, audience, issuer string) *Auth {
	return &Auth{jwks: jwks, audience: audience, issuer: issuer}
}

// Sign issues a token for the user.
func (a *Auth) Sign(user *domain.User) (string, error) {
	if a.priv == nil {
		return "", errors.New("auth is verify-only")
	}
	now := time.Now()
	claims := Claims{
		UserID: user.ID,
		WsID:   user.WsID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Audience:  jwt.ClaimStrings{tokenAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(a.priv)
}

// Verify parses and validates a token, returning its claims.
func (a *Auth) Verify(tokenStr string) (*Claims, error) {
	var (
		kf      jwt.Keyfunc
		methods []string
	)
	if a.jwks != nil {
		kf = a.jwks.Keyfunc
		methods = []string{"RS256"}
	} else {
		kf = func(*jwt.Token) (interface{}, error) { return a.pub, nil }
		methods = []string{"EdDSA"}
	}
	claims := &Claims{}
	parser := jwt.NewParser(jwt.WithValidMethods(methods))
	if _, err := parser.ParseWithClaims(tokenStr, claims, kf); err != nil {
		return nil, err
	}
	if a.issuer != "" && !claims.VerifyIssuer(a.issuer, true) {
		return nil, errors.New("invalid issuer")
	}
	if a.audience != "" && !claims.VerifyAudience(a.audience, true) {
		return nil, errors.New("invalid audience")
	}
	if claims.UserID == 0 && claims.Subject != "" {
		if id, err := strconv.ParseInt(claims.Subject, 10, 64); err == nil {
			claims.UserID = id
		}
	}
	if claims.UserID == 0 {
		return nil, errors.New("missing user id claim")
	}
	return claims, nil
}
