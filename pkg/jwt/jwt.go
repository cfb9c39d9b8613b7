// Package jwt проверяет access-токены покупателей (RS256).
// Токены выпускает сервис авторизации, checkout хранит только публичный ключ.
package jwt

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken — подпись, срок или издатель токена не прошли проверку.
	ErrInvalidToken = errors.New("невалидный токен")

	// ErrTokenRevoked — токен или все токены пользователя отозваны.
	ErrTokenRevoked = errors.New("токен отозван")
)

// Claims содержит данные access-токена.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
	Role   string `json:"role,omitempty"`
}

// Config содержит параметры Verifier.
type Config struct {
	PublicKeyPath string
	Issuer        string
	Leeway        time.Duration // допуск расхождения часов
}

// Verifier проверяет подпись токена и blacklist.
type Verifier struct {
	publicKey *rsa.PublicKey
	parser    *jwt.Parser
	blacklist *Blacklist
}

// NewVerifier загружает публичный ключ и создаёт Verifier.
func NewVerifier(cfg Config) (*Verifier, error) {
	publicKey, err := LoadPublicKey(cfg.PublicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки публичного ключа: %w", err)
	}
	return NewVerifierWithKey(publicKey, cfg.Issuer, cfg.Leeway), nil
}

// NewVerifierWithKey создаёт Verifier с уже загруженным ключом.
func NewVerifierWithKey(publicKey *rsa.PublicKey, issuer string, leeway time.Duration) *Verifier {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(leeway),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}

	return &Verifier{
		publicKey: publicKey,
		parser:    jwt.NewParser(opts...),
	}
}

// SetBlacklist включает проверку отозванных токенов.
func (v *Verifier) SetBlacklist(bl *Blacklist) {
	v.blacklist = bl
}

// Verify проверяет токен и возвращает claims.
// Ошибка Redis при проверке blacklist возвращается как есть:
// решение о fail-open принимает вызывающий.
func (v *Verifier) Verify(ctx context.Context, tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := v.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return v.publicKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	if claims.UserID == "" {
		claims.UserID = claims.Subject
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: нет идентификатора пользователя", ErrInvalidToken)
	}

	if v.blacklist == nil {
		return claims, nil
	}

	revoked, err := v.blacklist.Check(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, ErrTokenRevoked
	}

	if claims.IssuedAt != nil {
		invalidated, err := v.blacklist.IsUserInvalidated(ctx, claims.UserID, claims.IssuedAt.Time)
		if err != nil {
			return nil, err
		}
		if invalidated {
			return nil, ErrTokenRevoked
		}
	}

	return claims, nil
}

// LoadPublicKey загружает RSA публичный ключ из PEM файла.
func LoadPublicKey(path string) (*rsa.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения файла %s: %w", path, err)
	}
	return ParsePublicKeyPEM(data)
}

// ParsePublicKeyPEM разбирает ключ в формате PKIX или PKCS#1.
func ParsePublicKeyPEM(data []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("не удалось декодировать PEM блок")
	}

	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return x509.ParsePKCS1PublicKey(block.Bytes)
	}

	rsaKey, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("ключ не является RSA публичным ключом")
	}
	return rsaKey, nil
}
