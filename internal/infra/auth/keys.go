package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoSigningKey — приватный ключ не задан, а эфемерный запрещен.
var ErrNoSigningKey = errors.New("auth: private key is not configured")

// LoadKeyPair разбирает PEM ключи. Публичный ключ выводится из приватного,
// если не задан явно. В dev-режиме без ключей генерируется эфемерная пара
// (токены не переживут рестарт).
func LoadKeyPair(privatePEM, publicPEM []byte, allowEphemeral bool) (*rsa.PrivateKey, *rsa.PublicKey, bool, error) {
	if len(privatePEM) == 0 {
		if !allowEphemeral {
			return nil, nil, false, ErrNoSigningKey
		}
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			return nil, nil, false, fmt.Errorf("generate ephemeral key: %w", err)
		}
		return key, &key.PublicKey, true, nil
	}

	priv, err := jwt.ParseRSAPrivateKeyFromPEM(privatePEM)
	if err != nil {
		return nil, nil, false, fmt.Errorf("parse private key: %w", err)
	}

	if len(publicPEM) == 0 {
		return priv, &priv.PublicKey, false, nil
	}
	pub, err := jwt.ParseRSAPublicKeyFromPEM(publicPEM)
	if err != nil {
		return nil, nil, false, fmt.Errorf("parse public key: %w", err)
	}
	if !priv.PublicKey.Equal(pub) {
		return nil, nil, false, fmt.Errorf("auth: public key does not match private key")
	}
	return priv, pub, false, nil
}
