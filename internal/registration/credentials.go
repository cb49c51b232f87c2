package registration

import (
	"crypto/rsa"
	"crypto/sha1" //nolint:gosec // registered servers decrypt with OAEP over SHA-1
	"crypto/subtle"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	shortNameBytes    = 3
	sharedSecretBytes = 24
)

var errNotRSAKey = errors.New("public key is not an RSA key")

// parsePublicKey decodes a PEM encoded RSA key in PKIX or PKCS #1 form.
func parsePublicKey(value string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(strings.TrimSpace(value)))
	if block == nil {
		return nil, errors.New("public key is not PEM encoded")
	}
	if key, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
		rsaKey, ok := key.(*rsa.PublicKey)
		if !ok {
			return nil, errNotRSAKey
		}
		return rsaKey, nil
	}
	key, err := x509.ParsePKCS1PublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	return key, nil
}

// encryptSecret encrypts secret with RSA-OAEP and returns it base64 encoded.
func encryptSecret(random io.Reader, key *rsa.PublicKey, secret string) (string, error) {
	ciphertext, err := rsa.EncryptOAEP(sha1.New(), random, key, []byte(secret), nil)
	if err != nil {
		return "", fmt.Errorf("encrypt shared secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

func randomHex(random io.Reader, n int) (string, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(random, buf); err != nil {
		return "", fmt.Errorf("could not generate random value: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// BearerToken extracts the credential from an Authorization header. The scheme
// is matched case-insensitively; anything else yields "".
func BearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// provesPossession reports whether bearer matches the stored secret.
func provesPossession(bearer, stored string) bool {
	if bearer == "" || stored == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(bearer), []byte(stored)) == 1
}
