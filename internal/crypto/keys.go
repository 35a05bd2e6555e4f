// Package crypto derives key-pair fingerprints and public key bodies from
// local private key files, in the formats the cloud providers report for
// registered key pairs.
package crypto

import (
	"crypto/md5" // #nosec G501 -- providers report MD5 key fingerprints
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/ssh"
)

// FingerprintFromKeyFile computes the fingerprint of the private key at
// keyPath in the format the given provider uses:
//
//   - aliyun: plain MD5 hex of the OpenSSH wire-format public key
//   - aws: colon-separated MD5 hex of the DER SubjectPublicKeyInfo
//   - tencent: colon-separated MD5 hex of the OpenSSH wire-format public key
func FingerprintFromKeyFile(keyPath, provider string) (string, error) {
	signer, err := loadSigner(keyPath)
	if err != nil {
		return "", err
	}

	switch provider {
	case "aliyun":
		sum := md5.Sum(signer.PublicKey().Marshal()) // #nosec G401
		return hex.EncodeToString(sum[:]), nil
	case "aws":
		der, err := publicKeyDER(signer)
		if err != nil {
			return "", err
		}
		sum := md5.Sum(der) // #nosec G401
		return colonHex(sum[:]), nil
	case "tencent":
		sum := md5.Sum(signer.PublicKey().Marshal()) // #nosec G401
		return colonHex(sum[:]), nil
	default:
		return "", fmt.Errorf("unsupported provider: %s", provider)
	}
}

// PublicKeyFromKeyFile returns the OpenSSH authorized-keys form of the public
// key derived from the private key at keyPath.
func PublicKeyFromKeyFile(keyPath string) (string, error) {
	signer, err := loadSigner(keyPath)
	if err != nil {
		return "", err
	}
	body := ssh.MarshalAuthorizedKey(signer.PublicKey())
	return strings.TrimSpace(string(body)), nil
}

// loadSigner parses the private key file, accepting both PEM and OpenSSH
// private key formats.
func loadSigner(keyPath string) (ssh.Signer, error) {
	keyData, err := os.ReadFile(keyPath) // #nosec G304 -- path comes from operator config
	if err != nil {
		return nil, fmt.Errorf("failed to read key file %s: %w", keyPath, err)
	}
	signer, err := ssh.ParsePrivateKey(keyData)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key %s: %w", keyPath, err)
	}
	return signer, nil
}

// publicKeyDER re-encodes the signer's public key as DER
// SubjectPublicKeyInfo, the encoding AWS fingerprints imported keys with.
func publicKeyDER(signer ssh.Signer) ([]byte, error) {
	cryptoKey, ok := signer.PublicKey().(ssh.CryptoPublicKey)
	if !ok {
		return nil, fmt.Errorf("public key does not expose a crypto key")
	}
	rsaKey, ok := cryptoKey.CryptoPublicKey().(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("only RSA keys are supported for AWS fingerprints")
	}
	return x509.MarshalPKIXPublicKey(rsaKey)
}

func colonHex(sum []byte) string {
	parts := make([]string, len(sum))
	for i, b := range sum {
		parts[i] = hex.EncodeToString([]byte{b})
	}
	return strings.Join(parts, ":")
}

// ParsePEMPrivateKey is a helper for callers that need the raw RSA key, for
// example to register the public key body with a provider.
func ParsePEMPrivateKey(keyData []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(keyData)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err == nil {
		return key, nil
	}
	parsed, err2 := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err2 != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	rsaKey, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("not an RSA private key")
	}
	return rsaKey, nil
}

// Base64PublicKeyBody returns only the base64 blob of an OpenSSH public key
// line ("ssh-rsa AAAA... comment" -> "AAAA...").
func Base64PublicKeyBody(authorizedKey string) (string, error) {
	fields := strings.Fields(authorizedKey)
	if len(fields) < 2 {
		return "", fmt.Errorf("malformed authorized key line")
	}
	if _, err := base64.StdEncoding.DecodeString(fields[1]); err != nil {
		return "", fmt.Errorf("malformed key body: %w", err)
	}
	return fields[1], nil
}
