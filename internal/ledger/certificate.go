// Package ledger holds the hashing primitives behind the certificate and audit ledgers.
package ledger

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/hkdf"

	"github.com/noah-isme/unipass-integrity-api/internal/models"
)

const fieldSeparator = "\x1f"

// Timestamp normalises t to the precision Postgres stores so hashes survive a round trip.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// CertificateHasher computes verification hashes with a key derived from the server secret.
type CertificateHasher struct {
	key []byte
}

// NewCertificateHasher derives the hashing key from masterSecret using HKDF-SHA256.
func NewCertificateHasher(masterSecret, info string) (*CertificateHasher, error) {
	if masterSecret == "" {
		return nil, errors.New("certificate master secret missing")
	}
	key := make([]byte, sha256.Size)
	reader := hkdf.New(sha256.New, []byte(masterSecret), nil, []byte(info))
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("derive certificate key: %w", err)
	}
	return &CertificateHasher{key: key}, nil
}

// Hash returns hex(SHA-256(student ‖ event ‖ issued_at ‖ secret)).
func (h *CertificateHasher) Hash(studentID, eventID string, issuedAt time.Time) string {
	sum := sha256.New()
	_, _ = io.WriteString(sum, studentID)
	_, _ = io.WriteString(sum, fieldSeparator)
	_, _ = io.WriteString(sum, eventID)
	_, _ = io.WriteString(sum, fieldSeparator)
	_, _ = io.WriteString(sum, Timestamp(issuedAt).Format(time.RFC3339Nano))
	_, _ = io.WriteString(sum, fieldSeparator)
	_, _ = sum.Write(h.key)
	return hex.EncodeToString(sum.Sum(nil))
}

// Verify recomputes the hash from the stored fields and compares in constant time.
func (h *CertificateHasher) Verify(cert models.Certificate) bool {
	expected := h.Hash(cert.StudentID, cert.EventID, cert.IssuedAt)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(cert.VerificationHash)) == 1
}

// Matches reports whether a hash presented by a verifier equals the certificate's stored hash.
func Matches(cert models.Certificate, presented string) bool {
	return subtle.ConstantTimeCompare([]byte(presented), []byte(cert.VerificationHash)) == 1
}
