package domain

import (
	"crypto/sha256"
	"encoding/hex"

	"golang.org/x/text/unicode/norm"
)

// DomainConflict separates conflict ids from any other hashed identity.
const DomainConflict = "tableflow/conflict/v1"

// hashWithDomain computes SHA256(domain + 0x00 + parts joined by 0x00).
func hashWithDomain(domain string, parts ...string) string {
	h := sha256.New()
	h.Write([]byte(domain))
	for _, p := range parts {
		h.Write([]byte{0x00})
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// ConflictID computes the stable id of the (walk-in, upcoming) pair.
// The first 32 hex characters are enough to be unique per restaurant.
func ConflictID(walkInBookingID, upcomingBookingID string) string {
	return hashWithDomain(DomainConflict, walkInBookingID, upcomingBookingID)[:32]
}

// NormalizeName returns the NFC form of a guest display name so that
// visually identical names render and compare identically.
func NormalizeName(name string) string {
	return norm.NFC.String(name)
}
