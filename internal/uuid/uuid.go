// Package uuid provides entity identifier generation and validation.
package uuid

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// UUID v4 format: xxxxxxxx-xxxx-4xxx-yxxx-xxxxxxxxxxxx
// where y is one of [8, 9, a, b] (variant bits)
var uuidV4Regex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-4[0-9a-fA-F]{3}-[89abAB][0-9a-fA-F]{3}-[0-9a-fA-F]{12}$`)

// taskinNamespace scopes derived identifiers to this application.
var taskinNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://taskin.app/ids"))

// New generates a new UUID v4. Every locally created entity gets one.
func New() string {
	return uuid.New().String()
}

// Derive returns a deterministic UUID v5 for the given name parts. Rows seeded
// identically on every device (default categories) use it so that replicas
// agree on their ids without a sync round trip.
func Derive(parts ...string) string {
	return uuid.NewSHA1(taskinNamespace, []byte(strings.Join(parts, "/"))).String()
}

// IsValid checks if a string is a valid UUID v4.
func IsValid(s string) bool {
	return uuidV4Regex.MatchString(s)
}

// IsWellFormed accepts any RFC 4122 UUID, including derived ids and ids
// minted by other clients.
func IsWellFormed(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}

// Validate returns an error if the string is not a well formed UUID.
func Validate(s string) error {
	if !IsWellFormed(s) {
		return fmt.Errorf("invalid UUID format: %q", s)
	}
	return nil
}
