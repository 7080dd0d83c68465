// Package token generates and verifies the secret bodies behind session
// tokens and access keys.
//
// A body has the form <prefix><lookupKey>.<secret>. The prefix identifies the
// credential kind, the lookup key is a short non-secret fragment used to
// locate the stored row, and the secret is the part that is actually proven.
// Only a one-way hash of the secret is ever stored; the body is returned to
// the caller exactly once at issuance.
package token

import (
	"crypto/subtle"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/keyfobhq/keyfob/internal/generate"
)

// Kind discriminates credential kinds. New kinds must be added here and to
// every switch on Kind, so the compiler keeps dispatch exhaustive.
type Kind int

const (
	KindSession Kind = iota + 1
	KindAccessKey
)

func (k Kind) String() string {
	switch k {
	case KindSession:
		return "session"
	case KindAccessKey:
		return "access-key"
	}
	return "unknown"
}

// Prefix returns the body prefix that marks a credential of this kind.
func (k Kind) Prefix() string {
	switch k {
	case KindSession:
		return "st_"
	case KindAccessKey:
		return "ak_"
	}
	return ""
}

const (
	// LookupKeyLength is the length of the non-secret fragment used to
	// look up the stored credential.
	LookupKeyLength = 12
	// SecretLength is the length of the secret fragment. 43 alphanumeric
	// characters carry just over 256 bits of entropy.
	SecretLength = 43
)

// Generated is a freshly minted credential secret. Body must be handed to the
// caller and then discarded; LookupKey and Hash are the only parts that may
// be persisted.
type Generated struct {
	Body      string
	LookupKey string
	Hash      []byte
}

// Generate mints a new credential body of the given kind. An error from the
// system random source is not recoverable by retrying.
func Generate(kind Kind) (Generated, error) {
	if kind.Prefix() == "" {
		return Generated{}, fmt.Errorf("unknown credential kind %d", kind)
	}

	lookupKey := generate.MathRandom(LookupKeyLength, generate.CharsetAlphaNumeric)
	secret, err := generate.CryptoRandom(SecretLength, generate.CharsetAlphaNumeric)
	if err != nil {
		return Generated{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return Generated{}, err
	}

	return Generated{
		Body:      kind.Prefix() + lookupKey + "." + secret,
		LookupKey: lookupKey,
		Hash:      hash,
	}, nil
}

// Parse splits a presented body into its kind, lookup key, and secret. It
// applies the same transform used at issuance, so the lookup key it returns
// locates the row the body was issued against.
func Parse(body string) (kind Kind, lookupKey string, secret string, err error) {
	switch {
	case strings.HasPrefix(body, KindSession.Prefix()):
		kind = KindSession
	case strings.HasPrefix(body, KindAccessKey.Prefix()):
		kind = KindAccessKey
	default:
		return 0, "", "", fmt.Errorf("unrecognized credential format")
	}

	lookupKey, secret, ok := strings.Cut(strings.TrimPrefix(body, kind.Prefix()), ".")
	if !ok || len(lookupKey) != LookupKeyLength || len(secret) != SecretLength {
		return 0, "", "", fmt.Errorf("malformed %v body", kind)
	}

	return kind, lookupKey, secret, nil
}

// Verify reports whether secret matches hash. The comparison does not leak
// timing information about the stored hash.
func Verify(secret string, hash []byte) bool {
	return bcrypt.CompareHashAndPassword(hash, []byte(secret)) == nil
}

// SameLookupKey compares two lookup keys in constant time. Lookup keys are
// not secrets, but they travel next to one, so avoid leaving an obvious
// timing side channel either way.
func SameLookupKey(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
