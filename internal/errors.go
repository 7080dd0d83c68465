package internal

import (
	"fmt"
)

var (
	// ErrNotFound indicates no credential matched the query.
	ErrNotFound = fmt.Errorf("record not found")
	// ErrExpired indicates the credential exists but is past its expiry.
	ErrExpired = fmt.Errorf("credential expired")
	// ErrRevoked indicates the credential exists but has been revoked.
	ErrRevoked = fmt.Errorf("credential revoked")

	// ErrOwnerMismatch indicates a management operation referenced a
	// credential owned by a different account.
	ErrOwnerMismatch = fmt.Errorf("credential belongs to a different owner")

	// ErrCapacityExceeded indicates session trimming could not settle. The
	// operation is safe to retry.
	ErrCapacityExceeded = fmt.Errorf("too many active sessions, retry")

	// ErrStoreUnavailable indicates the credential store could not be
	// reached. It says nothing about the validity of any credential.
	ErrStoreUnavailable = fmt.Errorf("credential store unavailable")

	// ErrInvalidCredential is the single opaque failure returned by
	// verification. Not-found, expired, and revoked all collapse into this
	// error so that verification can not be used as an oracle for why a
	// credential was rejected.
	ErrInvalidCredential = fmt.Errorf("invalid credential")

	ErrDuplicate = fmt.Errorf("duplicate record")
)
