package models

import (
	"testing"
	"time"

	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

func TestCommaSeparatedStringsScan(t *testing.T) {
	var s CommaSeparatedStrings
	assert.NilError(t, s.Scan("read,write,admin"))
	assert.DeepEqual(t, []string(s), []string{"read", "write", "admin"})

	assert.NilError(t, s.Scan(""))
	assert.Assert(t, is.Len([]string(s), 0))

	assert.NilError(t, s.Scan([]byte("read")))
	assert.DeepEqual(t, []string(s), []string{"read"})
}

func TestCredentialUsable(t *testing.T) {
	now := time.Date(2023, 3, 1, 12, 0, 0, 0, time.UTC)
	hour := now.Add(time.Hour)
	ago := now.Add(-time.Hour)

	type testCase struct {
		name     string
		cred     Credential
		expected bool
	}

	testCases := []testCase{
		{name: "no expiry, not revoked", cred: Credential{}, expected: true},
		{name: "future expiry", cred: Credential{ExpiresAt: &hour}, expected: true},
		{name: "past expiry", cred: Credential{ExpiresAt: &ago}, expected: false},
		{name: "expiry at now", cred: Credential{ExpiresAt: &now}, expected: false},
		{name: "revoked", cred: Credential{RevokedAt: &ago}, expected: false},
		{name: "revoked and expiring later", cred: Credential{RevokedAt: &ago, ExpiresAt: &hour}, expected: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.cred.Usable(now), tc.expected)
		})
	}
}
