package models

// AccessKey is a standing service credential. Unlike sessions, access keys
// are uncapped by default, carry a human label, and hold an ordered list of
// scope strings. Scopes are opaque here; they are stored and returned for the
// caller's authorization layer to interpret.
type AccessKey struct {
	Model
	Credential `gorm:"embedded"`

	Name   string
	Scopes CommaSeparatedStrings
}
