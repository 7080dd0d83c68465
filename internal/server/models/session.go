package models

// Session is a renewable credential created when an owner completes primary
// authentication. An owner may hold at most a configured number of active
// sessions; issuing past the cap revokes the oldest ones.
type Session struct {
	Model
	Credential `gorm:"embedded"`

	// Device describes the client that created the session, as reported
	// by the transport layer.
	Device string
	// ClientAddr is the network address the session originated from.
	ClientAddr string
}
