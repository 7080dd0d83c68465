// Package uid provides unique identifiers for credentials and their owners.
package uid

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/bwmarrin/snowflake"
)

// ID is a snowflake identifier. The zero value is not a valid ID.
type ID snowflake.ID

var idGen *snowflake.Node

func init() {
	snowflake.Epoch = time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()

	var err error
	//nolint:gosec // the node number does not need to be cryptographically random
	idGen, err = snowflake.NewNode(rand.Int63n(1024))
	if err != nil {
		panic(err)
	}
}

// New returns an ID using a random node number. The node number is selected
// when the process starts, and won't change until the process is restarted.
func New() ID {
	return ID(idGen.Generate())
}

func (u ID) String() string {
	return snowflake.ID(u).Base58()
}

func (u ID) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}

func (u *ID) UnmarshalText(b []byte) error {
	id, err := snowflake.ParseBase58(b)
	if err != nil {
		return err
	}
	*u = ID(id)
	return nil
}

// Parse converts a base58 string into an ID.
func Parse(b []byte) (ID, error) {
	var id ID
	if err := id.UnmarshalText(b); err != nil {
		return 0, fmt.Errorf("invalid id %q", string(b))
	}
	if id == 0 {
		return 0, fmt.Errorf("invalid id %q", string(b))
	}
	return id, nil
}
