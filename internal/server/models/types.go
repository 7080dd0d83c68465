package models

import (
	"database/sql/driver"
	"fmt"
	"strings"
)

// CommaSeparatedStrings is stored as a single text column. Order is
// preserved.
type CommaSeparatedStrings []string

func (s CommaSeparatedStrings) Value() (driver.Value, error) {
	return strings.Join([]string(s), ","), nil
}

func (s *CommaSeparatedStrings) Scan(v interface{}) error {
	var raw string
	switch v := v.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	case nil:
		*s = nil
		return nil
	default:
		return fmt.Errorf("unexpected type %T for comma separated strings", v)
	}

	parts := strings.Split(raw, ",")
	if len(parts) > 0 && parts[0] == "" {
		parts = parts[1:]
	}

	*s = CommaSeparatedStrings(parts)

	return nil
}

func (s CommaSeparatedStrings) GormDataType() string {
	return "text"
}
