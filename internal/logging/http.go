package logging

import (
	"bytes"
	"strings"
)

var strInvalidHeaderFieldValue = "invalid header field value"

// FilteredHTTPLogger adapts the global logger for use as an http.Server
// ErrorLog. Messages about invalid header field values are truncated before
// the value, because the value may be a credential.
type FilteredHTTPLogger struct{}

func NewFilteredHTTPLogger() *FilteredHTTPLogger {
	return &FilteredHTTPLogger{}
}

func (FilteredHTTPLogger) Write(b []byte) (int, error) {
	msg := string(bytes.TrimSpace(b))
	if idx := strings.Index(msg, strInvalidHeaderFieldValue); idx >= 0 {
		msg = msg[:idx+len(strInvalidHeaderFieldValue)]
	}
	L.Warn(msg)
	return len(b), nil
}
