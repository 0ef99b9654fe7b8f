package util

import (
	"regexp"
)

// Device ids are opaque but constrained to a safe charset, since they end up
// in pub/sub channel names and URL paths.
var deviceIDRegex = regexp.MustCompile(`^[0-9A-Za-z][0-9A-Za-z._-]{0,127}$`)

func IsValidDeviceID(s string) bool {
	return deviceIDRegex.MatchString(s)
}

var pinRegex = regexp.MustCompile(`^[0-9]{6}$`)

// IsValidPINFormat checks shape only; whether a PIN matches the outstanding
// one is the pairing service's business.
func IsValidPINFormat(s string) bool {
	return pinRegex.MatchString(s)
}

func IsValidEnum(value string, validValues []string) bool {
	if value == "" {
		return true
	}
	for _, v := range validValues {
		if value == v {
			return true
		}
	}
	return false
}
