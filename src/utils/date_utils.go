package utils

import "time"

const ISODateFormat = "2006-01-02"

// ValidISODate reports whether s is a calendar day in ISO format (YYYY-MM-DD).
func ValidISODate(s string) bool {
	_, err := time.Parse(ISODateFormat, s)
	return err == nil
}

// Today returns the current UTC day in ISO format.
func Today() string {
	return time.Now().UTC().Format(ISODateFormat)
}
