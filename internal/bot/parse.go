package bot

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseIDArg extracts a numeric ID from a command argument string.
func ParseIDArg(args string) (int64, error) {
	s := strings.TrimSpace(args)
	if s == "" {
		return 0, fmt.Errorf("contact ID is required")
	}
	field := strings.TrimPrefix(strings.Fields(s)[0], "#")
	id, err := strconv.ParseInt(field, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid contact ID %q", s)
	}
	return id, nil
}

// ParseBlockArgs splits /block arguments into the address or domain and an
// optional reason.
// Format: <email|domain> [reason...]
func ParseBlockArgs(args string) (string, string, error) {
	parts := strings.Fields(args)
	if len(parts) == 0 {
		return "", "", fmt.Errorf("usage: /block <email|domain> [reason]")
	}
	value := strings.ToLower(parts[0])
	if !strings.Contains(value, ".") {
		return "", "", fmt.Errorf("%q is not an email address or domain", parts[0])
	}
	return value, strings.Join(parts[1:], " "), nil
}

// ParseDateArg returns the YYYY-MM-DD date named in args, or today in loc
// when args is empty.
func ParseDateArg(args string, now time.Time, loc *time.Location) (string, error) {
	s := strings.TrimSpace(args)
	if s == "" {
		return now.In(loc).Format(time.DateOnly), nil
	}
	if _, err := time.ParseInLocation(time.DateOnly, s, loc); err != nil {
		return "", fmt.Errorf("invalid date %q, use YYYY-MM-DD", s)
	}
	return s, nil
}
