package util

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var hexPattern = regexp.MustCompile(`^(0x|0X)?[0-9a-fA-F]+$`)

// ErrEmptyHash is returned when a hash value is blank.
var ErrEmptyHash = errors.New("hash is empty")

// NormalizeHash accepts hex (with or without 0x) or standard base64 and
// returns lowercase hex without a prefix. Base64 with non-zero trailing bits
// is accepted; the upstream decides whether the digest is usable.
func NormalizeHash(value string) (string, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return "", ErrEmptyHash
	}
	if hexPattern.MatchString(v) {
		if strings.HasPrefix(strings.ToLower(v), "0x") {
			v = v[2:]
		}
		return strings.ToLower(v), nil
	}
	raw, err := base64.StdEncoding.DecodeString(v)
	if err != nil {
		return "", fmt.Errorf("hash is neither hex nor base64: %w", err)
	}
	if len(raw) == 0 {
		return "", ErrEmptyHash
	}
	return hex.EncodeToString(raw), nil
}
