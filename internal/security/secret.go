package security

import (
	"errors"
	"os"
	"strings"
)

// ErrWeakSecret is returned when the signing secret is empty or shorter than MinSecretLength.
var ErrWeakSecret = errors.New("signing secret must be at least 32 bytes")

// MinSecretLength is the minimum accepted HMAC secret length in bytes.
const MinSecretLength = 32

const filePrefix = "file:"

// LoadSecret returns the HMAC secret. s may be the inline secret or "file:<path>" to read it from disk
// (trailing newline trimmed). Secrets shorter than MinSecretLength are rejected unless allowWeak is set.
func LoadSecret(s string, allowWeak bool) ([]byte, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, filePrefix) {
		b, err := os.ReadFile(strings.TrimPrefix(s, filePrefix))
		if err != nil {
			return nil, err
		}
		s = strings.TrimRight(string(b), "\r\n")
	}
	if s == "" {
		return nil, ErrWeakSecret
	}
	if len(s) < MinSecretLength && !allowWeak {
		return nil, ErrWeakSecret
	}
	return []byte(s), nil
}
