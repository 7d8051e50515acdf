package vouchers

import (
	"crypto/rand"
	"fmt"
	"strings"
)

// codeAlphabet omits 0/O/1/I so codes survive being read over the phone.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const codeLength = 8

// GenerateCode produces a voucher code like "PL-7KQ2M9XT". Uniqueness is
// enforced by the database; on a collision the caller retries with a
// fresh code.
func GenerateCode(prefix string) (string, error) {
	buf := make([]byte, codeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating voucher code: %w", err)
	}
	var b strings.Builder
	if prefix != "" {
		b.WriteString(strings.ToUpper(prefix))
		b.WriteByte('-')
	}
	for _, raw := range buf {
		b.WriteByte(codeAlphabet[int(raw)%len(codeAlphabet)])
	}
	return b.String(), nil
}
