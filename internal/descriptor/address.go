package descriptor

import (
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"
)

// ValidateChecksumAddress checks that s is a 0x-prefixed 20-byte hex address
// whose letter casing matches the EIP-55 checksum.
func ValidateChecksumAddress(s string) error {
	want, err := checksumAddress(s)
	if err != nil {
		return err
	}
	if s != want {
		return fmt.Errorf("address %q fails checksum, expected %s", s, want)
	}
	return nil
}

// checksumAddress computes the EIP-55 checksummed form of a well-formed hex
// address, regardless of input casing: each hex letter is uppercased when the
// matching nibble of keccak256(lowercase body) is >= 8.
func checksumAddress(s string) (string, error) {
	if !strings.HasPrefix(s, "0x") {
		return "", fmt.Errorf("address %q must start with 0x", s)
	}
	body := strings.ToLower(s[2:])
	if len(body) != 40 {
		return "", fmt.Errorf("address %q must be 20 bytes (40 hex characters)", s)
	}
	if _, err := hex.DecodeString(body); err != nil {
		return "", fmt.Errorf("address %q contains non-hex characters", s)
	}

	hash := sha3.NewLegacyKeccak256()
	hash.Write([]byte(body))
	sum := hash.Sum(nil)

	out := make([]byte, len(body))
	for i := 0; i < len(body); i++ {
		c := body[i]
		if c >= 'a' && c <= 'f' {
			nibble := sum[i/2]
			if i%2 == 0 {
				nibble >>= 4
			} else {
				nibble &= 0x0f
			}
			if nibble >= 8 {
				c = c - 'a' + 'A'
			}
		}
		out[i] = c
	}
	return "0x" + string(out), nil
}
