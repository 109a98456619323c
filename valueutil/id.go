package valueutil

import "crypto/rand"

const hexDigits = "0123456789abcdef"

// RandomID returns a 16-hex-character random identifier, the default
// primary key generator spec.md calls for when insert is given no id.
// Hosts that want uuid- or snowflake-shaped ids configure an alternate
// generator via config.PrimaryKeyGenerator instead of calling this
// directly.
func RandomID() string {
	var raw [8]byte
	_, _ = rand.Read(raw[:])
	out := make([]byte, 16)
	for i, b := range raw {
		out[2*i] = hexDigits[b>>4]
		out[2*i+1] = hexDigits[b&0x0f]
	}
	return string(out)
}
