// internal/room/code.go
package room

import "math/rand"

// codeAlphabet excludes nothing: codes are any 6 uppercase alphanumerics.
const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// randomCode builds a single candidate code. Uniqueness against active rooms
// is the caller's responsibility (the registry loops until unused).
func randomCode(rng *rand.Rand, length int) string {
	buf := make([]byte, length)
	for i := range buf {
		buf[i] = codeAlphabet[rng.Intn(len(codeAlphabet))]
	}
	return string(buf)
}
