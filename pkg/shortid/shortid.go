package shortid

import (
	"crypto/rand"
	"encoding/binary"
	mrand "math/rand/v2"
	"sync"
)

const (
	// CharsetUpperAlphaNumeric excludes nothing; reference messages are
	// compared byte for byte, so visual ambiguity does not matter.
	CharsetUpperAlphaNumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	CharsetLowerAlphaNumeric = "abcdefghijklmnopqrstuvwxyz0123456789"
)

var (
	mu  sync.Mutex
	rng = newRand()
)

func newRand() *mrand.Rand {
	var seed [16]byte
	if _, err := rand.Read(seed[:]); err != nil {
		panic(err)
	}
	return mrand.New(mrand.NewPCG(
		binary.LittleEndian.Uint64(seed[:8]),
		binary.LittleEndian.Uint64(seed[8:]),
	))
}

// String returns a random string of the given length drawn from charset.
func String(charset string, length int) string {
	options := []rune(charset)

	mu.Lock()
	defer mu.Unlock()

	temp := make([]rune, length)
	for index := range temp {
		temp[index] = options[rng.IntN(len(options))]
	}
	return string(temp)
}
