package idgen

import (
	crand "crypto/rand"
	"fmt"
	"math/big"
	"math/rand/v2"
	"strings"
	"time"
)

const (
	sessionAlphabet = "0123456789abcdefghjkmnpqrstvwxyz"
	draftAlphabet   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

func init() {
	if len(sessionAlphabet) != 32 {
		panic("must not happen")
	}
	for i := 1; i < len(sessionAlphabet); i++ {
		if sessionAlphabet[i-1] >= sessionAlphabet[i] {
			panic("must not happen")
		}
	}
}

// SessionID generates a unique session identifier whose first 10 characters
// encode the creation time in milliseconds, so lexicographic order of the IDs
// matches creation order. The layout follows https://github.com/ulid/spec,
// lowercased and without monotonicity guarantees.
func SessionID() string {
	var b strings.Builder
	ts := uint64(time.Now().UnixMilli()) & ((1 << 48) - 1)
	for i := 45; i >= 0; i -= 5 {
		_ = b.WriteByte(sessionAlphabet[(ts>>i)&31])
	}
	for range 2 {
		r := rand.Uint64()
		for range 8 {
			_ = b.WriteByte(sessionAlphabet[r&31])
			r >>= 5
		}
	}
	return b.String()
}

// SessionIDTime extracts the creation timestamp embedded in a session ID.
func SessionIDTime(id string) (time.Time, error) {
	if len(id) < 10 {
		return time.Time{}, fmt.Errorf("session id too short")
	}
	var ts uint64
	for i := range 10 {
		pos := strings.IndexByte(sessionAlphabet, id[i])
		if pos < 0 {
			return time.Time{}, fmt.Errorf("bad session id char %q", id[i])
		}
		ts = ts<<5 | uint64(pos)
	}
	return time.UnixMilli(int64(ts)), nil
}

// DraftID generates a short identifier for the external drafting service. It
// is drawn from crypto/rand because the ID doubles as the join key for the
// draft room.
func DraftID() (string, error) {
	var b strings.Builder
	bigLen := big.NewInt(int64(len(draftAlphabet)))
	for range 8 {
		idx, err := crand.Int(crand.Reader, bigLen)
		if err != nil {
			return "", fmt.Errorf("crypto rand: %w", err)
		}
		_ = b.WriteByte(draftAlphabet[int(idx.Int64())])
	}
	return b.String(), nil
}
