package checkout

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// codeAlphabet skips 0/O, 1/I/L and U to keep codes readable over the phone.
const codeAlphabet = "23456789ABCDEFGHJKMNPQRSTVWXYZ"

func randomCode(length int) string {
	buf := make([]byte, length)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand only fails if the platform RNG is broken;
			// fall back to a deterministic but still unique-checked char.
			buf[i] = codeAlphabet[i%len(codeAlphabet)]
			continue
		}
		buf[i] = codeAlphabet[n.Int64()]
	}
	return string(buf)
}

// GenerateBookingCode returns a human-presentable booking reference like
// BK-7XK2M9QD. Uniqueness is enforced by the bookings.booking_code unique
// constraint; callers retry with a fresh code on collision.
func GenerateBookingCode() string {
	return fmt.Sprintf("BK-%s", randomCode(8))
}

// GenerateTicketCode returns a ticket reference like TK-9WQ4T2XNVK.
func GenerateTicketCode() string {
	return fmt.Sprintf("TK-%s", randomCode(10))
}
