package domain

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"

	kerneldomain "github.com/shamell/shamell/internal/domain"
)

// TicketSignature computes hex(HMAC-SHA256(secret, "id:bookingID:tripID:seat")).
func TicketSignature(secret []byte, ticketID, bookingID, tripID string, seat int) string {
	msg := fmt.Sprintf("%s:%s:%s:%d", ticketID, bookingID, tripID, seat)
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(msg))
	return hex.EncodeToString(mac.Sum(nil))
}

// TicketPayload builds the wire-visible boarding-pass string.
func TicketPayload(secret []byte, ticketID, bookingID, tripID string, seat int) string {
	sig := TicketSignature(secret, ticketID, bookingID, tripID, seat)
	return fmt.Sprintf("TICKET|id=%s|b=%s|trip=%s|seat=%d|sig=%s", ticketID, bookingID, tripID, seat, sig)
}

// VerifyTicketSignature reports whether sig is the correct signature for the
// given ticket/booking/trip/seat, compared in constant time.
func VerifyTicketSignature(secret []byte, ticketID, bookingID, tripID string, seat int, sig string) bool {
	expect := TicketSignature(secret, ticketID, bookingID, tripID, seat)
	return subtle.ConstantTimeCompare([]byte(expect), []byte(sig)) == 1
}

// ParseTicketPayload parses the pipe-delimited TICKET payload back into its
// fields. Unknown key=value segments are ignored.
func ParseTicketPayload(raw string) (ticketID, bookingID, tripID string, seat int, sig string, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", "", "", 0, "", fmt.Errorf("empty ticket payload: %w", kerneldomain.ErrInvalidInput)
	}
	parts := strings.Split(raw, "|")
	if len(parts) == 0 || parts[0] != "TICKET" {
		return "", "", "", 0, "", fmt.Errorf("malformed ticket payload: %w", kerneldomain.ErrInvalidInput)
	}
	for _, kv := range parts[1:] {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		switch k {
		case "id":
			ticketID = v
		case "b":
			bookingID = v
		case "trip":
			tripID = v
		case "seat":
			n, perr := strconv.Atoi(v)
			if perr == nil {
				seat = n
			}
		case "sig":
			sig = v
		}
	}
	if ticketID == "" || bookingID == "" || tripID == "" || sig == "" {
		return "", "", "", 0, "", fmt.Errorf("malformed ticket payload: %w", kerneldomain.ErrInvalidInput)
	}
	return ticketID, bookingID, tripID, seat, sig, nil
}

// SeatNumbersHash returns hex(sha256(sorted_seats_csv)), a stable fingerprint
// used to detect a booking Idempotency-Key replayed with different seats.
func SeatNumbersHash(seats []int) string {
	sorted := make([]int, len(seats))
	copy(sorted, seats)
	sort.Ints(sorted)
	strs := make([]string, len(sorted))
	for i, n := range sorted {
		strs[i] = strconv.Itoa(n)
	}
	sum := sha256.Sum256([]byte(strings.Join(strs, ",")))
	return hex.EncodeToString(sum[:])
}
