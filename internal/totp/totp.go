// Package totp generates RFC 6238 time-based one-time codes used as the
// second factor when logging in to the reporting API.
package totp

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"strings"
	"time"
)

const (
	// Period is the width of one code window.
	Period = 30 * time.Second

	digits = 6
)

// Window is a code generated for a specific window offset.
type Window struct {
	Offset int
	Time   time.Time
	Code   string
}

// Code returns the 6-digit code for the window containing t.
func Code(secret string, t time.Time) (string, error) {
	key, err := decodeSecret(secret)
	if err != nil {
		return "", fmt.Errorf("decode totp secret: %w", err)
	}

	counter := uint64(t.Unix()) / uint64(Period/time.Second)

	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], counter)

	mac := hmac.New(sha1.New, key)
	mac.Write(msg[:])
	sum := mac.Sum(nil)

	// Dynamic truncation per RFC 4226 §5.3.
	offset := sum[len(sum)-1] & 0x0f
	code := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff

	return fmt.Sprintf("%06d", code%1_000_000), nil
}

// CodesWithOffsets returns codes for now shifted by each offset in
// units of one window, in the given order.
func CodesWithOffsets(secret string, now time.Time, offsets []int) ([]Window, error) {
	windows := make([]Window, 0, len(offsets))
	for _, off := range offsets {
		t := now.Add(time.Duration(off) * Period)
		code, err := Code(secret, t)
		if err != nil {
			return nil, err
		}
		windows = append(windows, Window{Offset: off, Time: t, Code: code})
	}
	return windows, nil
}

func decodeSecret(secret string) ([]byte, error) {
	normalized := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(secret), " ", ""))
	normalized = strings.TrimRight(normalized, "=")
	return base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(normalized)
}
