package utils

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// SignPayload returns the hex HMAC-SHA256 of "<unix timestamp>.<body>" under secret.
func SignPayload(secret string, ts time.Time, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(ts.Unix(), 10)))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// CheckSignature compares sig with the expected signature in constant time.
func CheckSignature(secret string, ts time.Time, body []byte, sig string) bool {
	return hmac.Equal([]byte(SignPayload(secret, ts, body)), []byte(sig))
}
