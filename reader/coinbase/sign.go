package coinbase

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// sign returns the hex HMAC-SHA256 of message keyed by secret.
func sign(secret, message string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

func unixTimestamp(t time.Time) string {
	return strconv.FormatInt(t.Unix(), 10)
}
