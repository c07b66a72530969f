package nm

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

// DerivePSK computes the WPA pre-shared key for passphrase on ssid and returns
// it as 64 hex digits, which NetworkManager accepts in place of the
// passphrase so the plaintext never leaves this process.
func DerivePSK(ssid, passphrase string) (string, error) {
	if len(passphrase) < 8 || len(passphrase) > 63 {
		return "", fmt.Errorf("nm: passphrase must be 8-63 characters, got %d", len(passphrase))
	}
	if len(ssid) == 0 || len(ssid) > 32 {
		return "", fmt.Errorf("nm: SSID must be 1-32 bytes, got %d", len(ssid))
	}
	key := pbkdf2.Key([]byte(passphrase), []byte(ssid), 4096, 32, sha1.New)
	return hex.EncodeToString(key), nil
}
