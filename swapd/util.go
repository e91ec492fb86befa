package swapd

import "encoding/hex"

// decodeHexPubkey decodes a 32-byte x-only public key given as hex.
func decodeHexPubkey(s string) ([]byte, error) {
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(decoded) != 32 {
		return nil, errInvalidPubkeyLength
	}

	return decoded, nil
}

func hexEncode(b []byte) string {
	return hex.EncodeToString(b)
}
