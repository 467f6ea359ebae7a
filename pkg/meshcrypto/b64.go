package meshcrypto

import "encoding/base64"

// All binary blobs on the wire use standard Base64 with padding (spec §4.2).
func b64Encode(b []byte) string { return base64.StdEncoding.EncodeToString(b) }

func b64Decode(s string) ([]byte, error) { return base64.StdEncoding.DecodeString(s) }
