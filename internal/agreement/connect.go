package agreement

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

// SignatureHeader carries the HMAC of a DocuSign Connect delivery.
const SignatureHeader = "X-DocuSign-Signature-1"

// VerifyConnectSignature checks a Connect payload against its base64
// HMAC-SHA256 signature.
func VerifyConnectSignature(body []byte, signature, key string) bool {
	if signature == "" || key == "" {
		return false
	}
	got, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

// SignConnectPayload produces the signature DocuSign would send for body.
func SignConnectPayload(body []byte, key string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
