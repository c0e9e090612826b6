package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
)

const (
	WolvPaySignatureHeader = "X-Wolvpay-Signature"
	OxaPaySignatureHeader  = "X-Oxapay-Signature"
)

// SignatureHeader заголовок подписи для провайдера
func SignatureHeader(id ProviderID) (string, error) {
	switch id {
	case WolvPay:
		return WolvPaySignatureHeader, nil
	case OxaPay:
		return OxaPaySignatureHeader, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownProvider, id)
}

// Verifier проверяет HMAC-SHA256 подпись уведомления.
// Подпись считается над сырыми байтами тела, без повторной сериализации.
type Verifier struct {
	header string
	secret []byte
}

func NewVerifier(header, secret string) *Verifier {
	return &Verifier{header: header, secret: []byte(secret)}
}

func (v *Verifier) Header() string {
	return v.header
}

// Verify возвращает ErrInvalidSignature без уточнения причины.
func (v *Verifier) Verify(header http.Header, body []byte) error {
	if len(v.secret) == 0 {
		return ErrInvalidSignature
	}
	got := strings.TrimSpace(header.Get(v.header))
	if got == "" {
		return ErrInvalidSignature
	}
	sig, err := hex.DecodeString(strings.ToLower(got))
	if err != nil {
		return ErrInvalidSignature
	}
	if !hmac.Equal(sig, sum(v.secret, body)) {
		return ErrInvalidSignature
	}
	return nil
}

// Sign возвращает hex-подпись тела, как её считает провайдер.
func Sign(secret string, body []byte) string {
	return hex.EncodeToString(sum([]byte(secret), body))
}

func sum(secret, body []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return mac.Sum(nil)
}
