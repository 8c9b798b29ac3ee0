package exchange

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// Auth signs venue requests with the API key pair. Every authenticated
// request carries three headers:
//
//	api-key:       the API key id
//	api-expires:   a unix timestamp shortly in the future
//	api-signature: hex(HMAC-SHA256(secret, verb + path + expires + body))
//
// The same scheme authenticates the private stream, with the synthetic
// request line "GET/realtime".
type Auth struct {
	key    string
	secret []byte

	// expiryWindow is how far in the future api-expires is stamped.
	expiryWindow time.Duration
}

// NewAuth creates an Auth from the configured key pair.
func NewAuth(key, secret string) *Auth {
	return &Auth{
		key:          key,
		secret:       []byte(secret),
		expiryWindow: 30 * time.Second,
	}
}

// Key returns the API key id.
func (a *Auth) Key() string { return a.key }

// Headers produces the signed header set for one REST request.
func (a *Auth) Headers(verb, path, body string) map[string]string {
	expires := a.expires()
	return map[string]string{
		"api-key":       a.key,
		"api-expires":   expires,
		"api-signature": a.sign(verb + path + expires + body),
	}
}

// WSAuthArgs produces the arguments of the stream authKeyExpires op.
func (a *Auth) WSAuthArgs() (key string, expires int64, signature string) {
	exp := time.Now().Add(a.expiryWindow).Unix()
	return a.key, exp, a.sign("GET/realtime" + strconv.FormatInt(exp, 10))
}

func (a *Auth) expires() string {
	return strconv.FormatInt(time.Now().Add(a.expiryWindow).Unix(), 10)
}

func (a *Auth) sign(message string) string {
	mac := hmac.New(sha256.New, a.secret)
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}
