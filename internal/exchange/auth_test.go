package exchange

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"testing"
	"time"
)

func TestHeadersCarrySignedTriplet(t *testing.T) {
	t.Parallel()
	a := NewAuth("test-key", "test-secret")

	body := `{"symbol":"XBTUSD","side":"Buy","orderQty":100,"price":29930}`
	h := a.Headers("POST", "/api/v1/order", body)

	if h["api-key"] != "test-key" {
		t.Errorf("api-key = %q", h["api-key"])
	}

	expires, err := strconv.ParseInt(h["api-expires"], 10, 64)
	if err != nil {
		t.Fatalf("api-expires not numeric: %v", err)
	}
	now := time.Now().Unix()
	if expires <= now || expires > now+60 {
		t.Errorf("api-expires %d not shortly in the future of %d", expires, now)
	}

	// Recompute the signature over the same message.
	mac := hmac.New(sha256.New, []byte("test-secret"))
	mac.Write([]byte("POST" + "/api/v1/order" + h["api-expires"] + body))
	want := hex.EncodeToString(mac.Sum(nil))
	if h["api-signature"] != want {
		t.Errorf("signature = %q, want %q", h["api-signature"], want)
	}
}

func TestSignatureCoversQueryString(t *testing.T) {
	t.Parallel()
	a := NewAuth("k", "s")

	h1 := a.Headers("GET", "/api/v1/order?symbol=XBTUSD", "")
	h2 := a.Headers("GET", "/api/v1/order?symbol=ETHUSD", "")

	if h1["api-expires"] == h2["api-expires"] && h1["api-signature"] == h2["api-signature"] {
		t.Errorf("different paths produced identical signatures")
	}
}

func TestWSAuthArgs(t *testing.T) {
	t.Parallel()
	a := NewAuth("ws-key", "ws-secret")

	key, expires, sig := a.WSAuthArgs()
	if key != "ws-key" {
		t.Errorf("key = %q", key)
	}

	mac := hmac.New(sha256.New, []byte("ws-secret"))
	mac.Write([]byte("GET/realtime" + strconv.FormatInt(expires, 10)))
	want := hex.EncodeToString(mac.Sum(nil))
	if sig != want {
		t.Errorf("ws signature = %q, want %q", sig, want)
	}
}
