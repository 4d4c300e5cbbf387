package hmacauth

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

func sign(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestValidSignaturePasses(t *testing.T) {
	v := &Verifier{Secret: "hush", MaxSkew: time.Minute}
	body := []byte(`{"orderId":"ord-1","status":"completed"}`)
	ts := strconv.FormatInt(time.Now().Unix(), 10)

	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	req.Header.Set("X-Request-Timestamp", ts)
	req.Header.Set("X-Request-Signature", sign("hush", ts, body))

	rec := httptest.NewRecorder()
	v.Middleware(okHandler()).ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected pass, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestCustomHeaders(t *testing.T) {
	v := &Verifier{
		Secret:          "hush",
		MaxSkew:         time.Minute,
		SignatureHeader: "X-Settlement-Signature",
		TimestampHeader: "X-Settlement-Timestamp",
	}
	body := []byte(`{}`)
	ts := strconv.FormatInt(time.Now().Unix(), 10)

	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	req.Header.Set("X-Settlement-Timestamp", ts)
	req.Header.Set("X-Settlement-Signature", sign("hush", ts, body))

	rec := httptest.NewRecorder()
	v.Middleware(okHandler()).ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected pass, got %d", rec.Code)
	}
}

func TestBadSignatureRejected(t *testing.T) {
	v := &Verifier{Secret: "hush", MaxSkew: time.Minute}
	body := []byte(`{}`)
	ts := strconv.FormatInt(time.Now().Unix(), 10)

	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	req.Header.Set("X-Request-Timestamp", ts)
	req.Header.Set("X-Request-Signature", sign("wrong-secret", ts, body))

	rec := httptest.NewRecorder()
	v.Middleware(okHandler()).ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestStaleTimestampRejected(t *testing.T) {
	v := &Verifier{Secret: "hush", MaxSkew: time.Minute}
	body := []byte(`{}`)
	ts := strconv.FormatInt(time.Now().Add(-time.Hour).Unix(), 10)

	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	req.Header.Set("X-Request-Timestamp", ts)
	req.Header.Set("X-Request-Signature", sign("hush", ts, body))

	rec := httptest.NewRecorder()
	v.Middleware(okHandler()).ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestNoSecretDisablesVerification(t *testing.T) {
	v := &Verifier{MaxSkew: time.Minute}

	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	v.Middleware(okHandler()).ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected pass without secret, got %d", rec.Code)
	}
}
