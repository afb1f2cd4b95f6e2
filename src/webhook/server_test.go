package webhook

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/hendrywilliam/skua/src/structs"
)

func newTestServer(t *testing.T, handler InteractionHandler) (*Server, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	server := NewServer(Arguments{
		PublicKey: hex.EncodeToString(pub),
		Handler:   handler,
		Logger:    zerolog.Nop(),
	})
	server.setupRouter()
	return server, priv
}

func signedRequest(t *testing.T, priv ed25519.PrivateKey, body []byte) *http.Request {
	t.Helper()
	timestamp := "1700000000"
	signature := ed25519.Sign(priv, append([]byte(timestamp), body...))
	req := httptest.NewRequest(http.MethodPost, "/interactions", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Signature-Timestamp", timestamp)
	req.Header.Set("X-Signature-Ed25519", hex.EncodeToString(signature))
	return req
}

func TestPingAnsweredWithPong(t *testing.T) {
	server, priv := newTestServer(t, nil)
	body := []byte(`{"type":1}`)

	res, err := server.router.Test(signedRequest(t, priv, body))
	if err != nil {
		t.Fatal(err)
	}
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", res.StatusCode)
	}
	data, _ := io.ReadAll(res.Body)
	var out structs.InteractionResponse
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatal(err)
	}
	if out.Type != structs.InteractionResponseTypePong {
		t.Fatalf("response type = %d, want pong", out.Type)
	}
}

func TestCommandRoutedToHandler(t *testing.T) {
	server, priv := newTestServer(t, func(ctx context.Context, i *structs.Interaction) *structs.InteractionResponse {
		if i.Data.Name != "greet" {
			return nil
		}
		return &structs.InteractionResponse{
			Type: structs.InteractionResponseTypeChannelMessageWithSource,
			Data: structs.InteractionResponseDataMessage{Content: "hello"},
		}
	})
	body := []byte(`{"type":2,"data":{"name":"greet"}}`)

	res, err := server.router.Test(signedRequest(t, priv, body))
	if err != nil {
		t.Fatal(err)
	}
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", res.StatusCode)
	}
	data, _ := io.ReadAll(res.Body)
	var out structs.InteractionResponse
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatal(err)
	}
	if out.Type != structs.InteractionResponseTypeChannelMessageWithSource {
		t.Fatalf("response type = %d", out.Type)
	}
	if out.Data.Content != "hello" {
		t.Fatalf("response data = %+v", out.Data)
	}
}

func TestUnknownCommandRejected(t *testing.T) {
	server, priv := newTestServer(t, func(ctx context.Context, i *structs.Interaction) *structs.InteractionResponse {
		return nil
	})
	body := []byte(`{"type":2,"data":{"name":"missing"}}`)

	res, err := server.router.Test(signedRequest(t, priv, body))
	if err != nil {
		t.Fatal(err)
	}
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", res.StatusCode)
	}
}

func TestBadSignatureRejected(t *testing.T) {
	server, priv := newTestServer(t, nil)
	body := []byte(`{"type":1}`)

	req := signedRequest(t, priv, body)
	req.Header.Set("X-Signature-Ed25519", hex.EncodeToString(make([]byte, ed25519.SignatureSize)))
	res, err := server.router.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", res.StatusCode)
	}
}

func TestMissingSignatureHeadersRejected(t *testing.T) {
	server, _ := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/interactions", bytes.NewReader([]byte(`{"type":1}`)))
	req.Header.Set("Content-Type", "application/json")

	res, err := server.router.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", res.StatusCode)
	}
}
