package messages

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/hendrywilliam/skua/src/rest"
	"github.com/hendrywilliam/skua/src/structs"
)

func TestCreate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost || req.URL.Path != "/channels/111/messages" {
			t.Errorf("unexpected request: %s %s", req.Method, req.URL.Path)
		}
		var in structs.CreateMessage
		if err := json.NewDecoder(req.Body).Decode(&in); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		if in.Content != "hello" {
			t.Errorf("content = %q", in.Content)
		}
		json.NewEncoder(w).Encode(structs.Message{ID: "900", ChannelID: "111", Content: "hello"})
	}))
	defer srv.Close()

	api := New(rest.NewREST("token", rest.Options{
		BaseURL:      srv.URL,
		RetryBackoff: 10 * time.Millisecond,
		Logger:       zerolog.Nop(),
	}))
	msg, err := api.Create(context.Background(), "111", structs.CreateMessage{Content: "hello"})
	if err != nil {
		t.Fatal(err)
	}
	if msg.ID != "900" || msg.ChannelID != "111" {
		t.Fatalf("message = %+v", msg)
	}
}

func TestDelete(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		gotPath = req.Method + " " + req.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	api := New(rest.NewREST("token", rest.Options{
		BaseURL:      srv.URL,
		RetryBackoff: 10 * time.Millisecond,
		Logger:       zerolog.Nop(),
	}))
	if err := api.Delete(context.Background(), "111", "900"); err != nil {
		t.Fatal(err)
	}
	if gotPath != "DELETE /channels/111/messages/900" {
		t.Fatalf("request = %q", gotPath)
	}
}
