package tg

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"
)

func TestFetchUpdates_FlattensMessages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/botTOKEN/getUpdates" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.FormValue("offset"); got != "42" {
			t.Errorf("expected offset 42, got %s", got)
		}
		_, _ = w.Write([]byte(`{"ok":true,"result":[
			{"update_id":42,"message":{"message_id":1,"text":"/goals","chat":{"id":7,"type":"private"},"from":{"id":7,"username":"alice"}}},
			{"update_id":43,"edited_message":{"message_id":2,"text":"x","chat":{"id":7,"type":"private"}}}
		]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "TOKEN", time.Second)
	updates, err := c.FetchUpdates(context.Background(), 42)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(updates) != 2 {
		t.Fatalf("expected 2 updates, got %d", len(updates))
	}
	if updates[0] != (Update{ID: 42, ChatID: 7, Username: "alice", Text: "/goals"}) {
		t.Fatalf("unexpected first update %+v", updates[0])
	}
	if updates[1].ID != 43 || updates[1].ChatID != 0 {
		t.Fatalf("non-message update should carry only its id, got %+v", updates[1])
	}
}

type recordingLimiter struct{ chats []int64 }

func (l *recordingLimiter) Wait(_ context.Context, chatID int64) error {
	l.chats = append(l.chats, chatID)
	return nil
}

func TestSendMessage_PostsThroughLimiter(t *testing.T) {
	var got url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/botTOKEN/sendMessage" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		got = r.PostForm
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":5,"chat":{"id":9,"type":"private"}}}`))
	}))
	defer srv.Close()

	lim := &recordingLimiter{}
	c := NewClient(srv.URL+"/", "TOKEN", time.Second, WithLimiter(lim))
	if err := c.SendMessage(context.Background(), 9, "[set title]"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got.Get("text") != "[set title]" || got.Get("chat_id") != "9" {
		t.Fatalf("unexpected payload %v", got)
	}
	if len(lim.chats) != 1 || lim.chats[0] != 9 {
		t.Fatalf("limiter not consulted: %v", lim.chats)
	}
}

func TestSendMessage_APIErrorIsTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "TOKEN", time.Second)
	err := c.SendMessage(context.Background(), 1, "hi")
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
}

func TestFetchUpdates_CanceledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := NewClient(srv.URL, "TOKEN", time.Second)
	if _, err := c.FetchUpdates(ctx, 0); !errors.Is(err, ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
}
