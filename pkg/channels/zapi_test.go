package channels

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyland-inc/zumo/pkg/bus"
	"github.com/tinyland-inc/zumo/pkg/config"
	"github.com/tinyland-inc/zumo/pkg/transport"
)

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func newTestChannel(t *testing.T, handler http.HandlerFunc) *ZAPIChannel {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := config.GatewayConfig{
		BaseURL:     server.URL,
		Instance:    "inst",
		Token:       "tok",
		ClientToken: "ct",
		FetchPath:   "/last-received-messages",
		SendPath:    "/send-text",
	}
	client := NewZAPIClient(cfg, transport.WithSleep(noSleep))
	return NewZAPIChannel(cfg, client)
}

func TestZAPIChannel_PollNormalizesPayloadShapes(t *testing.T) {
	ch := newTestChannel(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/instances/inst/token/tok/last-received-messages", r.URL.Path)
		assert.Equal(t, "ct", r.Header.Get("Client-Token"))
		io.WriteString(w, `[
			{"messageId":"B","phone":"5511999990000","text":{"message":"zumo oi"},"fromMe":false,"momment":200,"senderName":"Ana"},
			{"id":"A","chatId":"120363-group","body":"zumo libera","author":"5521888880000@c.us","momment":100},
			{"id":"C","remoteJid":"5511777770000@c.us","text":"plain text","fromMe":true,"timestamp":300},
			"not an object"
		]`)
	})

	msgs, err := ch.Poll(t.Context())
	require.NoError(t, err)
	require.Len(t, msgs, 3)

	assert.Equal(t, "A", msgs[0].MessageID, "sorted by timestamp")
	assert.Equal(t, "120363-group", msgs[0].ChatID)
	assert.Equal(t, "5521888880000@c.us", msgs[0].SenderID)
	assert.True(t, msgs[0].IsGroup())
	assert.Equal(t, "zumo libera", msgs[0].Content)

	assert.Equal(t, "B", msgs[1].MessageID)
	assert.Equal(t, "5511999990000", msgs[1].ChatID)
	assert.Equal(t, "5511999990000", msgs[1].SenderID, "private chat author defaults to chat id")
	assert.Equal(t, "zumo oi", msgs[1].Content)
	assert.False(t, msgs[1].IsGroup())
	assert.Equal(t, "Ana", msgs[1].Metadata["sender_name"])
	assert.Equal(t, ZAPIChannelName, msgs[1].Channel)

	assert.Equal(t, "C", msgs[2].MessageID)
	assert.Equal(t, "plain text", msgs[2].Content)
	assert.True(t, msgs[2].FromMe)
}

func TestZAPIChannel_PollMissingFieldsDefaultEmpty(t *testing.T) {
	ch := newTestChannel(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `[{"isGroup":true,"chatId":"123"}]`)
	})

	msgs, err := ch.Poll(t.Context())
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Empty(t, msgs[0].MessageID)
	assert.Empty(t, msgs[0].Content)
	assert.Empty(t, msgs[0].SenderID, "groups never borrow the chat id as author")
	assert.False(t, msgs[0].FromMe)
	assert.True(t, msgs[0].IsGroup())
}

func TestZAPIChannel_PollNonArrayIsEmpty(t *testing.T) {
	for _, body := range []string{`{"error":"x"}`, `null`, `garbage`, ``} {
		ch := newTestChannel(t, func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, body)
		})
		msgs, err := ch.Poll(t.Context())
		require.NoError(t, err, body)
		assert.Empty(t, msgs, body)
	}
}

func TestZAPIChannel_PollSurfacesTransportError(t *testing.T) {
	ch := newTestChannel(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := ch.Poll(t.Context())
	var terr *transport.Error
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, transport.KindClientError, terr.Kind)
}

func TestZAPIChannel_SendNormalizesDestination(t *testing.T) {
	var got map[string]string
	ch := newTestChannel(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/instances/inst/token/tok/send-text", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	})

	err := ch.Send(t.Context(), bus.OutboundMessage{ChatID: "5511999990000@c.us", Content: "Paris."})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"phone": "5511999990000", "message": "Paris."}, got)
}

func TestZAPIChannel_SendRetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	ch := newTestChannel(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, ch.Send(t.Context(), bus.OutboundMessage{ChatID: "5511", Content: "ok"}))
	assert.EqualValues(t, 2, calls.Load())
}

func TestZAPIChannel_SendAcceptedIsNotDelivered(t *testing.T) {
	ch := newTestChannel(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	err := ch.Send(t.Context(), bus.OutboundMessage{ChatID: "5511", Content: "ok"})
	var terr *transport.Error
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, transport.KindUnexpectedStatus, terr.Kind)
}

func TestZAPIChannel_SendWithoutDestination(t *testing.T) {
	ch := newTestChannel(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	err := ch.Send(t.Context(), bus.OutboundMessage{ChatID: " @c.us ", Content: "x"})
	assert.ErrorIs(t, err, ErrNoDestination)
}

func TestNormalizeChatID(t *testing.T) {
	assert.Equal(t, "5511999990000", NormalizeChatID("5511999990000@c.us"))
	assert.Equal(t, "5511999990000", NormalizeChatID(" 5511999990000@s.whatsapp.net "))
	assert.Equal(t, "120363", NormalizeChatID("120363@g.us"))
	assert.Equal(t, "120363-group", NormalizeChatID("120363-group"))
	assert.Equal(t, "5511", NormalizeChatID("5511"))
}

func TestIsGroupChatID(t *testing.T) {
	assert.True(t, IsGroupChatID("120363@g.us"))
	assert.True(t, IsGroupChatID("120363-group"))
	assert.False(t, IsGroupChatID("5511999990000@c.us"))
	assert.False(t, IsGroupChatID(""))
}
