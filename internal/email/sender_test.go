package email

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPSenderSend(t *testing.T) {
	var received sendRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer key_123", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		_, _ = w.Write([]byte(`{"id":"msg_1"}`))
	}))
	defer server.Close()

	sender, err := NewHTTPSender(HTTPSenderConfig{Endpoint: server.URL, APIKey: "key_123", From: "shop@example.com"})
	require.NoError(t, err)

	id, err := sender.Send(context.Background(), Envelope{To: "asha@example.com", Subject: "Hi", HTML: "<p>Hi</p>"})
	require.NoError(t, err)
	assert.Equal(t, "msg_1", id)
	assert.Equal(t, []string{"asha@example.com"}, received.To)
	assert.Equal(t, "shop@example.com", received.From)
}

func TestHTTPSenderSendProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"invalid from"}`, http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	sender, err := NewHTTPSender(HTTPSenderConfig{Endpoint: server.URL, APIKey: "key", From: "shop@example.com"})
	require.NoError(t, err)

	_, err = sender.Send(context.Background(), Envelope{To: "asha@example.com"})
	assert.True(t, errors.Is(err, ErrSendFailed))
}

func TestNewHTTPSenderValidatesConfig(t *testing.T) {
	_, err := NewHTTPSender(HTTPSenderConfig{APIKey: "key", From: "a@b.c"})
	assert.Error(t, err)
}
