package sms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goldleaf/storefront/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendTextDisabled(t *testing.T) {
	c := NewClient(config.SmsConfig{Enabled: false, BaseURL: "http://x"})
	assert.ErrorIs(t, c.SendText(context.Background(), "9876543210", "hi"), ErrDisabled)
}

func TestSendText(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"status":"queued","message_id":"m1"}`))
	}))
	defer srv.Close()

	c := NewClient(config.SmsConfig{Enabled: true, BaseURL: srv.URL, APIKey: "key", Sender: "GOLDLF"})
	require.NoError(t, c.SendText(context.Background(), "9876543210", "Your code is 123456"))
	assert.Equal(t, "9876543210", got["to"])
	assert.Equal(t, "GOLDLF", got["sender"])
}

func TestSendTextGatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"status":"error","message":"bad key"}`))
	}))
	defer srv.Close()

	c := NewClient(config.SmsConfig{Enabled: true, BaseURL: srv.URL})
	err := c.SendText(context.Background(), "9876543210", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad key")
}
