package shipping

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/goldleaf/storefront/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const trackBody = `{"tracking_data":{"track_status":1,"track_url":"https://track.example/AWB1",
"shipment_track":[{"awb_code":"AWB1","courier_name":"Delhivery","current_status":"In Transit","updated_time":"2024-05-02 10:15:00"}],
"shipment_track_activities":[{"date":"2024-05-02 10:15:00","status":"X","activity":"Bag received","location":"Mumbai","sr-status-label":"IN TRANSIT"}]}}`

func TestShiprocketTrack(t *testing.T) {
	var logins int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/login":
			atomic.AddInt32(&logins, 1)
			_, _ = w.Write([]byte(`{"token":"tok"}`))
		case "/courier/track/awb/AWB1":
			assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
			_, _ = w.Write([]byte(trackBody))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewShiprocketClient(config.ShippingConfig{BaseURL: srv.URL, Email: "ops@example.com", Password: "x"})
	res, err := c.Track(context.Background(), "AWB1")
	require.NoError(t, err)
	assert.Equal(t, "In Transit", res.RawStatus)
	assert.Equal(t, "Delhivery", res.Courier)
	assert.Equal(t, 2024, res.StatusTime.Year())
	require.Len(t, res.Activities, 1)
	assert.Equal(t, "IN TRANSIT", res.Activities[0].Status)

	_, err = c.Track(context.Background(), "AWB1")
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&logins), "token is cached")
}

func TestShiprocketRelogin(t *testing.T) {
	var logins int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth/login" {
			if atomic.AddInt32(&logins, 1) == 1 {
				_, _ = w.Write([]byte(`{"token":"old"}`))
			} else {
				_, _ = w.Write([]byte(`{"token":"new"}`))
			}
			return
		}
		if r.Header.Get("Authorization") != "Bearer new" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(trackBody))
	}))
	defer srv.Close()

	c := NewShiprocketClient(config.ShippingConfig{BaseURL: srv.URL, Email: "ops@example.com"})
	res, err := c.Track(context.Background(), "AWB1")
	require.NoError(t, err)
	assert.Equal(t, "In Transit", res.RawStatus)
	assert.Equal(t, int32(2), atomic.LoadInt32(&logins))
}

func TestShiprocketNoTracking(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth/login" {
			_, _ = w.Write([]byte(`{"token":"tok"}`))
			return
		}
		_, _ = w.Write([]byte(`{"tracking_data":{"track_status":0,"error":"Awb not found"}}`))
	}))
	defer srv.Close()

	c := NewShiprocketClient(config.ShippingConfig{BaseURL: srv.URL, Email: "ops@example.com"})
	_, err := c.Track(context.Background(), "NOPE")
	assert.ErrorIs(t, err, ErrNoTracking)
}

func TestTrackNotConfigured(t *testing.T) {
	_, err := NewShiprocketClient(config.ShippingConfig{}).Track(context.Background(), "A")
	assert.ErrorIs(t, err, ErrNotConfigured)
}
