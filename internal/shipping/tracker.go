package shipping

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/araddon/dateparse"
	"github.com/goldleaf/storefront/config"
	"github.com/guonaihong/gout"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	ErrNotConfigured = errors.New("shipment tracking is not configured")
	ErrNoTracking    = errors.New("no tracking data for awb")
)

type Activity struct {
	Time     time.Time `json:"time"`
	Status   string    `json:"status"`
	Activity string    `json:"activity"`
	Location string    `json:"location"`
}

type TrackResult struct {
	AWB         string     `json:"awb"`
	Courier     string     `json:"courier"`
	RawStatus   string     `json:"raw_status"`
	StatusTime  time.Time  `json:"status_time"`
	TrackingURL string     `json:"tracking_url"`
	Activities  []Activity `json:"activities"`
}

// Tracker looks up live shipment status by airway bill number
type Tracker interface {
	Track(ctx context.Context, awb string) (*TrackResult, error)
}

// ShiprocketClient tracker for the Shiprocket external API. The login token is cached until shortly before expiry.
type ShiprocketClient struct {
	cfg      config.ShippingConfig
	timeout  time.Duration
	mu       sync.Mutex
	token    string
	tokenExp time.Time
}

func NewShiprocketClient(cfg config.ShippingConfig) *ShiprocketClient {
	return &ShiprocketClient{cfg: cfg, timeout: 15 * time.Second}
}

const tokenLifetime = 9 * 24 * time.Hour

func (c *ShiprocketClient) endpoint(p string) string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + p
}

func (c *ShiprocketClient) authToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && time.Now().Before(c.tokenExp) {
		return c.token, nil
	}
	var resp struct {
		Token   string `json:"token"`
		Message string `json:"message"`
	}
	var body string
	var code int
	err := gout.POST(c.endpoint("/auth/login")).
		WithContext(ctx).
		SetTimeout(c.timeout).
		SetJSON(gout.H{"email": c.cfg.Email, "password": c.cfg.Password}).
		BindBody(&body).
		Code(&code).
		Do()
	if err != nil {
		return "", errors.Wrap(err, "shipping: login")
	}
	_ = json.UnmarshalFromString(body, &resp)
	if code >= http.StatusBadRequest || resp.Token == "" {
		return "", errors.Errorf("shipping: login failed with %d: %s", code, resp.Message)
	}
	c.token = resp.Token
	c.tokenExp = time.Now().Add(tokenLifetime)
	return c.token, nil
}

func (c *ShiprocketClient) resetToken() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

type trackResponse struct {
	TrackingData struct {
		TrackStatus   int    `json:"track_status"`
		Error         string `json:"error"`
		TrackURL      string `json:"track_url"`
		ShipmentTrack []struct {
			AWBCode       string `json:"awb_code"`
			CourierName   string `json:"courier_name"`
			CurrentStatus string `json:"current_status"`
			UpdatedTime   string `json:"updated_time"`
		} `json:"shipment_track"`
		Activities []struct {
			Date     string `json:"date"`
			Status   string `json:"status"`
			Activity string `json:"activity"`
			Location string `json:"location"`
			SrStatus string `json:"sr-status-label"`
		} `json:"shipment_track_activities"`
	} `json:"tracking_data"`
}

func (c *ShiprocketClient) Track(ctx context.Context, awb string) (*TrackResult, error) {
	if c.cfg.BaseURL == "" || c.cfg.Email == "" {
		return nil, ErrNotConfigured
	}
	res, code, err := c.track(ctx, awb)
	if err == nil && code == http.StatusUnauthorized {
		c.resetToken()
		res, code, err = c.track(ctx, awb)
	}
	if err != nil {
		return nil, err
	}
	if code >= http.StatusBadRequest {
		return nil, errors.Errorf("shipping: track %s returned %d", awb, code)
	}
	return res, nil
}

func (c *ShiprocketClient) track(ctx context.Context, awb string) (*TrackResult, int, error) {
	token, err := c.authToken(ctx)
	if err != nil {
		return nil, 0, err
	}
	var body string
	var code int
	err = gout.GET(c.endpoint("/courier/track/awb/"+url.PathEscape(awb))).
		WithContext(ctx).
		SetTimeout(c.timeout).
		SetHeader(gout.H{"Authorization": "Bearer " + token}).
		BindBody(&body).
		Code(&code).
		Do()
	if err != nil {
		return nil, 0, errors.Wrapf(err, "shipping: track %s", awb)
	}
	if code >= http.StatusBadRequest {
		return nil, code, nil
	}
	var resp trackResponse
	if err := json.UnmarshalFromString(body, &resp); err != nil {
		return nil, code, errors.Wrapf(err, "shipping: decode tracking for %s", awb)
	}
	td := resp.TrackingData
	if len(td.ShipmentTrack) == 0 {
		if td.Error != "" {
			return nil, code, errors.Wrap(ErrNoTracking, td.Error)
		}
		return nil, code, ErrNoTracking
	}
	st := td.ShipmentTrack[0]
	out := &TrackResult{
		AWB:         awb,
		Courier:     st.CourierName,
		RawStatus:   st.CurrentStatus,
		TrackingURL: td.TrackURL,
	}
	if t, err := dateparse.ParseLocal(st.UpdatedTime); err == nil {
		out.StatusTime = t
	}
	for _, a := range td.Activities {
		act := Activity{Status: a.Status, Activity: a.Activity, Location: a.Location}
		if a.SrStatus != "" {
			act.Status = a.SrStatus
		}
		if t, err := dateparse.ParseLocal(a.Date); err == nil {
			act.Time = t
		} else {
			zap.L().Debug("shipping: unparsed activity date", zap.String("date", a.Date))
		}
		out.Activities = append(out.Activities, act)
	}
	return out, code, nil
}
