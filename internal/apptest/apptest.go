// Package apptest builds a fully initialised Application over an in-memory
// SQLite database for package tests.
package apptest

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/goldleaf/storefront/config"
	"github.com/goldleaf/storefront/internal/app"
	"github.com/goldleaf/storefront/internal/payment"
	"github.com/goldleaf/storefront/internal/shipping"
	"github.com/shopspring/decimal"
)

var nameReplacer = strings.NewReplacer("/", "_", " ", "_", "#", "_")

// Config returns a test configuration rooted in a temp workdir
func Config(t *testing.T) *config.AppConfig {
	t.Helper()
	cfg := config.DefaultAppConfig()
	cfg.System.Workdir = t.TempDir()
	cfg.System.Location = "UTC"
	cfg.Database.Type = "sqlite"
	cfg.Database.Name = fmt.Sprintf("file:%s?mode=memory&cache=shared", nameReplacer.Replace(t.Name()))
	cfg.Logger.Mode = "development"
	cfg.Logger.FileEnable = false
	cfg.Web.Secret = "test-secret"
	cfg.Otp.Secret = "test-otp-secret"
	return cfg
}

// New returns an initialised application released at test cleanup
func New(t *testing.T) *app.Application {
	t.Helper()
	cfg := Config(t)
	a := app.NewApplication(cfg)
	a.Init(cfg)
	t.Cleanup(a.Release)
	return a
}

// Mail captures sent emails
type Mail struct {
	mu   sync.Mutex
	Sent []SentMail
}

type SentMail struct {
	To      string
	Subject string
	HTML    string
}

func (m *Mail) Send(to, subject, html string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, SentMail{To: to, Subject: subject, HTML: html})
	return nil
}

func (m *Mail) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sent)
}

// Texts captures text messages
type Texts struct {
	mu   sync.Mutex
	Sent map[string][]string
}

func (s *Texts) SendText(_ context.Context, phone, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Sent == nil {
		s.Sent = map[string][]string{}
	}
	s.Sent[phone] = append(s.Sent[phone], text)
	return nil
}

// Last returns the most recent message sent to phone
func (s *Texts) Last(phone string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.Sent[phone]
	if len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1]
}

// Gateway fake payment gateway signing with a fixed secret
type Gateway struct {
	Secret string
	mu     sync.Mutex
	seq    int
}

func (g *Gateway) KeyID() string {
	return "rzp_test_key"
}

func (g *Gateway) CreateOrder(_ context.Context, receipt string, amount decimal.Decimal, currency string) (*payment.GatewayOrder, error) {
	g.mu.Lock()
	g.seq++
	id := fmt.Sprintf("order_test_%d", g.seq)
	g.mu.Unlock()
	return &payment.GatewayOrder{
		ID:       id,
		Amount:   payment.ToMinorUnits(amount),
		Currency: currency,
		Receipt:  receipt,
		Status:   "created",
	}, nil
}

func (g *Gateway) VerifyPaymentSignature(gatewayOrderID, paymentID, signature string) bool {
	return payment.Sign(g.Secret, []byte(gatewayOrderID+"|"+paymentID)) == signature
}

func (g *Gateway) VerifyWebhookSignature(body []byte, signature string) bool {
	return payment.Sign(g.Secret, body) == signature
}

// Tracker fake tracking API keyed by AWB
type Tracker struct {
	mu       sync.Mutex
	Statuses map[string]string
}

func (f *Tracker) Set(awb, raw string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Statuses == nil {
		f.Statuses = map[string]string{}
	}
	f.Statuses[awb] = raw
}

func (f *Tracker) Track(_ context.Context, awb string) (*shipping.TrackResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, ok := f.Statuses[awb]
	if !ok {
		return nil, shipping.ErrNoTracking
	}
	return &shipping.TrackResult{AWB: awb, Courier: "Delhivery", RawStatus: raw}, nil
}

// Store in-memory object store
type Store struct {
	mu      sync.Mutex
	Objects map[string][]byte
}

func (s *Store) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Objects == nil {
		s.Objects = map[string][]byte{}
	}
	s.Objects[key] = data
	return s.URL(key), nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.Objects, key)
	return nil
}

func (s *Store) URL(key string) string {
	return "https://cdn.test/" + key
}

func (s *Store) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.Objects[key]
	return ok
}
