package whatsapp

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/goldleaf/storefront/internal/app"
	"github.com/goldleaf/storefront/pkg/common"
	"github.com/pkg/errors"
	"go.mau.fi/whatsmeow"
	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	waTypes "go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
)

var ErrNotLoggedIn = errors.New("whatsapp device is not paired")

// Service wraps a single whatsmeow client used as the store's sender device.
type Service struct {
	container   *sqlstore.Container
	client      *whatsmeow.Client
	countryCode string
	qr          string
	qrLock      sync.RWMutex
}

type Status struct {
	Connected bool   `json:"connected"`
	LoggedIn  bool   `json:"logged_in"`
	JID       string `json:"jid"`
	HasQR     bool   `json:"has_qr"`
}

// New creates the service, keeping whatsmeow's session tables in the application database.
func New(a app.AppContext) (*Service, error) {
	sqlDB, err := a.DB().DB()
	if err != nil {
		return nil, errors.Wrap(err, "whatsapp: obtain sql.DB")
	}

	driver := "postgres"
	switch strings.ToLower(strings.TrimSpace(a.Config().Database.Type)) {
	case "sqlite", "sqlite3":
		driver = "sqlite3"
		// whatsmeow migrations rely on foreign key support
		if _, err := sqlDB.ExecContext(context.Background(), "PRAGMA foreign_keys = ON;"); err != nil {
			zap.L().Warn("whatsapp: unable to enable sqlite foreign_keys pragma", zap.Error(err))
		}
	}

	container := sqlstore.NewWithDB(sqlDB, driver, nil)
	if err := container.Upgrade(context.Background()); err != nil {
		return nil, errors.Wrapf(err, "whatsapp: sqlstore upgrade (%s)", driver)
	}
	device, err := container.GetFirstDevice(context.Background())
	if err != nil {
		return nil, errors.Wrap(err, "whatsapp: load device")
	}

	svc := &Service{
		container:   container,
		client:      whatsmeow.NewClient(device, nil),
		countryCode: a.Config().WhatsApp.CountryCode,
	}
	svc.client.AddEventHandler(svc.handleEvent)
	return svc, nil
}

func (s *Service) handleEvent(evt interface{}) {
	switch v := evt.(type) {
	case *events.Connected:
		s.setQR("")
		zap.L().Info("whatsapp: connected", zap.String("jid", s.jid()))
	case *events.PairSuccess:
		s.setQR("")
		zap.L().Info("whatsapp: paired", zap.String("jid", v.ID.String()))
	case *events.LoggedOut:
		zap.L().Warn("whatsapp: logged out", zap.String("reason", v.Reason.String()))
	case *events.Disconnected:
		zap.L().Warn("whatsapp: disconnected")
	}
}

func (s *Service) setQR(code string) {
	s.qrLock.Lock()
	s.qr = code
	s.qrLock.Unlock()
}

// GetQRCode returns the latest pairing code, empty when none is outstanding.
// The admin UI renders the QR image from this string.
func (s *Service) GetQRCode() string {
	s.qrLock.RLock()
	defer s.qrLock.RUnlock()
	return s.qr
}

func (s *Service) jid() string {
	if s.client.Store == nil || s.client.Store.ID == nil {
		return ""
	}
	return s.client.Store.ID.String()
}

func (s *Service) Status() Status {
	return Status{
		Connected: s.client.IsConnected(),
		LoggedIn:  s.client.IsLoggedIn(),
		JID:       s.jid(),
		HasQR:     s.GetQRCode() != "",
	}
}

// ConnectAsync starts connecting in the background. An unpaired device emits QR codes until scanned.
func (s *Service) ConnectAsync() {
	if s.client.IsConnected() {
		return
	}
	go func() {
		if s.client.Store.ID == nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			qrChan, err := s.client.GetQRChannel(ctx)
			if err != nil {
				cancel()
				zap.L().Warn("whatsapp: qr channel failed", zap.Error(err))
				return
			}
			go func() {
				defer cancel()
				for item := range qrChan {
					if item.Event == whatsmeow.QRChannelEventCode {
						s.setQR(item.Code)
						continue
					}
					zap.L().Info("whatsapp: pairing event", zap.String("event", item.Event))
					s.setQR("")
				}
			}()
		}
		if err := s.client.Connect(); err != nil {
			zap.L().Warn("whatsapp: client connect failed", zap.Error(err))
		}
	}()
}

// SendText sends a plain text message to a phone number. Implements the notify text sender.
func (s *Service) SendText(ctx context.Context, phone, text string) error {
	if s == nil {
		return errors.New("whatsapp service not initialized")
	}
	if !s.client.IsLoggedIn() {
		return ErrNotLoggedIn
	}
	to, err := waTypes.ParseJID(ToJID(s.countryCode, phone))
	if err != nil {
		return errors.Wrap(err, "whatsapp: invalid recipient")
	}
	if _, err := s.client.SendMessage(ctx, to, &waE2E.Message{Conversation: proto.String(text)}); err != nil {
		zap.L().Warn("whatsapp: send message failed", zap.Error(err))
		return errors.Wrap(err, "whatsapp: send")
	}
	zap.L().Info("whatsapp: message sent", zap.String("to", common.MaskPhone(phone)))
	return nil
}

func (s *Service) Stop() {
	s.client.Disconnect()
}

// ToJID builds a user JID from a local or international phone number.
// Ten digit numbers get countryCode prepended.
func ToJID(countryCode, phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := strings.TrimLeft(b.String(), "0")
	if len(digits) == 10 && countryCode != "" {
		digits = countryCode + digits
	}
	return digits + "@" + waTypes.DefaultUserServer
}

// package-level reference for the running service instance
var globalSvc *Service
var globalSvcLock sync.RWMutex

func setGlobalService(s *Service) {
	globalSvcLock.Lock()
	defer globalSvcLock.Unlock()
	globalSvc = s
}

// Get returns the running WhatsApp service or nil if not initialized.
func Get() *Service {
	globalSvcLock.RLock()
	defer globalSvcLock.RUnlock()
	return globalSvc
}

// Init creates the service, connects it and registers it globally
func Init(a app.AppContext) (*Service, error) {
	svc, err := New(a)
	if err != nil {
		return nil, err
	}
	setGlobalService(svc)
	svc.ConnectAsync()
	return svc, nil
}
