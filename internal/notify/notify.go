// Package notify turns order and account events into customer email and text messages.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/goldleaf/storefront/internal/domain"
	"github.com/goldleaf/storefront/internal/mailer"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// TextSender delivers a short text message (WhatsApp or SMS)
type TextSender interface {
	SendText(ctx context.Context, phone, text string) error
}

// FallbackSender tries each sender in order until one succeeds
type FallbackSender []TextSender

func (f FallbackSender) SendText(ctx context.Context, phone, text string) error {
	var errs []string
	for _, s := range f {
		if s == nil {
			continue
		}
		err := s.SendText(ctx, phone, text)
		if err == nil {
			return nil
		}
		errs = append(errs, err.Error())
	}
	if len(errs) == 0 {
		return errors.New("no text sender configured")
	}
	return errors.New(strings.Join(errs, "; "))
}

type Options struct {
	StoreName string
	StoreURL  string
	Currency  string
	// Enabled gates a channel ("email" or "text"); nil enables both
	Enabled func(channel string) bool
}

const (
	ChannelEmail = "email"
	ChannelText  = "text"
)

func (o Options) enabled(channel string) bool {
	return o.Enabled == nil || o.Enabled(channel)
}

type Dispatcher struct {
	db   *gorm.DB
	mail mailer.Sender
	text TextSender
	opts Options
}

func NewDispatcher(db *gorm.DB, mail mailer.Sender, text TextSender, opts Options) *Dispatcher {
	if opts.Currency == "" {
		opts.Currency = "INR"
	}
	return &Dispatcher{db: db, mail: mail, text: text, opts: opts}
}

// Subscribe registers async handlers for all notification topics
func (d *Dispatcher) Subscribe(bus EventBus.Bus) error {
	handlers := map[string]interface{}{
		domain.TopicOrderCreated:       d.OnOrderCreated,
		domain.TopicOrderPaid:          d.OnOrderPaid,
		domain.TopicOrderStatusChanged: d.OnOrderStatusChanged,
		domain.TopicUserRegistered:     d.OnUserRegistered,
	}
	for topic, fn := range handlers {
		if err := bus.SubscribeAsync(topic, fn, false); err != nil {
			return errors.Wrapf(err, "subscribe %s", topic)
		}
	}
	return nil
}

func (d *Dispatcher) OnOrderCreated(orderID int64) {
	order, user, err := d.loadOrder(orderID)
	if err != nil {
		zap.L().Warn("notify: load order failed", zap.Int64("order_id", orderID), zap.Error(err))
		return
	}
	// online orders are confirmed by OnOrderPaid
	if order.PaymentMethod == domain.PaymentMethodOnline && order.PaymentStatus != domain.PaymentPaid {
		return
	}
	d.sendOrderConfirmation(order, user)
}

func (d *Dispatcher) OnOrderPaid(orderID int64) {
	order, user, err := d.loadOrder(orderID)
	if err != nil {
		zap.L().Warn("notify: load order failed", zap.Int64("order_id", orderID), zap.Error(err))
		return
	}
	d.sendOrderConfirmation(order, user)
}

func (d *Dispatcher) OnOrderStatusChanged(ev domain.OrderStatusEvent) {
	order, user, err := d.loadOrder(ev.OrderID)
	if err != nil {
		zap.L().Warn("notify: load order failed", zap.Int64("order_id", ev.OrderID), zap.Error(err))
		return
	}
	label := StatusLabel(ev.To)
	d.email(user, fmt.Sprintf("Order #%s is %s", order.OrderNo, label), "order_status.html", map[string]interface{}{
		"Order":       order,
		"StatusLabel": label,
	})
	msg := fmt.Sprintf("%s: your order #%s is %s.", d.opts.StoreName, order.OrderNo, label)
	if order.AWB != "" && ev.To == domain.OrderShipped {
		msg += fmt.Sprintf(" %s AWB %s.", order.Courier, order.AWB)
	}
	d.textMsg(contactPhone(order, user), msg)
}

func (d *Dispatcher) OnUserRegistered(userID int64) {
	var user domain.User
	if err := d.db.First(&user, userID).Error; err != nil {
		zap.L().Warn("notify: load user failed", zap.Int64("user_id", userID), zap.Error(err))
		return
	}
	d.email(&user, "Welcome to "+d.opts.StoreName, "welcome.html", nil)
}

func (d *Dispatcher) sendOrderConfirmation(order *domain.Order, user *domain.User) {
	d.email(user, fmt.Sprintf("Order #%s confirmed", order.OrderNo), "order_confirmation.html", map[string]interface{}{
		"Order": order,
	})
	d.textMsg(contactPhone(order, user), fmt.Sprintf("%s: thank you! Order #%s for %s is confirmed.",
		d.opts.StoreName, order.OrderNo, mailer.FormatAmount(d.opts.Currency, order.Total)))
}

func (d *Dispatcher) loadOrder(id int64) (*domain.Order, *domain.User, error) {
	var order domain.Order
	if err := d.db.Preload("Items").First(&order, id).Error; err != nil {
		return nil, nil, err
	}
	var user domain.User
	if err := d.db.First(&user, order.UserID).Error; err != nil {
		return &order, nil, err
	}
	return &order, &user, nil
}

func (d *Dispatcher) email(user *domain.User, subject, tpl string, data map[string]interface{}) {
	if d.mail == nil || user == nil || user.EmailValue() == "" || !d.opts.enabled(ChannelEmail) {
		return
	}
	if data == nil {
		data = map[string]interface{}{}
	}
	data["StoreName"] = d.opts.StoreName
	data["StoreURL"] = d.opts.StoreURL
	data["Currency"] = d.opts.Currency
	data["Name"] = user.Name
	html, err := mailer.Render(tpl, data)
	if err != nil {
		zap.L().Error("notify: render email failed", zap.String("template", tpl), zap.Error(err))
		return
	}
	if err := d.mail.Send(user.EmailValue(), subject, html); err != nil {
		zap.L().Warn("notify: email failed", zap.Int64("user_id", user.ID), zap.Error(err))
	}
}

func (d *Dispatcher) textMsg(phone, msg string) {
	if d.text == nil || phone == "" || !d.opts.enabled(ChannelText) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := d.text.SendText(ctx, phone, msg); err != nil {
		zap.L().Warn("notify: text message failed", zap.Error(err))
	}
}

func contactPhone(order *domain.Order, user *domain.User) string {
	if user != nil && user.PhoneValue() != "" {
		return user.PhoneValue()
	}
	return order.ShipPhone
}

// StatusLabel human readable order status
func StatusLabel(s domain.OrderStatus) string {
	switch s {
	case domain.OrderOutForDelivery:
		return "out for delivery"
	default:
		return string(s)
	}
}
