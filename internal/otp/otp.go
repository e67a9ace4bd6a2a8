// Package otp issues and verifies stateless one-time passwords.
//
// A challenge hash binds phone, code and expiry with HMAC-SHA256 so the server
// keeps no per-challenge state. Consumed hashes are recorded in a bbolt bucket
// until they expire, which stops a verified hash from being replayed.
package otp

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

var (
	ErrMalformed = errors.New("otp: malformed hash")
	ErrExpired   = errors.New("otp: code expired")
	ErrMismatch  = errors.New("otp: invalid code")
	ErrReplayed  = errors.New("otp: code already used")
)

var consumedBucket = []byte("consumed")

type Challenge struct {
	Code      string    `json:"-"`
	Hash      string    `json:"hash"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Manager struct {
	secret []byte
	ttl    time.Duration
	length int
	db     *bolt.DB
	now    func() time.Time
}

// NewManager opens (or creates) the replay guard database at path.
func NewManager(secret string, ttl time.Duration, length int, path string) (*Manager, error) {
	if secret == "" {
		return nil, errors.New("otp: empty secret")
	}
	if length < 4 || length > 10 {
		length = 6
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "otp: open replay store")
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(consumedBucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "otp: init replay store")
	}
	return &Manager{secret: []byte(secret), ttl: ttl, length: length, db: db, now: time.Now}, nil
}

func (m *Manager) Close() error {
	return m.db.Close()
}

// TTL validity period of issued codes
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Generate creates a random numeric code for phone
func (m *Manager) Generate(phone string) (*Challenge, error) {
	code, err := randomDigits(m.length)
	if err != nil {
		return nil, err
	}
	expires := m.now().Add(m.ttl)
	ms := expires.UnixMilli()
	return &Challenge{
		Code:      code,
		Hash:      m.sign(phone, code, ms) + "." + strconv.FormatInt(ms, 10),
		ExpiresAt: time.UnixMilli(ms),
	}, nil
}

// Verify checks code against a hash previously returned by Generate and marks it consumed.
func (m *Manager) Verify(phone, code, hash string) error {
	mac, expStr, ok := strings.Cut(hash, ".")
	if !ok || mac == "" {
		return ErrMalformed
	}
	ms, err := strconv.ParseInt(expStr, 10, 64)
	if err != nil {
		return ErrMalformed
	}
	if m.now().UnixMilli() > ms {
		return ErrExpired
	}
	expected := m.sign(phone, strings.TrimSpace(code), ms)
	if !hmac.Equal([]byte(expected), []byte(mac)) {
		return ErrMismatch
	}
	// the guard key is rebuilt from parsed values so alternate spellings of one hash collide
	return m.consume(expected+"."+strconv.FormatInt(ms, 10), ms)
}

func (m *Manager) consume(hash string, expiresMs int64) error {
	return m.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(consumedBucket)
		if b.Get([]byte(hash)) != nil {
			return ErrReplayed
		}
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(expiresMs)) //nolint:gosec // G115: unix millis are positive
		return b.Put([]byte(hash), buf)
	})
}

// Purge drops consumed hashes that have expired. Returns the number removed.
func (m *Manager) Purge(now time.Time) (int, error) {
	removed := 0
	cutoff := now.UnixMilli()
	err := m.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(consumedBucket)
		var stale [][]byte
		if err := b.ForEach(func(k, v []byte) error {
			if len(v) == 8 && int64(binary.BigEndian.Uint64(v)) < cutoff { //nolint:gosec // G115: stored from int64
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		}); err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	return removed, err
}

func (m *Manager) sign(phone, code string, expiresMs int64) string {
	h := hmac.New(sha256.New, m.secret)
	_, _ = fmt.Fprintf(h, "%s.%s.%d", phone, code, expiresMs)
	return hex.EncodeToString(h.Sum(nil))
}

func randomDigits(n int) (string, error) {
	var sb strings.Builder
	for i := 0; i < n; i++ {
		v, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", errors.Wrap(err, "otp: random")
		}
		sb.WriteByte(byte('0' + v.Int64()))
	}
	return sb.String(), nil
}
