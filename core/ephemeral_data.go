package core

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

const keyDispatchQuota = "phoneverify:dispatch:"

type dispatchQuotaData struct {
	Count       int       `json:"count"`
	WindowStart time.Time `json:"window_start"`
}

// DispatchQuota caps dispatch requests per phone number in a fixed window.
// Store failures fail open so an unavailable store never blocks a flow.
type DispatchQuota struct {
	store  EphemeralStore
	limit  int
	window time.Duration
	now    func() time.Time
	log    logrus.FieldLogger
}

func NewDispatchQuota(store EphemeralStore, cfg QuotaConfig) *DispatchQuota {
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultQuotaLimit
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultQuotaWindow
	}
	return &DispatchQuota{
		store:  store,
		limit:  cfg.Limit,
		window: cfg.Window,
		now:    time.Now,
		log:    logrus.StandardLogger(),
	}
}

func (q *DispatchQuota) WithNow(now func() time.Time) *DispatchQuota {
	if now != nil {
		q.now = now
	}
	return q
}

func (q *DispatchQuota) WithLogger(l logrus.FieldLogger) *DispatchQuota {
	if l != nil {
		q.log = l
	}
	return q
}

// Reserve counts one dispatch for phone. It returns ErrQuotaExceeded once
// the window's limit has been reached.
func (q *DispatchQuota) Reserve(ctx context.Context, phone PhoneNumber) error {
	if q == nil || q.store == nil {
		return nil
	}
	key := keyDispatchQuota + phone.E164()
	now := q.now()

	var data dispatchQuotaData
	ok, err := GetJSON(ctx, q.store, key, &data)
	if err != nil {
		q.log.WithError(err).WithField("phone", phone.Masked()).Warn("dispatch quota lookup failed")
		return nil
	}
	if !ok || now.Sub(data.WindowStart) >= q.window {
		data = dispatchQuotaData{WindowStart: now}
	}
	if data.Count >= q.limit {
		return ErrQuotaExceeded
	}
	data.Count++
	ttl := data.WindowStart.Add(q.window).Sub(now)
	if ttl <= 0 {
		ttl = q.window
	}
	if err := PutJSON(ctx, q.store, key, data, ttl); err != nil {
		q.log.WithError(err).WithField("phone", phone.Masked()).Warn("dispatch quota update failed")
	}
	return nil
}

// Remaining reports how many dispatches phone has left in its window.
func (q *DispatchQuota) Remaining(ctx context.Context, phone PhoneNumber) int {
	if q == nil || q.store == nil {
		return -1
	}
	var data dispatchQuotaData
	ok, err := GetJSON(ctx, q.store, keyDispatchQuota+phone.E164(), &data)
	if err != nil || !ok || q.now().Sub(data.WindowStart) >= q.window {
		return q.limit
	}
	if n := q.limit - data.Count; n > 0 {
		return n
	}
	return 0
}
