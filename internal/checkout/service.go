// Package checkout turns carts into orders and keeps orders, stock and coupon uses
// consistent. Every multi-row mutation is a single DynamoDB transaction; the snapshot
// reads done beforehand only serve to produce precise errors.
package checkout

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/imrishuroy/go-storefront-ledger/internal/apperr"
	"github.com/imrishuroy/go-storefront-ledger/internal/aws"
	"github.com/imrishuroy/go-storefront-ledger/internal/catalog"
	"github.com/imrishuroy/go-storefront-ledger/internal/idempotency"
	"github.com/imrishuroy/go-storefront-ledger/internal/inventory"
	"github.com/imrishuroy/go-storefront-ledger/internal/logging"
	"github.com/imrishuroy/go-storefront-ledger/internal/metrics"
	"github.com/imrishuroy/go-storefront-ledger/internal/notify"
	"github.com/imrishuroy/go-storefront-ledger/internal/orders"
	"github.com/imrishuroy/go-storefront-ledger/internal/promo"
	"github.com/imrishuroy/go-storefront-ledger/internal/session"
	"github.com/imrishuroy/go-storefront-ledger/internal/users"
)

// Directory resolves order owners.
type Directory interface {
	Get(ctx context.Context, userID string) (*users.User, error)
}

// Notifier hands order summaries to the messaging transport.
type Notifier interface {
	Dispatch(ctx context.Context, userID string, summary notify.Summary) error
}

// Deps groups the collaborators of a Service.
type Deps struct {
	DynamoDB    aws.DynamoDBAPI
	Products    *catalog.Store
	Promos      *promo.Service
	Orders      *orders.Store
	Ledger      *inventory.Ledger
	Idempotency *idempotency.Store
	Users       Directory
	Sessions    session.Store
	Notifier    Notifier         // nil disables notifications
	Metrics     metrics.Recorder // nil means metrics.Nop
}

// Service orchestrates checkout and order maintenance.
type Service struct {
	db       aws.DynamoDBAPI
	products *catalog.Store
	promos   *promo.Service
	orders   *orders.Store
	ledger   *inventory.Ledger
	idem     *idempotency.Store
	users    Directory
	sessions session.Store
	notifier Notifier
	metrics  metrics.Recorder

	nowFunc func() time.Time
	newID   func() string
}

// New wires a Service.
func New(d Deps) *Service {
	rec := d.Metrics
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &Service{
		db:       d.DynamoDB,
		products: d.Products,
		promos:   d.Promos,
		orders:   d.Orders,
		ledger:   d.Ledger,
		idem:     d.Idempotency,
		users:    d.Users,
		sessions: d.Sessions,
		notifier: d.Notifier,
		metrics:  rec,
		nowFunc:  time.Now,
		newID:    uuid.NewString,
	}
}

func (s *Service) logger(ctx context.Context) *slog.Logger {
	return logging.FromCtx(ctx).With("component", "checkout")
}

func (s *Service) loadSession(ctx context.Context, userID string) (*session.State, error) {
	st, err := s.sessions.Load(ctx, userID)
	if err != nil {
		return nil, apperr.Persistence(err, "load session")
	}
	return st, nil
}

func (s *Service) saveSession(ctx context.Context, st *session.State) error {
	if err := s.sessions.Save(ctx, st); err != nil {
		return apperr.Persistence(err, "save session")
	}
	return nil
}

func (s *Service) loadOrder(ctx context.Context, orderID string) (*orders.Order, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, apperr.Persistence(err, "load order")
	}
	if o == nil {
		return nil, apperr.New(apperr.NotFound, "order %s not found", orderID)
	}
	return o, nil
}

// notify publishes a summary without failing the caller; dispatch problems are logged.
func (s *Service) notify(ctx context.Context, kind notify.Kind, o *orders.Order) {
	if s.notifier == nil {
		return
	}
	var user *users.User
	if s.users != nil {
		u, err := s.users.Get(ctx, o.UserID)
		if err != nil {
			s.logger(ctx).Warn("notification user lookup failed", "order_id", o.OrderID, "err", err)
		}
		user = u
	}
	summary := notify.Summarize(kind, o, user)
	if err := s.notifier.Dispatch(ctx, o.UserID, summary); err != nil {
		s.logger(ctx).Warn("order notification not sent",
			"order_id", o.OrderID, "kind", kind, "kind_err", apperr.KindOf(err), "err", err)
	}
}

func (s *Service) record(ctx context.Context, name string, value float64, dims map[string]string) {
	if err := s.metrics.Count(ctx, name, value, dims); err != nil {
		s.logger(ctx).Warn("metric not recorded", "metric", name, "err", err)
	}
}

// contact fills the denormalized owner fields, falling back when the directory cannot
// resolve the user.
func (s *Service) contact(ctx context.Context, userID string) (email, phone string) {
	email, phone = orders.UnknownEmail, orders.UnknownPhone
	if s.users == nil {
		return email, phone
	}
	u, err := s.users.Get(ctx, userID)
	if err != nil {
		s.logger(ctx).Warn("user lookup failed", "user_id", userID, "err", err)
		return email, phone
	}
	if u == nil {
		return email, phone
	}
	if u.Email != "" {
		email = u.Email
	}
	if u.Phone != "" {
		phone = u.Phone
	}
	return email, phone
}
