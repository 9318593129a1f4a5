// Package subscription is the entitlement engine: it evaluates a
// user's effective plan, owns every write to users.plan, gates free
// tier document generation and records payments.
//
// All writes that must agree with each other run in one database
// transaction.  Expiry is detected lazily, on evaluation, and healed
// through a conditional update so concurrent evaluations cannot
// double-write the audit ledger.
package subscription

import (
	"context"
	"database/sql"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/legallyup/backend/internal/queue"
	"github.com/legallyup/backend/internal/repository"
)

// Config holds the billing rules.
type Config struct {
	Period         time.Duration // how long one payment keeps a paid tier active
	FreeDailyLimit int           // generations per UTC day on the free tier
	ProPrice       decimal.Decimal
	AttorneyPrice  decimal.Decimal
}

// DefaultConfig returns the production billing rules.
func DefaultConfig() Config {
	return Config{
		Period:         30 * 24 * time.Hour,
		FreeDailyLimit: 3,
		ProPrice:       decimal.RequireFromString("19.99"),
		AttorneyPrice:  decimal.RequireFromString("49.99"),
	}
}

// Publisher delivers notification events.  Failures are logged by the
// engine and never fail the operation that produced the event.
type Publisher interface {
	Publish(ctx context.Context, ev queue.Envelope) error
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces time.Now.  Tests use it to move across days.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithPublisher sets where notification events go.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.pub = p }
}

// WithLogger sets the structured logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.log = l }
}

// WithTransactionIDs replaces the transaction id generator.
func WithTransactionIDs(gen func() string) Option {
	return func(s *Service) {
		if gen != nil {
			s.newTxnID = gen
		}
	}
}

// Service implements the entitlement evaluator, the plan transition
// authority, the generation quota gate and the payment recorder.
type Service struct {
	db       *sql.DB
	users    *repository.UserRepo
	payments *repository.PaymentRepo
	changes  *repository.PlanChangeRepo
	logs     *repository.GenerationLogRepo

	cfg      Config
	now      func() time.Time
	pub      Publisher
	log      zerolog.Logger
	newTxnID func() string
}

// New builds a Service over db.  Zero fields in cfg fall back to
// DefaultConfig.
func New(db *sql.DB, cfg Config, opts ...Option) *Service {
	if db == nil {
		panic("subscription: nil database")
	}
	def := DefaultConfig()
	if cfg.Period <= 0 {
		cfg.Period = def.Period
	}
	if cfg.FreeDailyLimit <= 0 {
		cfg.FreeDailyLimit = def.FreeDailyLimit
	}
	if cfg.ProPrice.IsZero() {
		cfg.ProPrice = def.ProPrice
	}
	if cfg.AttorneyPrice.IsZero() {
		cfg.AttorneyPrice = def.AttorneyPrice
	}
	s := &Service{
		db:       db,
		users:    repository.NewUserRepo(db),
		payments: repository.NewPaymentRepo(db),
		changes:  repository.NewPlanChangeRepo(db),
		logs:     repository.NewGenerationLogRepo(db),
		cfg:      cfg,
		now:      time.Now,
		log:      zerolog.Nop(),
		newTxnID: func() string { return "txn_" + ulid.Make().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config returns the active billing rules.
func (s *Service) Config() Config { return s.cfg }

func (s *Service) clock() time.Time { return s.now().UTC() }

// withTx runs fn inside a transaction and commits when it returns nil.
func (s *Service) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

func (s *Service) publish(ctx context.Context, ev queue.Envelope) {
	if s.pub == nil {
		return
	}
	ev.OccurredAt = s.clock().Format(time.RFC3339)
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
	defer cancel()
	if err := s.pub.Publish(pctx, ev); err != nil {
		s.log.Warn().Err(err).Str("event", ev.Type).Msg("notification publish failed")
	}
}

// dayBounds returns the UTC calendar day containing t as [start, end).
func dayBounds(t time.Time) (time.Time, time.Time) {
	t = t.UTC()
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}
