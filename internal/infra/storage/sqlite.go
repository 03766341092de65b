package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"

	"predict_go/internal/domain"
	"predict_go/internal/event"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store persists contracts, answers, bets, limit orders, user balances
// and the event WAL in a single SQLite database.
type Store struct {
	db *gorm.DB
}

// NewStore opens (or creates) the database at path. An empty path
// resolves to the per-user data directory; ":memory:" gives an
// in-memory database for tests.
func NewStore(path string) (*Store, error) {
	if path == "" {
		p, err := defaultDBPath()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve DB path: %w", err)
		}
		path = p
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create DB directory: %w", err)
		}
	}

	// Pure Go SQLite driver
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(
		&ContractRow{}, &AnswerRow{}, &BetRow{}, &OrderRow{},
		&UserRow{}, &EventRecord{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Store{db: db}, nil
}

// defaultDBPath resolves the database file path based on OS
func defaultDBPath() (string, error) {
	var configDir string
	var err error

	if runtime.GOOS == "windows" {
		configDir = os.Getenv("LOCALAPPDATA")
		if configDir == "" {
			configDir, err = os.UserConfigDir()
		}
	} else {
		configDir, err = os.UserConfigDir()
	}

	if err != nil {
		return "", err
	}

	return filepath.Join(configDir, "PredictGo", "data", "predictgo.db"), nil
}

// ======================================================================================
// Rows
// ======================================================================================

// ContractRow is the contracts table. Answers live in their own table.
type ContractRow struct {
	ID        string `gorm:"primaryKey"`
	Question  string
	Mechanism string

	PoolYes float64
	PoolNo  float64
	P       float64

	CreatorFee   float64
	PlatformFee  float64
	LiquidityFee float64

	Min        float64
	Max        float64
	IsLogScale bool

	Version int64
}

func (ContractRow) TableName() string { return "contracts" }

type AnswerRow struct {
	ID         string `gorm:"primaryKey"`
	ContractID string `gorm:"index"`
	Text       string
	Idx        int

	PoolYes float64
	PoolNo  float64
	Prob    float64

	IsResolved  bool
	CreatedTime int64
}

func (AnswerRow) TableName() string { return "answers" }

type BetRow struct {
	ID         string `gorm:"primaryKey"`
	UserID     string `gorm:"index"`
	ContractID string `gorm:"index"`
	AnswerID   string
	Outcome    string

	OrderAmount float64
	Amount      float64
	Shares      float64

	LimitProb   float64
	HasLimit    bool
	IsFilled    bool
	IsCancelled bool
	ExpiresAt   int64

	Fills []domain.Fill `gorm:"serializer:json"`
	Fees  domain.Fees   `gorm:"serializer:json"`

	ProbBefore   float64
	ProbAfter    float64
	LoanAmount   float64
	IsRedemption bool
	IsSale       bool
	CreatedTime  int64
}

func (BetRow) TableName() string { return "bets" }

type OrderRow struct {
	ID         string `gorm:"primaryKey"`
	UserID     string `gorm:"index"`
	ContractID string `gorm:"index"`
	AnswerID   string
	Outcome    string

	OrderAmount float64
	Amount      float64
	Shares      float64
	LimitProb   float64

	Fills []domain.OrderFill `gorm:"serializer:json"`

	CreatedTime  int64
	ExpiresAt    int64
	IsFilled     bool
	IsCancelled  bool
	SilentExpiry bool
}

func (OrderRow) TableName() string { return "limit_orders" }

type UserRow struct {
	ID      string `gorm:"primaryKey"`
	Name    string
	Balance float64
}

func (UserRow) TableName() string { return "users" }

// EventRecord is the write-ahead log: one row per sequenced request.
type EventRecord struct {
	Seq     uint64 `gorm:"primaryKey;autoIncrement:false"`
	Ts      int64
	Type    string
	Payload []byte
}

func (EventRecord) TableName() string { return "events" }

// ======================================================================================
// Row <-> domain mapping
// ======================================================================================

func contractRowOf(c *domain.Contract) *ContractRow {
	return &ContractRow{
		ID:           c.ID,
		Question:     c.Question,
		Mechanism:    c.Mechanism.String(),
		PoolYes:      c.Pool.Yes,
		PoolNo:       c.Pool.No,
		P:            c.P,
		CreatorFee:   c.CollectedFees.CreatorFee,
		PlatformFee:  c.CollectedFees.PlatformFee,
		LiquidityFee: c.CollectedFees.LiquidityFee,
		Min:          c.Min,
		Max:          c.Max,
		IsLogScale:   c.IsLogScale,
		Version:      c.Version,
	}
}

func (r *ContractRow) toDomain(answers []AnswerRow) (*domain.Contract, error) {
	mech, err := domain.ParseMechanism(r.Mechanism)
	if err != nil {
		return nil, err
	}
	c := &domain.Contract{
		ID:        r.ID,
		Question:  r.Question,
		Mechanism: mech,
		Pool:      domain.Pool{Yes: r.PoolYes, No: r.PoolNo},
		P:         r.P,
		CollectedFees: domain.Fees{
			CreatorFee:   r.CreatorFee,
			PlatformFee:  r.PlatformFee,
			LiquidityFee: r.LiquidityFee,
		},
		Min:        r.Min,
		Max:        r.Max,
		IsLogScale: r.IsLogScale,
		Version:    r.Version,
	}
	sort.Slice(answers, func(i, j int) bool { return answers[i].Idx < answers[j].Idx })
	for i := range answers {
		c.Answers = append(c.Answers, answers[i].toDomain())
	}
	return c, nil
}

func answerRowOf(contractID string, a *domain.Answer) *AnswerRow {
	return &AnswerRow{
		ID:          a.ID,
		ContractID:  contractID,
		Text:        a.Text,
		Idx:         a.Index,
		PoolYes:     a.PoolYes,
		PoolNo:      a.PoolNo,
		Prob:        a.Prob,
		IsResolved:  a.IsResolved,
		CreatedTime: a.CreatedTime,
	}
}

func (r *AnswerRow) toDomain() *domain.Answer {
	return &domain.Answer{
		ID:          r.ID,
		ContractID:  r.ContractID,
		Text:        r.Text,
		Index:       r.Idx,
		PoolYes:     r.PoolYes,
		PoolNo:      r.PoolNo,
		Prob:        r.Prob,
		IsResolved:  r.IsResolved,
		CreatedTime: r.CreatedTime,
	}
}

func betRowOf(b *domain.Bet) *BetRow {
	return &BetRow{
		ID:           b.ID,
		UserID:       b.UserID,
		ContractID:   b.ContractID,
		AnswerID:     b.AnswerID,
		Outcome:      string(b.Outcome),
		OrderAmount:  b.OrderAmount,
		Amount:       b.Amount,
		Shares:       b.Shares,
		LimitProb:    b.LimitProb,
		HasLimit:     b.HasLimit,
		IsFilled:     b.IsFilled,
		IsCancelled:  b.IsCancelled,
		ExpiresAt:    b.ExpiresAt,
		Fills:        b.Fills,
		Fees:         b.Fees,
		ProbBefore:   b.ProbBefore,
		ProbAfter:    b.ProbAfter,
		LoanAmount:   b.LoanAmount,
		IsRedemption: b.IsRedemption,
		IsSale:       b.IsSale,
		CreatedTime:  b.CreatedTime,
	}
}

func orderRowOf(o *domain.LimitOrder) *OrderRow {
	return &OrderRow{
		ID:           o.ID,
		UserID:       o.UserID,
		ContractID:   o.ContractID,
		AnswerID:     o.AnswerID,
		Outcome:      string(o.Outcome),
		OrderAmount:  o.OrderAmount,
		Amount:       o.Amount,
		Shares:       o.Shares,
		LimitProb:    o.LimitProb,
		Fills:        o.Fills,
		CreatedTime:  o.CreatedTime,
		ExpiresAt:    o.ExpiresAt,
		IsFilled:     o.IsFilled,
		IsCancelled:  o.IsCancelled,
		SilentExpiry: o.SilentExpiry,
	}
}

func (r *OrderRow) toDomain() *domain.LimitOrder {
	return &domain.LimitOrder{
		ID:           r.ID,
		UserID:       r.UserID,
		ContractID:   r.ContractID,
		AnswerID:     r.AnswerID,
		Outcome:      domain.Outcome(r.Outcome),
		OrderAmount:  r.OrderAmount,
		Amount:       r.Amount,
		Shares:       r.Shares,
		LimitProb:    r.LimitProb,
		Fills:        r.Fills,
		CreatedTime:  r.CreatedTime,
		ExpiresAt:    r.ExpiresAt,
		IsFilled:     r.IsFilled,
		IsCancelled:  r.IsCancelled,
		SilentExpiry: r.SilentExpiry,
	}
}

// ======================================================================================
// Contract Operations
// ======================================================================================

// CreateContract inserts a contract and its answers.
func (s *Store) CreateContract(c *domain.Contract) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(contractRowOf(c)).Error; err != nil {
			return err
		}
		for _, a := range c.Answers {
			if err := tx.Create(answerRowOf(c.ID, a)).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// GetContract retrieves a contract with its answers in index order.
// Not found is returned as (nil, nil).
func (s *Store) GetContract(id string) (*domain.Contract, error) {
	var row ContractRow
	err := s.db.First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var answers []AnswerRow
	if err := s.db.Find(&answers, "contract_id = ?", id).Error; err != nil {
		return nil, err
	}
	return row.toDomain(answers)
}

// ======================================================================================
// Order / User Operations
// ======================================================================================

// CreateOrder inserts a resting limit order.
func (s *Store) CreateOrder(o *domain.LimitOrder) error {
	return s.db.Create(orderRowOf(o)).Error
}

// GetOrder retrieves a limit order; not found is (nil, nil).
func (s *Store) GetOrder(id string) (*domain.LimitOrder, error) {
	var row OrderRow
	err := s.db.First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row.toDomain(), nil
}

// OpenOrders returns the contract's resting orders that are neither
// filled nor cancelled, oldest first. Expiry is the matching pass's
// concern, not the query's.
func (s *Store) OpenOrders(contractID string) ([]*domain.LimitOrder, error) {
	var rows []OrderRow
	err := s.db.
		Where("contract_id = ? AND is_filled = ? AND is_cancelled = ?", contractID, false, false).
		Order("created_time asc").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]*domain.LimitOrder, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
	}
	return out, nil
}

// UpsertUser creates or replaces a user row.
func (s *Store) UpsertUser(u *UserRow) error {
	return s.db.Save(u).Error
}

// GetUser retrieves a user; not found is (nil, nil).
func (s *Store) GetUser(id string) (*UserRow, error) {
	var u UserRow
	err := s.db.First(&u, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &u, err
}

// Balances loads the spendable balances for a set of users. Users with
// no row are simply absent from the map.
func (s *Store) Balances(userIDs []string) (domain.BalanceByUserID, error) {
	if len(userIDs) == 0 {
		return domain.BalanceByUserID{}, nil
	}
	var rows []UserRow
	if err := s.db.Where("id IN ?", userIDs).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(domain.BalanceByUserID, len(rows))
	for _, r := range rows {
		out[r.ID] = r.Balance
	}
	return out, nil
}

// ======================================================================================
// Snapshot / Commit
// ======================================================================================

// Snapshot is everything one matching pass reads: the contract, the
// contract's open orders, and the order owners' balances.
type Snapshot struct {
	Contract *domain.Contract
	Orders   []*domain.LimitOrder
	Balances domain.BalanceByUserID
}

// LoadSnapshot assembles a consistent read for one contract.
func (s *Store) LoadSnapshot(contractID string) (*Snapshot, error) {
	c, err := s.GetContract(contractID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("contract %s: %w", contractID, gorm.ErrRecordNotFound)
	}

	orders, err := s.OpenOrders(contractID)
	if err != nil {
		return nil, err
	}

	owners := make([]string, 0, len(orders))
	seen := make(map[string]bool, len(orders))
	for _, o := range orders {
		if !seen[o.UserID] {
			seen[o.UserID] = true
			owners = append(owners, o.UserID)
		}
	}
	balances, err := s.Balances(owners)
	if err != nil {
		return nil, err
	}

	return &Snapshot{Contract: c, Orders: orders, Balances: balances}, nil
}

// TradeCommit is the write set of one engine result.
type TradeCommit struct {
	ContractID      string
	ExpectedVersion int64

	// Replacement pool state: Pool/P for binary contracts, Answers for
	// multi contracts.
	Pool    *domain.Pool
	P       float64
	Answers []*domain.Answer

	CollectedFees domain.Fees // new cumulative total

	Bets          []*domain.Bet
	UpdatedOrders []*domain.LimitOrder // makers with fills applied
	NewOrder      *domain.LimitOrder   // resting remainder, if any
	CancelOrders  []string

	BalanceDeltas map[string]float64
}

// CommitTrade applies a trade's write set in one transaction. The
// contract row's version is re-checked; a concurrent writer having won
// the race surfaces as domain.ErrStaleSnapshot so the caller can
// re-snapshot and retry.
func (s *Store) CommitTrade(tc *TradeCommit) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"version":       tc.ExpectedVersion + 1,
			"creator_fee":   tc.CollectedFees.CreatorFee,
			"platform_fee":  tc.CollectedFees.PlatformFee,
			"liquidity_fee": tc.CollectedFees.LiquidityFee,
		}
		if tc.Pool != nil {
			updates["pool_yes"] = tc.Pool.Yes
			updates["pool_no"] = tc.Pool.No
			updates["p"] = tc.P
		}

		res := tx.Model(&ContractRow{}).
			Where("id = ? AND version = ?", tc.ContractID, tc.ExpectedVersion).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrStaleSnapshot
		}

		for _, a := range tc.Answers {
			err := tx.Model(&AnswerRow{}).Where("id = ?", a.ID).Updates(map[string]interface{}{
				"pool_yes": a.PoolYes,
				"pool_no":  a.PoolNo,
				"prob":     a.Prob,
			}).Error
			if err != nil {
				return err
			}
		}

		for _, b := range tc.Bets {
			if err := tx.Create(betRowOf(b)).Error; err != nil {
				return err
			}
		}

		for _, o := range tc.UpdatedOrders {
			if err := tx.Save(orderRowOf(o)).Error; err != nil {
				return err
			}
		}
		if tc.NewOrder != nil {
			if err := tx.Create(orderRowOf(tc.NewOrder)).Error; err != nil {
				return err
			}
		}

		for _, id := range tc.CancelOrders {
			err := tx.Model(&OrderRow{}).Where("id = ?", id).
				Update("is_cancelled", true).Error
			if err != nil {
				return err
			}
		}

		for userID, delta := range tc.BalanceDeltas {
			err := tx.Model(&UserRow{}).Where("id = ?", userID).
				Update("balance", gorm.Expr("balance + ?", delta)).Error
			if err != nil {
				return err
			}
		}

		return nil
	})
}

// CancelOrder marks a resting order cancelled outside a trade commit.
func (s *Store) CancelOrder(orderID string) error {
	res := s.db.Model(&OrderRow{}).Where("id = ?", orderID).
		Update("is_cancelled", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ======================================================================================
// Event WAL
// ======================================================================================

// SaveEvent appends one sequenced request to the write-ahead log. The
// primary key rejects duplicate sequence numbers.
func (s *Store) SaveEvent(ctx context.Context, ev event.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event %d: %w", ev.GetSeq(), err)
	}
	rec := &EventRecord{
		Seq:     ev.GetSeq(),
		Ts:      ev.GetTs(),
		Type:    string(ev.GetType()),
		Payload: payload,
	}
	return s.db.WithContext(ctx).Create(rec).Error
}

// LoadEvents reads the WAL from a sequence number onward, decoded back
// into their concrete types for replay.
func (s *Store) LoadEvents(fromSeq uint64) ([]event.Event, error) {
	var recs []EventRecord
	err := s.db.Where("seq >= ?", fromSeq).Order("seq asc").Find(&recs).Error
	if err != nil {
		return nil, err
	}

	out := make([]event.Event, 0, len(recs))
	for _, rec := range recs {
		var ev event.Event
		switch event.Type(rec.Type) {
		case event.TypeBetRequest:
			ev = &event.BetRequestEvent{}
		case event.TypeSellRequest:
			ev = &event.SellRequestEvent{}
		case event.TypeCancelRequest:
			ev = &event.CancelRequestEvent{}
		default:
			return nil, fmt.Errorf("unknown event type %q at seq %d", rec.Type, rec.Seq)
		}
		if err := json.Unmarshal(rec.Payload, ev); err != nil {
			return nil, fmt.Errorf("decode event %d: %w", rec.Seq, err)
		}
		out = append(out, ev)
	}
	return out, nil
}

// LastSeq returns the highest persisted sequence number, 0 when the
// WAL is empty.
func (s *Store) LastSeq() (uint64, error) {
	var rec EventRecord
	err := s.db.Order("seq desc").First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return rec.Seq, nil
}
