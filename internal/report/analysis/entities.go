package analysis

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/2beens/gymhrv/internal/store"
)

type UserProfile struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	GymName   string    `json:"gymName"`
	CreatedAt time.Time `json:"createdAt"`
}

type Member struct {
	ID        string    `json:"id"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	JoinedAt  time.Time `json:"joinedAt"`
	Active    bool      `json:"active"`
}

func (m Member) FullName() string {
	if m.LastName == "" {
		return m.FirstName
	}
	return m.FirstName + " " + m.LastName
}

type Subscription struct {
	ID        string    `json:"id"`
	MemberID  string    `json:"memberId"`
	Plan      string    `json:"plan"`
	Price     float64   `json:"price"`
	StartDate time.Time `json:"startDate"`
	EndDate   time.Time `json:"endDate"`
	Status    string    `json:"status"`
}

const SubscriptionActive = "active"

type TransactionType string

const (
	TransactionIncome  TransactionType = "income"
	TransactionExpense TransactionType = "expense"
)

type Transaction struct {
	ID          string          `json:"id"`
	Type        TransactionType `json:"type"`
	Amount      float64         `json:"amount"`
	Category    string          `json:"category"`
	Date        time.Time       `json:"date"`
	Description string          `json:"description"`
}

// loadAll decodes every record of a collection, skipping the ones that do
// not decode. A missing store or a store failure is a source unavailable
// render error.
func loadAll[T any](ctx context.Context, kind KindID, s store.Store, collection string) ([]T, error) {
	if s == nil {
		return nil, sourceUnavailable(kind, errors.New("no store configured"))
	}

	records, err := s.GetAll(ctx, collection)
	if err != nil {
		return nil, sourceUnavailable(kind, err)
	}

	out := make([]T, 0, len(records))
	for _, rec := range records {
		var v T
		if err := rec.Decode(&v); err != nil {
			log.Warnf("%s: skipping %s record: %s", kind, collection, err)
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

func loadProfile(ctx context.Context, kind KindID, s store.Store, userID string) (*UserProfile, error) {
	if s == nil {
		return nil, sourceUnavailable(kind, errors.New("no store configured"))
	}
	if userID == "" {
		return nil, nil
	}

	var p UserProfile
	if err := store.GetJSON(ctx, s, store.CollectionUserProfiles, userID, &p); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, sourceUnavailable(kind, err)
	}
	return &p, nil
}

type financeTotals struct {
	Income  float64
	Expense float64
}

func (t financeTotals) Balance() float64 {
	return t.Income - t.Expense
}

func totals(txs []Transaction) financeTotals {
	var t financeTotals
	for _, tx := range txs {
		amount := tx.Amount
		if amount < 0 {
			amount = -amount
		}
		switch tx.Type {
		case TransactionIncome:
			t.Income += amount
		case TransactionExpense:
			t.Expense += amount
		}
	}
	return t
}
