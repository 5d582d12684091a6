// Package store is the key-value persistence used by the report builder:
// records are opaque JSON documents grouped in named collections.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrInvalidCollection = errors.New("invalid collection name")
)

// Collections referenced by the report builder.
const (
	CollectionDataset          = "hrv_dataset"
	CollectionReportLayout     = "report_layout"
	CollectionRenderModes      = "report_render_modes"
	CollectionSessionsSimple   = "hrv_sessions_simple"
	CollectionSessionsAdvanced = "hrv_sessions_advanced"
	CollectionUserProfiles     = "user_profiles"
	CollectionMembers          = "members"
	CollectionSubscriptions    = "subscriptions"
	CollectionFinance          = "finance_transactions"
)

type Record struct {
	Key  string          `json:"key"`
	Data json.RawMessage `json:"data"`
}

//go:generate mockgen -source=$GOFILE -destination=../sessions/store_mocks_test.go -package=sessions_test

// Store is the persistence capability. Put assigns a new key when the
// record has none and otherwise replaces the record stored under its key;
// every Put writes the whole record at once.
type Store interface {
	Get(ctx context.Context, collection, key string) (*Record, error)
	GetAll(ctx context.Context, collection string) ([]Record, error)
	Put(ctx context.Context, collection string, record Record) (string, error)
	Delete(ctx context.Context, collection, key string) error
}

// NewRecord marshals v into a record stored under key (empty for insert).
func NewRecord(key string, v any) (Record, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Record{}, fmt.Errorf("marshal record: %w", err)
	}
	return Record{Key: key, Data: data}, nil
}

// Decode unmarshals the record data into v.
func (r Record) Decode(v any) error {
	if len(r.Data) == 0 {
		return fmt.Errorf("record %s: empty data", r.Key)
	}
	if err := json.Unmarshal(r.Data, v); err != nil {
		return fmt.Errorf("record %s: %w", r.Key, err)
	}
	return nil
}

// GetJSON loads the record under key and decodes it into v.
func GetJSON(ctx context.Context, s Store, collection, key string, v any) error {
	rec, err := s.Get(ctx, collection, key)
	if err != nil {
		return err
	}
	return rec.Decode(v)
}

// PutJSON marshals v and stores it under key.
func PutJSON(ctx context.Context, s Store, collection, key string, v any) (string, error) {
	rec, err := NewRecord(key, v)
	if err != nil {
		return "", err
	}
	return s.Put(ctx, collection, rec)
}

func newKey() string {
	return uuid.NewString()
}

func validateCollection(collection string) error {
	if collection == "" {
		return ErrInvalidCollection
	}
	return nil
}
