package catalog

import (
	"context"

	"github.com/soundrift/drivecache/internal/telemetry"
)

// InstrumentedStore wraps a Store with telemetry.
type InstrumentedStore struct {
	store     Store
	telemetry *telemetry.Telemetry
}

// NewInstrumentedStore creates a new instrumented manifest store.
func NewInstrumentedStore(store Store, tel *telemetry.Telemetry) *InstrumentedStore {
	return &InstrumentedStore{store: store, telemetry: tel}
}

func (s *InstrumentedStore) Load(ctx context.Context) ([]File, error) {
	var result []File

	var err error

	instrumentedErr := s.telemetry.InstrumentStoreOperation(ctx, "load", func(ctx context.Context) error {
		result, err = s.store.Load(ctx)

		return err
	})

	if instrumentedErr != nil {
		return nil, instrumentedErr
	}

	return result, nil
}

func (s *InstrumentedStore) Save(ctx context.Context, files []File) error {
	return s.telemetry.InstrumentStoreOperation(ctx, "save", func(ctx context.Context) error {
		return s.store.Save(ctx, files)
	})
}

func (s *InstrumentedStore) Upsert(ctx context.Context, file File) error {
	return s.telemetry.InstrumentStoreOperation(ctx, "upsert", func(ctx context.Context) error {
		return s.store.Upsert(ctx, file)
	})
}

func (s *InstrumentedStore) Remove(ctx context.Context, id string) (bool, error) {
	var result bool

	var err error

	instrumentedErr := s.telemetry.InstrumentStoreOperation(ctx, "remove", func(ctx context.Context) error {
		result, err = s.store.Remove(ctx, id)

		return err
	})

	if instrumentedErr != nil {
		return false, instrumentedErr
	}

	return result, nil
}
