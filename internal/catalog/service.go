// Package catalog implements the item operations of the inventory catalog
// on top of a whole-collection store.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"golang.org/x/text/language"

	"github.com/vyrodovalexey/inventory-catalog/internal/model"
	"github.com/vyrodovalexey/inventory-catalog/internal/query"
	"github.com/vyrodovalexey/inventory-catalog/internal/stats"
	"github.com/vyrodovalexey/inventory-catalog/internal/store"
)

// ErrNotFound is returned when the referenced item does not exist.
var ErrNotFound = errors.New("item not found")

// ErrIDSpaceExhausted is returned by Create when the collection already
// holds the largest representable ID.
var ErrIDSpaceExhausted = errors.New("item id space exhausted")

var catalogMutationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "catalog_mutations_total",
		Help: "Total number of catalog write operations",
	},
	[]string{"operation", "result"},
)

// Notifier receives an event after every successful mutation.
type Notifier interface {
	Publish(event model.ItemEvent)
}

// Service coordinates validation, lookups and persistence of items.
// The collection is loaded from the store on every call.
type Service struct {
	store    store.Store
	logger   *zap.Logger
	locker   Locker
	engine   *query.Engine
	notifier Notifier
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLocker sets the lock used to serialize writes.
func WithLocker(l Locker) Option {
	return func(s *Service) {
		s.locker = l
	}
}

// WithEngine sets the query engine used for listings.
func WithEngine(e *query.Engine) Option {
	return func(s *Service) {
		s.engine = e
	}
}

// WithNotifier sets the receiver of item events.
func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

// WithClock sets the time source used for IDs and statistics.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a Service backed by st.
func NewService(st store.Store, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		store:  st,
		logger: logger,
		locker: NewMutexLocker(),
		engine: query.NewEngine(language.English),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns one page of the filtered and sorted collection.
func (s *Service) List(ctx context.Context, params query.Params) (model.Page, error) {
	items, err := s.store.LoadAll(ctx)
	if err != nil {
		return model.Page{}, fmt.Errorf("list items: %w", err)
	}
	return s.engine.Run(items, params)
}

// Get returns the item with the given ID.
func (s *Service) Get(ctx context.Context, id int64) (model.Item, error) {
	items, err := s.store.LoadAll(ctx)
	if err != nil {
		return model.Item{}, fmt.Errorf("get item: %w", err)
	}

	idx := indexOf(items, id)
	if idx < 0 {
		return model.Item{}, ErrNotFound
	}
	return items[idx], nil
}

// Create validates input and appends a new item with a server-assigned ID.
func (s *Service) Create(ctx context.Context, input *model.ItemInput) (model.Item, error) {
	item, err := input.ToItem()
	if err != nil {
		return model.Item{}, err
	}

	err = s.mutate(ctx, "create", func(items []model.Item) ([]model.Item, error) {
		if err := checkUniqueName(items, item.Name, -1); err != nil {
			return nil, err
		}
		id, err := nextID(items, s.now())
		if err != nil {
			return nil, err
		}
		item.ID = id
		return append(items, item), nil
	})
	if err != nil {
		return model.Item{}, err
	}

	s.publish(model.NewItemEvent(model.EventItemCreated, item))
	return item, nil
}

// Update applies the provided fields of input to the item with the given ID.
func (s *Service) Update(ctx context.Context, id int64, input *model.ItemInput) (model.Item, error) {
	var updated model.Item

	err := s.mutate(ctx, "update", func(items []model.Item) ([]model.Item, error) {
		idx := indexOf(items, id)
		if idx < 0 {
			return nil, ErrNotFound
		}

		merged := input.MergeInto(items[idx])
		item, err := merged.ToItem()
		if err != nil {
			return nil, err
		}
		if err := checkUniqueName(items, item.Name, idx); err != nil {
			return nil, err
		}

		item.ID = id
		items[idx] = item
		updated = item
		return items, nil
	})
	if err != nil {
		return model.Item{}, err
	}

	s.publish(model.NewItemEvent(model.EventItemUpdated, updated))
	return updated, nil
}

// Delete removes the item with the given ID.
func (s *Service) Delete(ctx context.Context, id int64) error {
	var removed model.Item

	err := s.mutate(ctx, "delete", func(items []model.Item) ([]model.Item, error) {
		idx := indexOf(items, id)
		if idx < 0 {
			return nil, ErrNotFound
		}
		removed = items[idx]
		return slices.Delete(items, idx, idx+1), nil
	})
	if err != nil {
		return err
	}

	s.publish(model.NewItemEvent(model.EventItemDeleted, removed))
	return nil
}

// Stats aggregates statistics over the whole collection.
func (s *Service) Stats(ctx context.Context) (model.Stats, error) {
	items, err := s.store.LoadAll(ctx)
	if err != nil {
		return model.Stats{}, fmt.Errorf("stats: %w", err)
	}

	modified, err := s.store.LastModified(ctx)
	if err != nil {
		return model.Stats{}, fmt.Errorf("stats: %w", err)
	}

	return stats.Aggregate(items, modified, s.now()), nil
}

// LastModified reports when the collection was last written.
func (s *Service) LastModified(ctx context.Context) (time.Time, error) {
	return s.store.LastModified(ctx)
}

// Ping checks that the collection can be read.
func (s *Service) Ping(ctx context.Context) error {
	if _, err := s.store.LoadAll(ctx); err != nil {
		return fmt.Errorf("ping store: %w", err)
	}
	return nil
}

// mutate runs one locked read-modify-write cycle.
func (s *Service) mutate(
	ctx context.Context,
	operation string,
	fn func(items []model.Item) ([]model.Item, error),
) (err error) {
	defer func() {
		catalogMutationsTotal.WithLabelValues(operation, mutationResult(err)).Inc()
	}()

	unlock, err := s.locker.Lock(ctx)
	if err != nil {
		return fmt.Errorf("%s item: %w", operation, err)
	}
	defer unlock()

	items, err := s.store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("%s item: %w", operation, err)
	}

	items, err = fn(items)
	if err != nil {
		return err
	}

	if err := s.store.SaveAll(ctx, items); err != nil {
		return fmt.Errorf("%s item: %w", operation, err)
	}

	s.logger.Debug("collection saved",
		zap.String("operation", operation),
		zap.Int("items", len(items)),
	)
	return nil
}

func (s *Service) publish(event model.ItemEvent) {
	if s.notifier == nil {
		return
	}
	s.notifier.Publish(event)
}

func mutationResult(err error) string {
	var verr *model.ValidationError
	switch {
	case err == nil:
		return "success"
	case errors.As(err, &verr):
		return "invalid"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}

func indexOf(items []model.Item, id int64) int {
	return slices.IndexFunc(items, func(item model.Item) bool {
		return item.ID == id
	})
}

// checkUniqueName rejects name when an item other than the one at index
// skip already uses it ignoring case. Pass -1 to check every item.
func checkUniqueName(items []model.Item, name string, skip int) error {
	for i, item := range items {
		if i != skip && model.SameName(item.Name, name) {
			return model.NewValidationError(fmt.Sprintf("Item with name %q already exists", name))
		}
	}
	return nil
}

// nextID derives an ID from the millisecond clock, moving past the largest
// existing ID when the clock value is already taken.
func nextID(items []model.Item, now time.Time) (int64, error) {
	id := now.UnixMilli()
	for _, item := range items {
		if item.ID == math.MaxInt64 {
			return 0, ErrIDSpaceExhausted
		}
		if item.ID >= id {
			id = item.ID + 1
		}
	}
	return id, nil
}
