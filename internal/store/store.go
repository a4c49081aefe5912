// Package store defines the persistence port for the discovery pipeline and
// its gorm-backed implementation. Services receive the interface, never a
// database handle, so the pipeline runs against an in-memory fake in tests.
package store

import (
	"context"
	"errors"

	"github.com/Luigii1506/ohara-catalog/internal/models"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrValidation marks malformed input to a single persistence call. It is
	// surfaced to that caller immediately and never aborts a batch.
	ErrValidation = errors.New("validation failed")
)

// CardApproval summarizes a consuming missing-card approval.
type CardApproval struct {
	EventsReferenced int `json:"events_referenced"`
	LinksCreated     int `json:"links_created"`
}

// EventStore is the persistence surface consumed by the scrape pipeline and
// the admin approval actions.
type EventStore interface {
	// Transaction runs fn against a store view whose writes commit or roll
	// back as a group. The orchestrator wraps each event's persistence in one
	// call so a mid-run crash cannot leave a half-written event.
	Transaction(ctx context.Context, fn func(tx EventStore) error) error

	// UpsertEvent creates or updates an event, keyed by source URL when set,
	// otherwise by slug. A new event gets a generated ID and a unique slug.
	UpsertEvent(ctx context.Context, ev *models.Event) (*models.Event, error)

	LinkEventSet(ctx context.Context, eventID, setID string) error
	// LinkEventCard reports whether a new link row was created.
	LinkEventCard(ctx context.Context, eventID, cardID string) (bool, error)

	UpsertMissingSet(ctx context.Context, eventID, title, translatedTitle, versionSignature string, images []string) (*models.MissingSet, error)
	UpsertMissingCard(ctx context.Context, code, title, imageURL string, images []string) (*models.MissingCard, error)
	LinkEventMissingCard(ctx context.Context, eventID string, missingCardID uint) error
	UpsertMissingProduct(ctx context.Context, title, category string, images []string) (*models.MissingProduct, error)

	// ResolveMissingSet links the event to a real set, then removes the
	// missing-set row when it is unapproved and no longer referenced.
	ResolveMissingSet(ctx context.Context, eventID string, missingSetID uint, setID string) error

	// ApproveMissingCard binds the candidate to a real card: every
	// referencing event gets an event-card link unless it already has one,
	// then all event links and the candidate itself are deleted.
	ApproveMissingCard(ctx context.Context, missingCardID uint, cardID string) (*CardApproval, error)
	RejectMissingCard(ctx context.Context, missingCardID uint) error

	UpdateMissingSetTitle(ctx context.Context, missingSetID uint, title string) error
	ListMissingSets(ctx context.Context, eventID string) ([]models.MissingSet, error)
	ListMissingCards(ctx context.Context) ([]models.MissingCard, error)

	AllSets(ctx context.Context) ([]models.Set, error)
	AllCards(ctx context.Context) ([]models.Card, error)
	GetCard(ctx context.Context, id string) (*models.Card, error)
	UpdateCardMarketplaceRef(ctx context.Context, cardID, productID, groupID string, priceUSD float64) error

	// CleanupOrphanCandidates deletes missing sets and cards whose events are
	// gone, returning how many rows were removed.
	CleanupOrphanCandidates(ctx context.Context) (int64, error)
}
