// Package pins persists shared images (pins), their like/save marks and
// the notifications those marks generate.
//
// Image bytes never pass through this package; callers upload to external
// storage and hand over the resulting URL.
package pins

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrPinNotFound is returned when a pin id does not resolve.
var ErrPinNotFound = errors.New("pin not found")

// Pin is one shared image.
type Pin struct {
	ID        string
	OwnerID   string
	ImageURL  string
	Caption   string
	Tags      []string
	LikeCount int
	SaveCount int
	CreatedAt time.Time
}

// Notification kinds. Marking your own pin never notifies.
const (
	NotifyLike = "like"
	NotifySave = "save"
)

// Notification records that sender marked one of recipient's pins.
type Notification struct {
	ID          string
	RecipientID string
	SenderID    string
	Type        string
	PinID       string
	Read        bool
	CreatedAt   time.Time
}

// CreatePinInput is the creation payload. ImageURL points at already
// uploaded storage.
type CreatePinInput struct {
	OwnerID  string
	ImageURL string
	Caption  string
	Tags     []string
	Now      time.Time
}

func (in CreatePinInput) validate() error {
	if strings.TrimSpace(in.OwnerID) == "" {
		return errors.New("pins: owner is required")
	}
	if strings.TrimSpace(in.ImageURL) == "" {
		return errors.New("pins: image URL is required")
	}
	if len(cleanTags(in.Tags)) == 0 {
		return errors.New("pins: at least one tag is required")
	}
	return nil
}

// Mark is the outcome of a like/save toggle. Notification is non-nil only
// when the toggle switched on against someone else's pin.
type Mark struct {
	Active       bool
	Count        int
	Notification *Notification
}

// Store persists pins and notifications.
//
// ToggleLike and ToggleSave are toggles keyed on (pin, user): marking an
// already marked pin removes the mark. When a mark lands on another
// user's pin the store records a notification atomically with the mark.
type Store interface {
	Create(ctx context.Context, in CreatePinInput) (Pin, error)
	Pin(ctx context.Context, id string) (Pin, error)
	// Recent returns all pins, newest first.
	Recent(ctx context.Context) ([]Pin, error)
	ByOwner(ctx context.Context, ownerID string) ([]Pin, error)
	// Search matches any query word against tags or captions,
	// case-insensitive substring, newest first.
	Search(ctx context.Context, query string) ([]Pin, error)
	SavedBy(ctx context.Context, userID string) ([]Pin, error)

	ToggleLike(ctx context.Context, now time.Time, pinID, userID string) (Mark, error)
	ToggleSave(ctx context.Context, now time.Time, pinID, userID string) (Mark, error)

	// Notifications returns recipient's notifications, newest first.
	Notifications(ctx context.Context, recipientID string) ([]Notification, error)
}

// cleanTags trims, drops empties and deduplicates case-insensitively
// while keeping first-seen spelling and order.
func cleanTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		key := strings.ToLower(t)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, t)
	}
	return out
}

// queryWords splits a free-text query the way search matches it.
func queryWords(q string) []string {
	return strings.Fields(strings.ToLower(strings.TrimSpace(q)))
}
