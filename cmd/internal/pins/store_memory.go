package pins

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// MemoryStore is an in-process Store with the same observable semantics
// as PostgresStore. It backs handler tests and storeless development.
type MemoryStore struct {
	mu     sync.Mutex
	pins   map[string]Pin
	likes  map[string]map[string]time.Time // pinID -> userID -> marked at
	saves  map[string]map[string]time.Time
	notifs []Notification
}

// NewMemoryStore creates an empty in-memory pin store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		pins:  make(map[string]Pin),
		likes: make(map[string]map[string]time.Time),
		saves: make(map[string]map[string]time.Time),
	}
}

func (s *MemoryStore) Create(ctx context.Context, in CreatePinInput) (Pin, error) {
	if err := ctx.Err(); err != nil {
		return Pin{}, err
	}
	if err := in.validate(); err != nil {
		return Pin{}, err
	}
	if in.Now.IsZero() {
		in.Now = time.Now()
	}

	p := Pin{
		ID:        ulid.Make().String(),
		OwnerID:   in.OwnerID,
		ImageURL:  strings.TrimSpace(in.ImageURL),
		Caption:   strings.TrimSpace(in.Caption),
		Tags:      cleanTags(in.Tags),
		CreatedAt: in.Now.UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pins[p.ID] = p
	return p, nil
}

func (s *MemoryStore) Pin(ctx context.Context, id string) (Pin, error) {
	if err := ctx.Err(); err != nil {
		return Pin{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pins[id]
	if !ok {
		return Pin{}, ErrPinNotFound
	}
	return s.withCounts(p), nil
}

func (s *MemoryStore) Recent(ctx context.Context) ([]Pin, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collect(func(Pin) bool { return true }), nil
}

func (s *MemoryStore) ByOwner(ctx context.Context, ownerID string) ([]Pin, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collect(func(p Pin) bool { return p.OwnerID == ownerID }), nil
}

func (s *MemoryStore) Search(ctx context.Context, query string) ([]Pin, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	words := queryWords(query)
	if len(words) == 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collect(func(p Pin) bool { return matchesAny(p, words) }), nil
}

func matchesAny(p Pin, words []string) bool {
	caption := strings.ToLower(p.Caption)
	for _, w := range words {
		if strings.Contains(caption, w) {
			return true
		}
		for _, t := range p.Tags {
			if strings.Contains(strings.ToLower(t), w) {
				return true
			}
		}
	}
	return false
}

func (s *MemoryStore) SavedBy(ctx context.Context, userID string) ([]Pin, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collect(func(p Pin) bool {
		_, ok := s.saves[p.ID][userID]
		return ok
	}), nil
}

func (s *MemoryStore) ToggleLike(ctx context.Context, now time.Time, pinID, userID string) (Mark, error) {
	return s.toggle(ctx, now, pinID, userID, s.likes, NotifyLike)
}

func (s *MemoryStore) ToggleSave(ctx context.Context, now time.Time, pinID, userID string) (Mark, error) {
	return s.toggle(ctx, now, pinID, userID, s.saves, NotifySave)
}

func (s *MemoryStore) toggle(ctx context.Context, now time.Time, pinID, userID string, marks map[string]map[string]time.Time, kind string) (Mark, error) {
	if err := ctx.Err(); err != nil {
		return Mark{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pins[pinID]
	if !ok {
		return Mark{}, ErrPinNotFound
	}

	byUser := marks[pinID]
	if byUser == nil {
		byUser = make(map[string]time.Time)
		marks[pinID] = byUser
	}

	var mark Mark
	if _, marked := byUser[userID]; marked {
		delete(byUser, userID)
	} else {
		byUser[userID] = now.UTC()
		mark.Active = true
		if p.OwnerID != userID {
			n := Notification{
				ID:          ulid.Make().String(),
				RecipientID: p.OwnerID,
				SenderID:    userID,
				Type:        kind,
				PinID:       pinID,
				CreatedAt:   now.UTC(),
			}
			s.notifs = append(s.notifs, n)
			mark.Notification = &n
		}
	}
	mark.Count = len(byUser)
	return mark, nil
}

func (s *MemoryStore) Notifications(ctx context.Context, recipientID string) ([]Notification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Notification
	for _, n := range s.notifs {
		if n.RecipientID == recipientID {
			out = append(out, n)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// collect snapshots matching pins newest first. Callers hold s.mu.
func (s *MemoryStore) collect(keep func(Pin) bool) []Pin {
	var out []Pin
	for _, p := range s.pins {
		if keep(p) {
			out = append(out, s.withCounts(p))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (s *MemoryStore) withCounts(p Pin) Pin {
	p.LikeCount = len(s.likes[p.ID])
	p.SaveCount = len(s.saves[p.ID])
	p.Tags = append([]string(nil), p.Tags...)
	return p
}
