package pins

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
)

// PostgresStore implements Store over pinboard.pins, pinboard.pin_likes,
// pinboard.pin_saves and pinboard.notifications. The pool is owned by the
// caller.
//
// Toggles run in a transaction with the pin row locked FOR UPDATE, so the
// mark flip, the returned count and the notification insert are one
// atomic step even under concurrent toggles on the same pin.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Postgres-backed pin store.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, errors.New("pins: nil pool")
	}
	return &PostgresStore{pool: pool}, nil
}

const pinColumns = `
	p.id, p.owner_id, p.image_url, p.caption, p.tags, p.created_at,
	(SELECT count(*) FROM pinboard.pin_likes l WHERE l.pin_id = p.id),
	(SELECT count(*) FROM pinboard.pin_saves s WHERE s.pin_id = p.id)
`

func scanPin(row pgx.Row) (Pin, error) {
	var p Pin
	err := row.Scan(&p.ID, &p.OwnerID, &p.ImageURL, &p.Caption, &p.Tags,
		&p.CreatedAt, &p.LikeCount, &p.SaveCount)
	return p, err
}

func collectPins(rows pgx.Rows) ([]Pin, error) {
	defer rows.Close()
	var out []Pin
	for rows.Next() {
		p, err := scanPin(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Create(ctx context.Context, in CreatePinInput) (Pin, error) {
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

	_, err := s.pool.Exec(ctx, `
		INSERT INTO pinboard.pins (id, owner_id, image_url, caption, tags, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, p.ID, p.OwnerID, p.ImageURL, p.Caption, p.Tags, p.CreatedAt)
	if err != nil {
		return Pin{}, fmt.Errorf("pins: create: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) Pin(ctx context.Context, id string) (Pin, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+pinColumns+`
		FROM pinboard.pins p
		WHERE p.id = $1
	`, id)
	p, err := scanPin(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Pin{}, ErrPinNotFound
	}
	if err != nil {
		return Pin{}, fmt.Errorf("pins: get: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) Recent(ctx context.Context) ([]Pin, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+pinColumns+`
		FROM pinboard.pins p
		ORDER BY p.created_at DESC, p.id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("pins: recent: %w", err)
	}
	return collectPins(rows)
}

func (s *PostgresStore) ByOwner(ctx context.Context, ownerID string) ([]Pin, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+pinColumns+`
		FROM pinboard.pins p
		WHERE p.owner_id = $1
		ORDER BY p.created_at DESC, p.id DESC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("pins: by owner: %w", err)
	}
	return collectPins(rows)
}

// Search ORs every query word against captions (substring) and tags
// (substring per element), case-insensitive.
func (s *PostgresStore) Search(ctx context.Context, query string) ([]Pin, error) {
	words := queryWords(query)
	if len(words) == 0 {
		return nil, nil
	}

	var (
		conds []string
		args  []any
	)
	for _, w := range words {
		args = append(args, "%"+w+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf(
			`(p.caption ILIKE $%d OR EXISTS (SELECT 1 FROM unnest(p.tags) AS t WHERE t ILIKE $%d))`, n, n))
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+pinColumns+`
		FROM pinboard.pins p
		WHERE `+strings.Join(conds, " OR ")+`
		ORDER BY p.created_at DESC, p.id DESC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("pins: search: %w", err)
	}
	return collectPins(rows)
}

func (s *PostgresStore) SavedBy(ctx context.Context, userID string) ([]Pin, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+pinColumns+`
		FROM pinboard.pins p
		JOIN pinboard.pin_saves sv ON sv.pin_id = p.id
		WHERE sv.user_id = $1
		ORDER BY sv.created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("pins: saved by: %w", err)
	}
	return collectPins(rows)
}

func (s *PostgresStore) ToggleLike(ctx context.Context, now time.Time, pinID, userID string) (Mark, error) {
	return s.toggle(ctx, now, pinID, userID, "pin_likes", NotifyLike)
}

func (s *PostgresStore) ToggleSave(ctx context.Context, now time.Time, pinID, userID string) (Mark, error) {
	return s.toggle(ctx, now, pinID, userID, "pin_saves", NotifySave)
}

// toggle flips one mark row. table is one of the two fixed mark tables,
// never caller input.
func (s *PostgresStore) toggle(ctx context.Context, now time.Time, pinID, userID, table, kind string) (Mark, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Mark{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var ownerID string
	err = tx.QueryRow(ctx, `
		SELECT owner_id FROM pinboard.pins WHERE id = $1 FOR UPDATE
	`, pinID).Scan(&ownerID)
	if errors.Is(err, pgx.ErrNoRows) {
		return Mark{}, ErrPinNotFound
	}
	if err != nil {
		return Mark{}, err
	}

	tag, err := tx.Exec(ctx, `
		DELETE FROM pinboard.`+table+` WHERE pin_id = $1 AND user_id = $2
	`, pinID, userID)
	if err != nil {
		return Mark{}, err
	}

	mark := Mark{Active: tag.RowsAffected() == 0}
	if mark.Active {
		if _, err := tx.Exec(ctx, `
			INSERT INTO pinboard.`+table+` (pin_id, user_id, created_at)
			VALUES ($1, $2, $3)
		`, pinID, userID, now.UTC()); err != nil {
			return Mark{}, err
		}

		if ownerID != userID {
			n := Notification{
				ID:          ulid.Make().String(),
				RecipientID: ownerID,
				SenderID:    userID,
				Type:        kind,
				PinID:       pinID,
				CreatedAt:   now.UTC(),
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO pinboard.notifications (id, recipient_id, sender_id, type, pin_id, read, created_at)
				VALUES ($1, $2, $3, $4, $5, false, $6)
			`, n.ID, n.RecipientID, n.SenderID, n.Type, n.PinID, n.CreatedAt); err != nil {
				return Mark{}, err
			}
			mark.Notification = &n
		}
	}

	if err := tx.QueryRow(ctx, `
		SELECT count(*) FROM pinboard.`+table+` WHERE pin_id = $1
	`, pinID).Scan(&mark.Count); err != nil {
		return Mark{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Mark{}, err
	}
	return mark, nil
}

func (s *PostgresStore) Notifications(ctx context.Context, recipientID string) ([]Notification, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, recipient_id, sender_id, type, pin_id, read, created_at
		FROM pinboard.notifications
		WHERE recipient_id = $1
		ORDER BY created_at DESC, id DESC
	`, recipientID)
	if err != nil {
		return nil, fmt.Errorf("pins: notifications: %w", err)
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.RecipientID, &n.SenderID, &n.Type,
			&n.PinID, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
