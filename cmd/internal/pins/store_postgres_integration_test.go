package pins

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
)

// Integration tests are enabled when PINBOARD_DATABASE_URL is set.
// Without it, these tests skip so local runs stay fast.

func mustIntegrationStore(t *testing.T) (*PostgresStore, []string) {
	t.Helper()

	dbURL := os.Getenv("PINBOARD_DATABASE_URL")
	if dbURL == "" {
		t.Skip("PINBOARD_DATABASE_URL is not set; skipping Postgres integration test")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("pgxpool.New: %v", err)
	}
	t.Cleanup(pool.Close)

	store, err := NewPostgresStore(pool)
	if err != nil {
		t.Fatalf("NewPostgresStore: %v", err)
	}

	users := make([]string, 2)
	for i := range users {
		id := ulid.Make().String()
		_, err := pool.Exec(ctx, `
			INSERT INTO pinboard.users (id, username, email, password_hash, roles, created_at)
			VALUES ($1, $2, $3, 'x', '{user}', now())
		`, id, "it-"+id, "it-"+id+"@test.local")
		if err != nil {
			t.Fatalf("create test user: %v", err)
		}
		users[i] = id
	}
	t.Cleanup(func() {
		for _, id := range users {
			_, _ = pool.Exec(ctx, `DELETE FROM pinboard.users WHERE id = $1`, id)
		}
	})

	return store, users
}

func TestPostgresPinRoundtrip(t *testing.T) {
	t.Parallel()
	store, users := mustIntegrationStore(t)
	ctx := context.Background()

	created, err := store.Create(ctx, CreatePinInput{
		OwnerID:  users[0],
		ImageURL: "https://img.test/a.jpg",
		Caption:  "integration sunset",
		Tags:     []string{"it-beach", "it-sky"},
		Now:      time.Now(),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := store.Pin(ctx, created.ID)
	if err != nil {
		t.Fatalf("Pin: %v", err)
	}
	if got.Caption != "integration sunset" || len(got.Tags) != 2 {
		t.Fatalf("round-tripped pin = %+v", got)
	}

	found, err := store.Search(ctx, "it-beach")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	var hit bool
	for _, p := range found {
		if p.ID == created.ID {
			hit = true
		}
	}
	if !hit {
		t.Fatal("search did not find the created pin by tag")
	}

	if _, err := store.Pin(ctx, "nope"); !errors.Is(err, ErrPinNotFound) {
		t.Fatalf("unknown pin err = %v, want ErrPinNotFound", err)
	}
}

func TestPostgresToggleCreatesNotification(t *testing.T) {
	t.Parallel()
	store, users := mustIntegrationStore(t)
	ctx := context.Background()
	owner, liker := users[0], users[1]

	p, err := store.Create(ctx, CreatePinInput{
		OwnerID:  owner,
		ImageURL: "https://img.test/b.jpg",
		Tags:     []string{"it-notify"},
		Now:      time.Now(),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	mark, err := store.ToggleLike(ctx, time.Now(), p.ID, liker)
	if err != nil {
		t.Fatalf("ToggleLike: %v", err)
	}
	if !mark.Active || mark.Count != 1 || mark.Notification == nil {
		t.Fatalf("mark = %+v", mark)
	}

	notifs, err := store.Notifications(ctx, owner)
	if err != nil {
		t.Fatalf("Notifications: %v", err)
	}
	if len(notifs) == 0 || notifs[0].SenderID != liker {
		t.Fatalf("notifications = %+v", notifs)
	}

	// Toggle off removes the mark but keeps the notification history.
	mark, err = store.ToggleLike(ctx, time.Now(), p.ID, liker)
	if err != nil {
		t.Fatalf("ToggleLike: %v", err)
	}
	if mark.Active || mark.Count != 0 {
		t.Fatalf("second mark = %+v", mark)
	}
}
