package pins

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"pinboard/cmd/identity"
	"pinboard/cmd/internal/auth"
)

type fakeUsers map[string]identity.User

func (f fakeUsers) UserByID(_ context.Context, id string) (identity.User, error) {
	u, ok := f[id]
	if !ok {
		return identity.User{}, identity.NotFoundError{Op: "user by id", Resource: "user"}
	}
	return u, nil
}

type captureNotifier struct{ published []Notification }

func (c *captureNotifier) Publish(n Notification) { c.published = append(c.published, n) }

// asUser stamps every request with a fixed identity, standing in for the
// real credential gate.
func asUser(userID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := auth.Identity{UserID: userID, Username: userID}
			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
		})
	}
}

func newTestHandler(t *testing.T, userID string) (*MemoryStore, *captureNotifier, *http.ServeMux) {
	t.Helper()

	store := NewMemoryStore()
	notifier := &captureNotifier{}
	users := fakeUsers{
		"alice": {ID: "alice", Username: "alice", Email: "alice@example.com"},
		"bob":   {ID: "bob", Username: "bob", Email: "bob@example.com"},
	}
	h, err := NewHandler(nil, HandlerConfig{}, store, users, notifier)
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}

	mux := http.NewServeMux()
	h.Register(mux, asUser(userID))
	return store, notifier, mux
}

func do(t *testing.T, mux *http.ServeMux, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestCreatePinEndpoint(t *testing.T) {
	_, _, mux := newTestHandler(t, "alice")

	rec := do(t, mux, http.MethodPost, "/pin",
		`{"imageURL":"https://img.example/a.jpg","caption":"sunset","tags":["beach","sky"]}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var p pinResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.OwnerID != "alice" || len(p.Tags) != 2 {
		t.Fatalf("created pin = %+v", p)
	}

	// Visible through the public feed.
	list := do(t, mux, http.MethodGet, "/pin", "")
	if list.Code != http.StatusOK {
		t.Fatalf("list status = %d", list.Code)
	}
	var feed []pinResponse
	if err := json.Unmarshal(list.Body.Bytes(), &feed); err != nil {
		t.Fatalf("decode feed: %v", err)
	}
	if len(feed) != 1 || feed[0].ID != p.ID {
		t.Fatalf("feed = %+v", feed)
	}
}

func TestCreatePinValidation(t *testing.T) {
	_, _, mux := newTestHandler(t, "alice")

	rec := do(t, mux, http.MethodPost, "/pin", `{"caption":"no image","tags":[]}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "imageURL") || !strings.Contains(body, "tags") {
		t.Fatalf("body = %s, want both field errors", body)
	}
}

func TestLikeEndpointNotifiesOwner(t *testing.T) {
	store, notifier, mux := newTestHandler(t, "bob")
	p := mustCreate(t, store, "alice", "sunset", "beach")

	rec := do(t, mux, http.MethodPost, "/pin/"+p.ID+"/like", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var mark markResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &mark); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !mark.Active || mark.Count != 1 {
		t.Fatalf("mark = %+v", mark)
	}
	if len(notifier.published) != 1 || notifier.published[0].RecipientID != "alice" {
		t.Fatalf("published = %+v", notifier.published)
	}

	// Toggle off; no second notification.
	rec = do(t, mux, http.MethodPost, "/pin/"+p.ID+"/like", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(notifier.published) != 1 {
		t.Fatalf("unlike published a notification: %+v", notifier.published)
	}
}

func TestLikeUnknownPin(t *testing.T) {
	_, _, mux := newTestHandler(t, "bob")

	rec := do(t, mux, http.MethodPost, "/pin/missing/like", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestSearchEndpoint(t *testing.T) {
	store, _, mux := newTestHandler(t, "alice")
	mustCreate(t, store, "alice", "sunset over the bay", "beach")
	mustCreate(t, store, "alice", "city lights", "night")

	rec := do(t, mux, http.MethodGet, "/pin/search?q=beach", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got []pinResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].Caption != "sunset over the bay" {
		t.Fatalf("results = %+v", got)
	}

	if rec := do(t, mux, http.MethodGet, "/pin/search", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("empty query status = %d, want 400", rec.Code)
	}
}

func TestSuggestionsEndpoint(t *testing.T) {
	store, _, mux := newTestHandler(t, "alice")
	mustCreate(t, store, "alice", "beautiful beach morning", "beach", "beachlife")

	rec := do(t, mux, http.MethodGet, "/pin/suggestions?q=bea", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got []string
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	// beach, beachlife, beautiful: prefix matches only, no duplicates.
	if len(got) != 3 {
		t.Fatalf("suggestions = %v, want 3 terms", got)
	}
	for _, term := range got {
		if !strings.HasPrefix(strings.ToLower(term), "bea") {
			t.Fatalf("suggestion %q does not match the prefix", term)
		}
	}

	empty := do(t, mux, http.MethodGet, "/pin/suggestions?q=", "")
	if body := strings.TrimSpace(empty.Body.String()); body != "[]" {
		t.Fatalf("empty query body = %s, want []", body)
	}
}

func TestSuggestionsCapped(t *testing.T) {
	pinsIn := []Pin{{
		Caption: "zig zag zulu zoom zebra zero zest zone zinc zoomit",
		Tags:    []string{"zanzibar", "zeppelin"},
	}}
	got := suggestTerms(pinsIn, "z")
	if len(got) != maxSuggestions {
		t.Fatalf("got %d suggestions, want %d", len(got), maxSuggestions)
	}
}

func TestUserEndpoints(t *testing.T) {
	store, _, mux := newTestHandler(t, "alice")
	p := mustCreate(t, store, "bob", "forest", "green")

	rec := do(t, mux, http.MethodGet, "/user/bob", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "bob@example.com") {
		t.Fatalf("body = %s", rec.Body.String())
	}

	if rec := do(t, mux, http.MethodGet, "/user/ghost", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown user status = %d, want 404", rec.Code)
	}

	// alice saves bob's pin, then her saved list has it.
	if rec := do(t, mux, http.MethodPost, "/pin/"+p.ID+"/save", ""); rec.Code != http.StatusOK {
		t.Fatalf("save status = %d", rec.Code)
	}
	saved := do(t, mux, http.MethodGet, "/user/saved/alice", "")
	var got []pinResponse
	if err := json.Unmarshal(saved.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].ID != p.ID {
		t.Fatalf("saved = %+v", got)
	}
}

func TestNotificationsEndpoint(t *testing.T) {
	store, _, mux := newTestHandler(t, "alice")
	p := mustCreate(t, store, "alice", "sunset", "beach")

	if _, err := store.ToggleLike(context.Background(), time.Now(), p.ID, "bob"); err != nil {
		t.Fatalf("ToggleLike: %v", err)
	}

	rec := do(t, mux, http.MethodGet, "/user/notifications", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got []notificationResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d notifications, want 1", len(got))
	}
	if got[0].Type != NotifyLike || got[0].SenderName != "bob" {
		t.Fatalf("notification = %+v", got[0])
	}
}
