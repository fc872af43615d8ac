package pins

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"pinboard/cmd/identity"
	"pinboard/cmd/internal/auth"
	"pinboard/cmd/internal/httpx"
)

const maxSuggestions = 8

// Users is the slice of the identity store the pin handlers need for
// owner/sender display data.
type Users interface {
	UserByID(ctx context.Context, id string) (identity.User, error)
}

// Notifier pushes a freshly created notification to the recipient's live
// connections, if any. Delivery is best effort.
type Notifier interface {
	Publish(n Notification)
}

// NoopNotifier drops every notification; used when no push gateway runs.
type NoopNotifier struct{}

// Publish drops n.
func (NoopNotifier) Publish(Notification) {}

// HandlerConfig controls request handling limits.
type HandlerConfig struct {
	Production   bool
	MaxBodyBytes int64
	StoreTimeout time.Duration
}

func (c HandlerConfig) withDefaults() HandlerConfig {
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 1 << 20
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = 3 * time.Second
	}
	return c
}

// Handler serves the /pin and /user route trees.
type Handler struct {
	log      *slog.Logger
	cfg      HandlerConfig
	store    Store
	users    Users
	notifier Notifier

	now     func() time.Time
	shuffle func(n int, swap func(i, j int))
}

// NewHandler wires the pin surface.
func NewHandler(log *slog.Logger, cfg HandlerConfig, store Store, users Users, notifier Notifier) (*Handler, error) {
	if store == nil {
		return nil, errors.New("pins: nil store")
	}
	if users == nil {
		return nil, errors.New("pins: nil user lookup")
	}
	if log == nil {
		log = slog.Default()
	}
	if notifier == nil {
		notifier = NoopNotifier{}
	}
	return &Handler{
		log:      log,
		cfg:      cfg.withDefaults(),
		store:    store,
		users:    users,
		notifier: notifier,
		now:      time.Now,
		shuffle:  rand.Shuffle,
	}, nil
}

// Register mounts the routes. requireAuth gates the mutating and private
// endpoints; public browsing stays open.
func (h *Handler) Register(mux *http.ServeMux, requireAuth func(http.Handler) http.Handler) {
	mux.HandleFunc("GET /pin", h.handleList)
	mux.HandleFunc("GET /pin/search", h.handleSearch)
	mux.HandleFunc("GET /pin/suggestions", h.handleSuggestions)
	mux.HandleFunc("GET /pin/user/{userId}", h.handleUserPins)
	mux.HandleFunc("GET /pin/{id}", h.handleGet)
	mux.Handle("POST /pin", requireAuth(http.HandlerFunc(h.handleCreate)))
	mux.Handle("POST /pin/{id}/like", requireAuth(http.HandlerFunc(h.handleLike)))
	mux.Handle("POST /pin/{id}/save", requireAuth(http.HandlerFunc(h.handleSave)))

	mux.Handle("GET /user/notifications", requireAuth(http.HandlerFunc(h.handleNotifications)))
	mux.HandleFunc("GET /user/saved/{userId}", h.handleSavedPins)
	mux.HandleFunc("GET /user/{id}", h.handleUser)
}

type pinResponse struct {
	ID        string    `json:"id"`
	Caption   string    `json:"caption,omitempty"`
	ImageURL  string    `json:"img"`
	Tags      []string  `json:"tags"`
	OwnerID   string    `json:"owner"`
	Likes     int       `json:"likes"`
	Saves     int       `json:"saves"`
	CreatedAt time.Time `json:"createdAt"`
}

type createPinRequest struct {
	ImageURL string   `json:"imageURL"`
	Caption  string   `json:"caption"`
	Tags     []string `json:"tags"`
}

type markResponse struct {
	Active bool `json:"active"`
	Count  int  `json:"count"`
}

type notificationResponse struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	PinID      string    `json:"pin,omitempty"`
	SenderID   string    `json:"sender"`
	SenderName string    `json:"senderName,omitempty"`
	Read       bool      `json:"read"`
	CreatedAt  time.Time `json:"createdAt"`
}

func toPinResponse(p Pin) pinResponse {
	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}
	return pinResponse{
		ID:        p.ID,
		Caption:   p.Caption,
		ImageURL:  p.ImageURL,
		Tags:      tags,
		OwnerID:   p.OwnerID,
		Likes:     p.LikeCount,
		Saves:     p.SaveCount,
		CreatedAt: p.CreatedAt,
	}
}

func toPinResponses(pins []Pin) []pinResponse {
	out := make([]pinResponse, 0, len(pins))
	for _, p := range pins {
		out = append(out, toPinResponse(p))
	}
	return out
}

func (h *Handler) storeCtx(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), h.cfg.StoreTimeout)
}

// handleList returns the feed: every pin in randomized order, so repeat
// visits surface different content.
func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.storeCtx(r)
	defer cancel()

	pins, err := h.store.Recent(ctx)
	if err != nil {
		h.log.Error("pin list failed", "error", err)
		httpx.WriteInternalError(w, err, h.cfg.Production)
		return
	}
	h.shuffle(len(pins), func(i, j int) { pins[i], pins[j] = pins[j], pins[i] })
	httpx.WriteJSON(w, http.StatusOK, toPinResponses(pins))
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if strings.TrimSpace(q) == "" {
		httpx.WriteError(w, http.StatusBadRequest, "Search query is required")
		return
	}

	ctx, cancel := h.storeCtx(r)
	defer cancel()

	pins, err := h.store.Search(ctx, q)
	if err != nil {
		h.log.Error("pin search failed", "error", err)
		httpx.WriteInternalError(w, err, h.cfg.Production)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toPinResponses(pins))
}

// handleSuggestions completes a partial query from matching pins' tags
// and caption words, capped at maxSuggestions.
func (h *Handler) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	q := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("q")))
	if q == "" {
		httpx.WriteJSON(w, http.StatusOK, []string{})
		return
	}

	ctx, cancel := h.storeCtx(r)
	defer cancel()

	pins, err := h.store.Search(ctx, q)
	if err != nil {
		h.log.Error("pin suggestions failed", "error", err)
		httpx.WriteInternalError(w, err, h.cfg.Production)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, suggestTerms(pins, q))
}

// suggestTerms collects distinct terms starting with the query prefix,
// first-seen order, from tags and caption words.
func suggestTerms(pins []Pin, prefix string) []string {
	seen := make(map[string]struct{})
	out := []string{}
	add := func(term string) {
		if len(out) >= maxSuggestions {
			return
		}
		if !strings.HasPrefix(strings.ToLower(term), prefix) {
			return
		}
		key := strings.ToLower(term)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		out = append(out, term)
	}

	for _, p := range pins {
		for _, t := range p.Tags {
			add(t)
		}
		for _, w := range strings.Fields(p.Caption) {
			add(w)
		}
	}
	return out
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.storeCtx(r)
	defer cancel()

	p, err := h.store.Pin(ctx, r.PathValue("id"))
	if err != nil {
		if errors.Is(err, ErrPinNotFound) {
			httpx.WriteError(w, http.StatusNotFound, "Pin not found")
			return
		}
		h.log.Error("pin get failed", "error", err)
		httpx.WriteInternalError(w, err, h.cfg.Production)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toPinResponse(p))
}

func (h *Handler) handleUserPins(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.storeCtx(r)
	defer cancel()

	pins, err := h.store.ByOwner(ctx, r.PathValue("userId"))
	if err != nil {
		h.log.Error("user pins failed", "error", err)
		httpx.WriteInternalError(w, err, h.cfg.Production)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toPinResponses(pins))
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req createPinRequest
	if err := httpx.DecodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var fields []httpx.FieldError
	if strings.TrimSpace(req.ImageURL) == "" {
		fields = append(fields, httpx.FieldError{Field: "imageURL", Message: "image is required"})
	}
	if len(cleanTags(req.Tags)) == 0 {
		fields = append(fields, httpx.FieldError{Field: "tags", Message: "at least one tag is required"})
	}
	if len(fields) > 0 {
		httpx.WriteValidationError(w, "validation failed", fields)
		return
	}

	ctx, cancel := h.storeCtx(r)
	defer cancel()

	p, err := h.store.Create(ctx, CreatePinInput{
		OwnerID:  id.UserID,
		ImageURL: req.ImageURL,
		Caption:  req.Caption,
		Tags:     req.Tags,
		Now:      h.now(),
	})
	if err != nil {
		h.log.Error("pin create failed", "error", err)
		httpx.WriteInternalError(w, err, h.cfg.Production)
		return
	}
	h.log.Info("pin created", "pin_id", p.ID, "owner_id", p.OwnerID)
	httpx.WriteJSON(w, http.StatusCreated, toPinResponse(p))
}

func (h *Handler) handleLike(w http.ResponseWriter, r *http.Request) {
	h.handleToggle(w, r, h.store.ToggleLike)
}

func (h *Handler) handleSave(w http.ResponseWriter, r *http.Request) {
	h.handleToggle(w, r, h.store.ToggleSave)
}

func (h *Handler) handleToggle(w http.ResponseWriter, r *http.Request, toggle func(context.Context, time.Time, string, string) (Mark, error)) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	ctx, cancel := h.storeCtx(r)
	defer cancel()

	mark, err := toggle(ctx, h.now(), r.PathValue("id"), id.UserID)
	if err != nil {
		if errors.Is(err, ErrPinNotFound) {
			httpx.WriteError(w, http.StatusNotFound, "Pin not found")
			return
		}
		h.log.Error("pin toggle failed", "error", err)
		httpx.WriteInternalError(w, err, h.cfg.Production)
		return
	}

	if mark.Notification != nil {
		h.notifier.Publish(*mark.Notification)
	}
	httpx.WriteJSON(w, http.StatusOK, markResponse{Active: mark.Active, Count: mark.Count})
}

func (h *Handler) handleUser(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.storeCtx(r)
	defer cancel()

	u, err := h.users.UserByID(ctx, r.PathValue("id"))
	if err != nil {
		if identity.IsNotFound(err) {
			httpx.WriteError(w, http.StatusNotFound, "User not found")
			return
		}
		h.log.Error("user get failed", "error", err)
		httpx.WriteInternalError(w, err, h.cfg.Production)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{
		"id":       u.ID,
		"username": u.Username,
		"email":    u.Email,
	})
}

func (h *Handler) handleNotifications(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	ctx, cancel := h.storeCtx(r)
	defer cancel()

	notifs, err := h.store.Notifications(ctx, id.UserID)
	if err != nil {
		h.log.Error("notification list failed", "error", err)
		httpx.WriteInternalError(w, err, h.cfg.Production)
		return
	}

	// Resolve sender names once per distinct sender. A missing sender
	// (deleted account) leaves the name blank rather than failing.
	names := make(map[string]string)
	out := make([]notificationResponse, 0, len(notifs))
	for _, n := range notifs {
		name, seen := names[n.SenderID]
		if !seen {
			if u, err := h.users.UserByID(ctx, n.SenderID); err == nil {
				name = u.Username
			}
			names[n.SenderID] = name
		}
		out = append(out, notificationResponse{
			ID:         n.ID,
			Type:       n.Type,
			PinID:      n.PinID,
			SenderID:   n.SenderID,
			SenderName: name,
			Read:       n.Read,
			CreatedAt:  n.CreatedAt,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) handleSavedPins(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.storeCtx(r)
	defer cancel()

	pins, err := h.store.SavedBy(ctx, r.PathValue("userId"))
	if err != nil {
		h.log.Error("saved pins failed", "error", err)
		httpx.WriteInternalError(w, err, h.cfg.Production)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toPinResponses(pins))
}
