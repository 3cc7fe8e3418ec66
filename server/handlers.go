package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"playlog/cache"
	"playlog/core/auth"
	"playlog/logger"
	"playlog/model"
	"playlog/publisher"
	"playlog/repository"
	"playlog/storage"
)

// maxEventBody bounds the size of an incoming event body.
const maxEventBody = 1 << 20

// APIHandler holds the collector's dependencies. NowPlaying, hub and archive
// may be nil; the corresponding features are then skipped.
type APIHandler struct {
	plays      repository.PlayRepository
	nowPlaying *cache.NowPlaying
	hub        *Hub
	archive    *storage.Archive
	signer     *publisher.Signer

	adminUsername     string
	adminPasswordHash string
	jwtSecret         []byte
}

// NewAPIHandler wires the collector handlers. The shared secret must be able
// to construct a signer, and the admin password is bcrypt-hashed up front so
// the plaintext never sticks around.
func NewAPIHandler(
	plays repository.PlayRepository,
	nowPlaying *cache.NowPlaying,
	hub *Hub,
	archive *storage.Archive,
	secret []byte,
	adminUsername, adminPassword string,
	jwtSecret []byte,
) (*APIHandler, error) {
	signer, err := publisher.NewSigner(secret)
	if err != nil {
		return nil, err
	}
	passwordHash := ""
	if adminPassword != "" {
		passwordHash, err = auth.HashPassword(adminPassword)
		if err != nil {
			return nil, err
		}
	}
	return &APIHandler{
		plays:             plays,
		nowPlaying:        nowPlaying,
		hub:               hub,
		archive:           archive,
		signer:            signer,
		adminUsername:     adminUsername,
		adminPasswordHash: passwordHash,
		jwtSecret:         jwtSecret,
	}, nil
}

// eventEnvelope mirrors the wire body: {"event":"...","data":{...}}.
type eventEnvelope struct {
	Event model.EventType `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// HandleEvent accepts one signed event from an agent.
func (h *APIHandler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxEventBody))
	if err != nil {
		http.Error(w, "cannot read body", http.StatusBadRequest)
		return
	}

	sig := r.Header.Get(publisher.SignatureHeader)
	if sig == "" || !h.signer.Verify(body, sig) {
		logger.Warn("rejected event with bad signature",
			logger.String("remote", r.RemoteAddr))
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	var env eventEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		http.Error(w, "invalid event body", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	switch env.Event {
	case model.EventStart:
		var event model.Start
		if err := json.Unmarshal(env.Data, &event); err != nil {
			http.Error(w, "invalid start event", http.StatusBadRequest)
			return
		}
		h.acceptStart(ctx, event)

	case model.EventStop:
		var event model.Stop
		if err := json.Unmarshal(env.Data, &event); err != nil {
			http.Error(w, "invalid stop event", http.StatusBadRequest)
			return
		}
		if err := h.acceptStop(ctx, event); err != nil {
			http.Error(w, "failed to record play", http.StatusInternalServerError)
			return
		}

	case model.EventConfigChanged:
		// An agent announcing its own reconfiguration; nothing to store.
		logger.Info("agent reconfigured", logger.String("remote", r.RemoteAddr))

	default:
		http.Error(w, "unknown event type", http.StatusBadRequest)
		return
	}

	h.publishSideEffects(ctx, env.Event, body)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (h *APIHandler) acceptStart(ctx context.Context, event model.Start) {
	logger.Info("track started",
		logger.String("artist", event.Artist),
		logger.String("title", event.Title))
	if h.nowPlaying != nil {
		if err := h.nowPlaying.Set(ctx, event.TrackInfo); err != nil {
			logger.Error("cannot update now playing", logger.ErrorField(err))
		}
	}
}

func (h *APIHandler) acceptStop(ctx context.Context, event model.Stop) error {
	logger.Info("track stopped",
		logger.String("artist", event.Artist),
		logger.String("title", event.Title),
		logger.Float64("playTime", event.PlayTime))
	if err := h.plays.CreatePlay(model.PlayFromStop(event)); err != nil {
		logger.Error("cannot store play record", logger.ErrorField(err))
		return err
	}
	if h.nowPlaying != nil {
		if err := h.nowPlaying.Clear(ctx); err != nil {
			logger.Error("cannot clear now playing", logger.ErrorField(err))
		}
	}
	return nil
}

// publishSideEffects feeds the live feed and the archive. Both are
// best-effort and never fail the request.
func (h *APIHandler) publishSideEffects(ctx context.Context, eventType model.EventType, body []byte) {
	if h.hub != nil {
		h.hub.Broadcast(body)
	}
	if h.archive != nil {
		archiveCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := h.archive.Store(archiveCtx, string(eventType), body); err != nil {
			logger.Error("cannot archive event", logger.ErrorField(err))
		}
	}
}

// NowPlayingHandler reports the currently playing track.
func (h *APIHandler) NowPlayingHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if h.nowPlaying == nil {
		json.NewEncoder(w).Encode(map[string]interface{}{"playing": false})
		return
	}
	track, err := h.nowPlaying.Get(r.Context())
	if err != nil {
		logger.Error("cannot read now playing", logger.ErrorField(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if track == nil {
		json.NewEncoder(w).Encode(map[string]interface{}{"playing": false})
		return
	}
	json.NewEncoder(w).Encode(map[string]interface{}{"playing": true, "track": track})
}

// ListPlaysHandler returns a page of the play history.
func (h *APIHandler) ListPlaysHandler(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	if limit > 500 {
		limit = 500
	}
	offset := queryInt(r, "offset", 0)

	plays, err := h.plays.ListPlays(limit, offset)
	if err != nil {
		logger.Error("cannot list plays", logger.ErrorField(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	total, err := h.plays.CountPlays()
	if err != nil {
		logger.Error("cannot count plays", logger.ErrorField(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"total": total,
		"plays": plays,
	})
}

// LoginRequest represents the login request body.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginHandler exchanges admin credentials for a JWT.
func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Username == "" || req.Password == "" {
		http.Error(w, "username and password are required", http.StatusBadRequest)
		return
	}

	if h.adminPasswordHash == "" ||
		req.Username != h.adminUsername ||
		!auth.CheckPasswordHash(req.Password, h.adminPasswordHash) {
		logger.Warn("failed login attempt", logger.String("username", req.Username))
		http.Error(w, "invalid username or password", http.StatusUnauthorized)
		return
	}

	token, err := auth.GenerateToken(req.Username, h.jwtSecret)
	if err != nil {
		logger.Error("cannot generate token", logger.ErrorField(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"token": token})
}

// AuthMiddleware guards a handler with JWT bearer authentication.
func (h *APIHandler) AuthMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		if _, err := auth.ParseToken(strings.TrimPrefix(header, "Bearer "), h.jwtSecret); err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func queryInt(r *http.Request, key string, fallback int) int {
	value := r.URL.Query().Get(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}
