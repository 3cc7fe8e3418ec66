package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"playlog/model"
	"playlog/publisher"
	"playlog/repository"
)

// fakePlayRepo is an in-memory PlayRepository.
type fakePlayRepo struct {
	plays []*model.Play
	fail  bool
}

var _ repository.PlayRepository = (*fakePlayRepo)(nil)

func (r *fakePlayRepo) CreatePlay(play *model.Play) error {
	if r.fail {
		return errFake
	}
	r.plays = append(r.plays, play)
	return nil
}

func (r *fakePlayRepo) ListPlays(limit, offset int) ([]*model.Play, error) {
	if offset >= len(r.plays) {
		return nil, nil
	}
	end := offset + limit
	if end > len(r.plays) {
		end = len(r.plays)
	}
	return r.plays[offset:end], nil
}

func (r *fakePlayRepo) CountPlays() (int64, error) {
	return int64(len(r.plays)), nil
}

var errFake = errors.New("repository unavailable")

const (
	testSecret    = "shared-secret"
	testJWTSecret = "jwt-secret"
	testAdmin     = "admin"
	testPassword  = "hunter2"
)

func newTestHandler(t *testing.T, repo repository.PlayRepository) *APIHandler {
	t.Helper()
	h, err := NewAPIHandler(repo, nil, nil, nil,
		[]byte(testSecret), testAdmin, testPassword, []byte(testJWTSecret))
	if err != nil {
		t.Fatalf("NewAPIHandler failed: %v", err)
	}
	return h
}

func signedEventRequest(t *testing.T, e model.Event) *http.Request {
	t.Helper()
	body, err := model.Marshal(e)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	signer, err := publisher.NewSigner([]byte(testSecret))
	if err != nil {
		t.Fatalf("NewSigner failed: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/events", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(publisher.SignatureHeader, signer.SignHex(body))
	return req
}

func TestHandleEventRejectsBadSignature(t *testing.T) {
	h := newTestHandler(t, &fakePlayRepo{})

	body, _ := model.Marshal(model.Start{TrackInfo: model.TrackInfo{Artist: "A", Album: "B", Title: "C"}})
	req := httptest.NewRequest(http.MethodPost, "/api/events", bytes.NewReader(body))
	req.Header.Set(publisher.SignatureHeader, "deadbeef")
	rec := httptest.NewRecorder()

	h.HandleEvent(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestHandleEventRejectsMissingSignature(t *testing.T) {
	h := newTestHandler(t, &fakePlayRepo{})

	body, _ := model.Marshal(model.Start{TrackInfo: model.TrackInfo{Artist: "A", Album: "B", Title: "C"}})
	req := httptest.NewRequest(http.MethodPost, "/api/events", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.HandleEvent(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestHandleEventStopStoresPlay(t *testing.T) {
	repo := &fakePlayRepo{}
	h := newTestHandler(t, repo)

	req := signedEventRequest(t, model.Stop{
		TrackInfo: model.TrackInfo{Artist: "A", Album: "B", Title: "C", Duration: 180},
		PlayTime:  120.4,
		StartedAt: 1690000000,
	})
	rec := httptest.NewRecorder()

	h.HandleEvent(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(repo.plays) != 1 {
		t.Fatalf("expected 1 stored play, got %d", len(repo.plays))
	}
	play := repo.plays[0]
	if play.Artist != "A" || play.Title != "C" || play.PlayTime != 120.4 {
		t.Errorf("unexpected play record: %+v", play)
	}
	if play.StartedAt.Unix() != 1690000000 {
		t.Errorf("unexpected started_at: %v", play.StartedAt)
	}
}

func TestHandleEventStartStoresNothing(t *testing.T) {
	repo := &fakePlayRepo{}
	h := newTestHandler(t, repo)

	req := signedEventRequest(t, model.Start{
		TrackInfo: model.TrackInfo{Artist: "A", Album: "B", Title: "C", Duration: 180},
	})
	rec := httptest.NewRecorder()

	h.HandleEvent(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(repo.plays) != 0 {
		t.Errorf("start event must not store a play, got %d", len(repo.plays))
	}
}

func TestHandleEventStopRepositoryFailure(t *testing.T) {
	h := newTestHandler(t, &fakePlayRepo{fail: true})

	req := signedEventRequest(t, model.Stop{
		TrackInfo: model.TrackInfo{Artist: "A", Album: "B", Title: "C"},
		PlayTime:  10,
		StartedAt: 1690000000,
	})
	rec := httptest.NewRecorder()

	h.HandleEvent(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500 when the repository fails, got %d", rec.Code)
	}
}

func TestHandleEventConfigChangedIsAccepted(t *testing.T) {
	repo := &fakePlayRepo{}
	h := newTestHandler(t, repo)

	req := signedEventRequest(t, model.ConfigChanged{URL: "http://next", Secret: "next"})
	rec := httptest.NewRecorder()

	h.HandleEvent(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if len(repo.plays) != 0 {
		t.Errorf("config_changed must not store a play")
	}
}

func TestHandleEventUnknownType(t *testing.T) {
	h := newTestHandler(t, &fakePlayRepo{})

	body := []byte(`{"event":"mystery","data":{}}`)
	signer, _ := publisher.NewSigner([]byte(testSecret))
	req := httptest.NewRequest(http.MethodPost, "/api/events", bytes.NewReader(body))
	req.Header.Set(publisher.SignatureHeader, signer.SignHex(body))
	rec := httptest.NewRecorder()

	h.HandleEvent(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func loginToken(t *testing.T, h *APIHandler, username, password string) (int, string) {
	t.Helper()
	body, _ := json.Marshal(LoginRequest{Username: username, Password: password})
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.LoginHandler(rec, req)
	if rec.Code != http.StatusOK {
		return rec.Code, ""
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("cannot decode login response: %v", err)
	}
	return rec.Code, resp["token"]
}

func TestLogin(t *testing.T) {
	h := newTestHandler(t, &fakePlayRepo{})

	if code, _ := loginToken(t, h, testAdmin, "wrong"); code != http.StatusUnauthorized {
		t.Errorf("expected 401 for wrong password, got %d", code)
	}
	if code, _ := loginToken(t, h, "nobody", testPassword); code != http.StatusUnauthorized {
		t.Errorf("expected 401 for unknown user, got %d", code)
	}

	code, token := loginToken(t, h, testAdmin, testPassword)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if token == "" {
		t.Fatal("expected a token")
	}
}

func TestListPlaysRequiresAuth(t *testing.T) {
	repo := &fakePlayRepo{plays: []*model.Play{{Artist: "A", Title: "C"}}}
	h := newTestHandler(t, repo)
	protected := h.AuthMiddleware(h.ListPlaysHandler)

	req := httptest.NewRequest(http.MethodGet, "/api/plays", nil)
	rec := httptest.NewRecorder()
	protected(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", rec.Code)
	}

	_, token := loginToken(t, h, testAdmin, testPassword)
	req = httptest.NewRequest(http.MethodGet, "/api/plays", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	protected(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", rec.Code)
	}

	var resp struct {
		Total int64         `json:"total"`
		Plays []*model.Play `json:"plays"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("cannot decode plays response: %v", err)
	}
	if resp.Total != 1 || len(resp.Plays) != 1 {
		t.Errorf("unexpected play listing: %+v", resp)
	}
}

func TestNowPlayingWithoutCache(t *testing.T) {
	h := newTestHandler(t, &fakePlayRepo{})

	req := httptest.NewRequest(http.MethodGet, "/api/nowplaying", nil)
	rec := httptest.NewRecorder()
	h.NowPlayingHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("cannot decode response: %v", err)
	}
	if resp["playing"] != false {
		t.Errorf("expected playing=false, got %v", resp["playing"])
	}
}
