package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/dsa-quest/internal/domain"
)

type memLearners struct {
	mu       sync.Mutex
	learners map[string]*domain.Learner
	touched  int
}

func newMemLearners() *memLearners {
	return &memLearners{learners: make(map[string]*domain.Learner)}
}

func (m *memLearners) GetLearner(_ context.Context, id string) (*domain.Learner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.learners[id]; ok {
		cp := *l
		return &cp, nil
	}
	return nil, nil
}

func (m *memLearners) UpsertLearner(_ context.Context, l *domain.Learner) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *l
	m.learners[l.LearnerID] = &cp
	return nil
}

func (m *memLearners) UpdateLastSeen(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touched++
	if l, ok := m.learners[id]; ok {
		l.LastSeenAt = at
	}
	return nil
}

func serve(t *testing.T, repo Learners, req *http.Request) (*httptest.ResponseRecorder, string) {
	t.Helper()
	var seen string
	h := Middleware(repo, true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = LearnerIDFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, seen
}

func TestMiddlewareCreatesLearner(t *testing.T) {
	t.Parallel()
	repo := newMemLearners()

	rec, id := serve(t, repo, httptest.NewRequest(http.MethodGet, "/api/progress", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}
	if !IsValidLearnerID(id) {
		t.Fatalf("learner id %q is not valid", id)
	}
	if _, ok := repo.learners[id]; !ok {
		t.Fatalf("learner %q was not persisted", id)
	}

	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == LearnerCookieName {
			cookie = c
		}
	}
	if cookie == nil || cookie.Value != id {
		t.Fatalf("cookie = %+v, want value %q", cookie, id)
	}
}

func TestMiddlewareReusesCookie(t *testing.T) {
	t.Parallel()
	repo := newMemLearners()
	const id = "lrn_0123456789abcdef0123456789abcdef"
	old := time.Now().Add(-time.Hour)
	repo.learners[id] = &domain.Learner{LearnerID: id, LastSeenAt: old}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: LearnerCookieName, Value: id})
	_, seen := serve(t, repo, req)

	if seen != id {
		t.Fatalf("learner id = %q, want %q", seen, id)
	}
	if repo.touched != 1 {
		t.Fatalf("UpdateLastSeen calls = %d, want 1", repo.touched)
	}

	// Seen again immediately: no second write.
	serve(t, repo, req)
	if repo.touched != 1 {
		t.Fatalf("UpdateLastSeen calls = %d, want 1", repo.touched)
	}
}

func TestMiddlewareReplacesForgedCookie(t *testing.T) {
	t.Parallel()
	repo := newMemLearners()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: LearnerCookieName, Value: "../../etc/passwd"})

	_, seen := serve(t, repo, req)
	if seen == "../../etc/passwd" || !IsValidLearnerID(seen) {
		t.Fatalf("learner id = %q, want freshly generated id", seen)
	}
}

func TestIPFromRequest(t *testing.T) {
	t.Parallel()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.7:5123"
	if got := IPFromRequest(req); got != "10.0.0.7" {
		t.Errorf("IPFromRequest() = %q, want 10.0.0.7", got)
	}
	req.RemoteAddr = "pipe"
	if got := IPFromRequest(req); got != "pipe" {
		t.Errorf("IPFromRequest() = %q, want pipe", got)
	}
}
