// ABOUTME: In-process fake of the gist REST API for tests.
// ABOUTME: Serves get, list, create, edit and rate limit endpoints with injectable failures.
package gisttest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/go-github/github"
	"github.com/gorilla/mux"
)

// Server is a fake gist API backed by memory.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	gists    map[string]*github.Gist
	nextID   int
	fail     map[string][]int
	calls    map[string]int
	pageSize int
	token    string
	hook     func(route string)
}

// NewServer starts a fake gist API. Close it when done.
func NewServer() *Server {
	s := &Server{
		gists:    make(map[string]*github.Gist),
		fail:     make(map[string][]int),
		calls:    make(map[string]int),
		pageSize: 30,
	}

	r := mux.NewRouter()
	r.HandleFunc("/gists", s.wrap("list", s.handleList)).Methods(http.MethodGet)
	r.HandleFunc("/gists", s.wrap("create", s.handleCreate)).Methods(http.MethodPost)
	r.HandleFunc("/gists/{id}", s.wrap("get", s.handleGet)).Methods(http.MethodGet)
	r.HandleFunc("/gists/{id}", s.wrap("edit", s.handleEdit)).Methods(http.MethodPatch)
	r.HandleFunc("/rate_limit", s.wrap("rate_limit", s.handleRateLimit)).Methods(http.MethodGet)

	s.Server = httptest.NewServer(r)
	return s
}

// RequireToken makes every route answer 401 unless the bearer token matches.
func (s *Server) RequireToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

// OnRequest registers fn to run before each handler.
func (s *Server) OnRequest(fn func(route string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hook = fn
}

// FailNext queues status codes returned by the next calls to route
// ("get", "list", "create", "edit", "rate_limit").
func (s *Server) FailNext(route string, codes ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[route] = append(s.fail[route], codes...)
}

// SetPageSize changes the list page size.
func (s *Server) SetPageSize(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pageSize = n
}

// Calls returns how many times route was hit.
func (s *Server) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

// Put stores a gist directly and returns its id.
func (s *Server) Put(description, filename, content string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := &github.Gist{
		Description: github.String(description),
		Files: map[github.GistFilename]github.GistFile{
			github.GistFilename(filename): {Filename: github.String(filename), Content: github.String(content)},
		},
	}
	return s.storeLocked(g)
}

// Delete removes a gist.
func (s *Server) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.gists, id)
}

// Content returns the stored file content, if any.
func (s *Server) Content(id, filename string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.gists[id]
	if !ok {
		return "", false
	}
	f, ok := g.Files[github.GistFilename(filename)]
	return f.GetContent(), ok
}

// Count returns the number of stored gists.
func (s *Server) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.gists)
}

// IDs returns stored gist ids in creation order.
func (s *Server) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedIDsLocked()
}

func (s *Server) storeLocked(g *github.Gist) string {
	s.nextID++
	id := fmt.Sprintf("g%04d", s.nextID)
	now := time.Now().UTC().Truncate(time.Second)
	g.ID = github.String(id)
	g.CreatedAt = &now
	g.UpdatedAt = &now
	s.gists[id] = g
	return id
}

func (s *Server) sortedIDsLocked() []string {
	ids := make([]string, 0, len(s.gists))
	for id := range s.gists {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *Server) wrap(route string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		hook := s.hook
		s.mu.Unlock()
		if hook != nil {
			hook(route)
		}

		s.mu.Lock()
		s.calls[route]++
		token := s.token
		var code int
		if queued := s.fail[route]; len(queued) > 0 {
			code, s.fail[route] = queued[0], queued[1:]
		}
		s.mu.Unlock()

		if token != "" && r.Header.Get("Authorization") != "Bearer "+token {
			writeError(w, http.StatusUnauthorized, "Bad credentials")
			return
		}
		if code != 0 {
			writeError(w, code, http.StatusText(code))
			return
		}
		h(w, r)
	}
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	g, ok := s.gists[mux.Vars(r)["id"]]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}

	s.mu.Lock()
	size := s.pageSize
	if pp, _ := strconv.Atoi(r.URL.Query().Get("per_page")); pp > 0 && pp < size {
		size = pp
	}
	ids := s.sortedIDsLocked()
	var out []*github.Gist
	start := (page - 1) * size
	for i := start; i < len(ids) && i < start+size; i++ {
		g := *s.gists[ids[i]]
		// Listings omit file content.
		files := make(map[github.GistFilename]github.GistFile, len(g.Files))
		for name, f := range g.Files {
			files[name] = github.GistFile{Filename: f.Filename}
		}
		g.Files = files
		out = append(out, &g)
	}
	more := start+size < len(ids)
	s.mu.Unlock()

	if more {
		next := *r.URL
		q := next.Query()
		q.Set("page", strconv.Itoa(page+1))
		next.RawQuery = q.Encode()
		w.Header().Set("Link", fmt.Sprintf(`<%s%s>; rel="next"`, s.URL, next.RequestURI()))
	}
	if out == nil {
		out = []*github.Gist{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var g github.Gist
	if err := json.NewDecoder(r.Body).Decode(&g); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	for name, f := range g.Files {
		f.Filename = github.String(string(name))
		g.Files[name] = f
	}

	s.mu.Lock()
	s.storeLocked(&g)
	s.mu.Unlock()
	writeJSON(w, http.StatusCreated, &g)
}

func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request) {
	var patch github.Gist
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.gists[mux.Vars(r)["id"]]
	if !ok {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}
	if patch.Description != nil {
		g.Description = patch.Description
	}
	for name, f := range patch.Files {
		f.Filename = github.String(string(name))
		g.Files[name] = f
	}
	now := time.Now().UTC().Truncate(time.Second)
	g.UpdatedAt = &now
	writeJSON(w, http.StatusOK, g)
}

func (s *Server) handleRateLimit(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"resources": map[string]any{
			"core": map[string]any{"limit": 5000, "remaining": 4999, "reset": time.Now().Add(time.Hour).Unix()},
		},
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"message": msg})
}
