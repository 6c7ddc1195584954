// Package podiotest provides an in-process fake of the Podio item API for tests.
package podiotest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/agentstation/recordsync/pkg/records"
	"github.com/agentstation/recordsync/pkg/records/memory"
)

// Token is the access token issued by the fake.
const Token = "fake-access-token"

// Server is a fake Podio API backed by a memory store. Text filters match
// case-insensitive substrings, like the real service.
type Server struct {
	*httptest.Server
	Store *memory.Store
	AppID string

	mu       sync.Mutex
	failures map[string]int // "METHOD path" -> remaining forced 500s
	grants   atomic.Int32
}

// New starts a fake server for appID.
func New(appID string, opts ...memory.Option) *Server {
	s := &Server{Store: memory.New(opts...), AppID: appID, failures: map[string]int{}}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /oauth/token", s.token)
	mux.HandleFunc("POST /item/app/{app}/", s.create)
	mux.HandleFunc("POST /item/app/{app}/filter/", s.filter)
	mux.HandleFunc("PUT /item/{id}", s.update)
	mux.HandleFunc("DELETE /item/{id}", s.delete)
	s.Server = httptest.NewServer(s.guard(mux))
	return s
}

// FailNext makes the next n requests matching method and path return 500.
func (s *Server) FailNext(method, path string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method+" "+path] = n
}

// Grants returns how many tokens were issued.
func (s *Server) Grants() int {
	return int(s.grants.Load())
}

func (s *Server) guard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		key := r.Method + " " + r.URL.Path
		if s.failures[key] > 0 {
			s.failures[key]--
			s.mu.Unlock()
			writeError(w, http.StatusInternalServerError, "server_error", "forced failure")
			return
		}
		s.mu.Unlock()

		if r.URL.Path != "/oauth/token" && r.Header.Get("Authorization") != "OAuth2 "+Token {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil || r.PostForm.Get("grant_type") != "app" || r.PostForm.Get("app_id") != s.AppID {
		writeError(w, http.StatusBadRequest, "invalid_grant", "unknown app")
		return
	}
	s.grants.Add(1)
	writeJSON(w, map[string]any{"access_token": Token, "token_type": "bearer", "expires_in": 28800})
}

func (s *Server) checkApp(w http.ResponseWriter, r *http.Request) bool {
	if r.PathValue("app") != s.AppID {
		writeError(w, http.StatusNotFound, "not_found", "unknown app")
		return false
	}
	return true
}

func (s *Server) create(w http.ResponseWriter, r *http.Request) {
	if !s.checkApp(w, r) {
		return
	}
	var body struct {
		Fields map[records.FieldID]any `json:"fields"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_value", err.Error())
		return
	}
	rec, err := s.Store.Create(r.Context(), records.Payload(body.Fields))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, map[string]any{"item_id": mustInt(rec.ID), "revision": rec.Revision})
}

func (s *Server) filter(w http.ResponseWriter, r *http.Request) {
	if !s.checkApp(w, r) {
		return
	}
	var body struct {
		Filters map[records.FieldID]string `json:"filters"`
		Limit   int                        `json:"limit"`
		Offset  int                        `json:"offset"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_value", err.Error())
		return
	}

	var matched []records.Remote
	for _, rec := range s.Store.All() {
		if containsAll(rec, body.Filters) {
			matched = append(matched, rec)
		}
	}
	total := len(matched)
	if body.Offset < len(matched) {
		matched = matched[body.Offset:]
	} else {
		matched = nil
	}
	if body.Limit > 0 && len(matched) > body.Limit {
		matched = matched[:body.Limit]
	}

	items := make([]map[string]any, len(matched))
	for i, rec := range matched {
		items[i] = toItem(rec)
	}
	writeJSON(w, map[string]any{"total": s.Store.Len(), "filtered": total, "items": items})
}

func (s *Server) update(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Fields map[records.FieldID]any `json:"fields"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_value", err.Error())
		return
	}
	rec, err := s.Store.Update(r.Context(), records.ID(r.PathValue("id")), records.Payload(body.Fields))
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}
	writeJSON(w, map[string]any{"revision": rec.Revision})
}

func (s *Server) delete(w http.ResponseWriter, r *http.Request) {
	if err := s.Store.Delete(r.Context(), records.ID(r.PathValue("id"))); err != nil {
		writeError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func containsAll(rec records.Remote, filters map[records.FieldID]string) bool {
	for field, want := range filters {
		if !strings.Contains(strings.ToLower(rec.Text(field)), strings.ToLower(want)) {
			return false
		}
	}
	return true
}

func toItem(rec records.Remote) map[string]any {
	fields := make([]map[string]any, 0, len(rec.Fields))
	for id, values := range rec.Fields {
		wrapped := make([]any, len(values))
		for i, v := range values {
			if m, ok := v.(map[string]any); ok {
				wrapped[i] = m
			} else {
				wrapped[i] = map[string]any{"value": v}
			}
		}
		fields = append(fields, map[string]any{"field_id": int64(id), "values": wrapped})
	}
	return map[string]any{
		"item_id":    mustInt(rec.ID),
		"created_on": rec.CreatedOn.UTC().Format("2006-01-02 15:04:05"),
		"revision":   rec.Revision,
		"fields":     fields,
	}
}

func mustInt(id records.ID) int64 {
	n, err := strconv.ParseInt(id.String(), 10, 64)
	if err != nil {
		panic(fmt.Sprintf("podiotest: non-numeric record id %q", id))
	}
	return n
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, desc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code, "error_description": desc})
}
