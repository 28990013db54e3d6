package amocrm

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/AzielCF/wa-amo-bridge/domains/crm"
	"github.com/AzielCF/wa-amo-bridge/infrastructure/secretstore"
)

type storedNote struct {
	path     string
	entityID int64
	text     string
}

// fakeAmo emulates the parts of the CRM API the client uses.
type fakeAmo struct {
	t   *testing.T
	srv *httptest.Server

	mu            sync.Mutex
	validToken    string
	nextAccess    string
	nextRefresh   string
	refreshStatus int
	rejectAll     bool
	nextID        int64
	contacts      []contactDTO
	leads         []leadDTO
	notes         []storedNote
	refreshCalls  int
	grants        []tokenRequest
	apiCalls      map[string]int
	failPaths     map[string]int
}

func newFakeAmo(t *testing.T) *fakeAmo {
	f := &fakeAmo{
		t:             t,
		validToken:    "valid-access",
		nextAccess:    "valid-access",
		nextRefresh:   "refresh-2",
		refreshStatus: http.StatusOK,
		nextID:        1000,
		apiCalls:      map[string]int{},
		failPaths:     map[string]int{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/access_token", f.handleToken)
	mux.HandleFunc("/api/v4/", f.handleAPI)
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeAmo) client(pair crm.TokenPair) (*Client, *secretstore.Memory) {
	secrets := secretstore.NewMemory(nil)
	store := NewTokenStore(secrets, pair)
	c := NewClient(Config{
		BaseURL:      f.srv.URL + "/api/v4",
		TokenURL:     f.srv.URL + "/oauth2/access_token",
		AuthURL:      "https://www.amocrm.ru/oauth",
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURI:  "http://localhost:3001/api/amo/callback",
	}, store)
	return c, secrets
}

func (f *fakeAmo) handleToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.grants = append(f.grants, req)
	if req.GrantType == grantRefreshToken {
		f.refreshCalls++
	}
	if f.refreshStatus != http.StatusOK {
		w.WriteHeader(f.refreshStatus)
		_, _ = w.Write([]byte(`{"title":"Bad Request","hint":"Token has been revoked"}`))
		return
	}
	f.validToken = f.nextAccess
	resp := map[string]any{"token_type": "Bearer", "expires_in": 86400, "access_token": f.nextAccess}
	if f.nextRefresh != "" {
		resp["refresh_token"] = f.nextRefresh
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func (f *fakeAmo) handleAPI(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v4")
	key := r.Method + " " + path

	f.mu.Lock()
	defer f.mu.Unlock()
	f.apiCalls[key]++

	if f.rejectAll || r.Header.Get("Authorization") != "Bearer "+f.validToken {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"title":"Unauthorized","status":401}`))
		return
	}
	if status, ok := f.failPaths[key]; ok {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"title":"Server Error","detail":"boom"}`))
		return
	}

	switch {
	case key == "GET /contacts":
		q := r.URL.Query().Get("query")
		for _, c := range f.contacts {
			if strings.Contains(c.CustomFieldsValues[0].Values[0].Value.(string), q) {
				f.writeList(w, "contacts", []contactDTO{c})
				return
			}
		}
		w.WriteHeader(http.StatusNoContent)
	case key == "POST /contacts":
		var in []contactDTO
		_ = json.NewDecoder(r.Body).Decode(&in)
		f.nextID++
		in[0].ID = f.nextID
		f.contacts = append(f.contacts, in[0])
		f.writeList(w, "contacts", []map[string]any{{"id": in[0].ID, "request_id": "0"}})
	case key == "GET /leads":
		contactID, _ := strconv.ParseInt(r.URL.Query().Get("filter[contacts][0]"), 10, 64)
		var out []leadDTO
		for _, l := range f.leads {
			if l.Embedded != nil && len(l.Embedded.Contacts) > 0 && l.Embedded.Contacts[0].ID == contactID {
				out = append(out, l)
			}
		}
		if len(out) == 0 {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		f.writeList(w, "leads", out)
	case key == "POST /leads":
		var in []leadDTO
		_ = json.NewDecoder(r.Body).Decode(&in)
		f.nextID++
		in[0].ID = f.nextID
		f.leads = append(f.leads, in[0])
		f.writeList(w, "leads", []map[string]any{{"id": in[0].ID, "request_id": "0"}})
	case key == "POST /leads/notes" || key == "POST /contacts/notes":
		var in []noteDTO
		_ = json.NewDecoder(r.Body).Decode(&in)
		f.nextID++
		f.notes = append(f.notes, storedNote{path: path, entityID: in[0].EntityID, text: in[0].Params.Text})
		f.writeList(w, "notes", []map[string]any{{"id": f.nextID, "entity_id": in[0].EntityID}})
	case key == "GET /account":
		_ = json.NewEncoder(w).Encode(map[string]any{"id": 1, "name": "Acme", "subdomain": "acme"})
	case key == "GET /users":
		f.writeList(w, "users", []map[string]any{{"id": 1, "name": "Manager", "email": "m@acme.test"}})
	case key == "GET /leads/pipelines":
		f.writeList(w, "pipelines", []map[string]any{{
			"id": 10, "name": "Sales", "is_main": true,
			"_embedded": map[string]any{"statuses": []map[string]any{{"id": 11, "name": "New", "sort": 10}}},
		}})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeAmo) writeList(w http.ResponseWriter, name string, items any) {
	w.Header().Set("Content-Type", "application/hal+json")
	_ = json.NewEncoder(w).Encode(map[string]any{"_embedded": map[string]any{name: items}})
}

func (f *fakeAmo) calls(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.apiCalls[key]
}

func (f *fakeAmo) refreshes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshCalls
}
