package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/shadowsync/api"
	"github.com/relabs-tech/shadowsync/shadow"
	"github.com/relabs-tech/shadowsync/shadowstore"
)

// memoryStore is an in-memory api.DocumentStore with the same merge
// semantics as the postgres-backed store.
type memoryStore struct {
	mu      sync.Mutex
	records map[string]shadowstore.Record
}

func newMemoryStore() *memoryStore {
	return &memoryStore{records: make(map[string]shadowstore.Record)}
}

func (m *memoryStore) Load(thing string) (shadowstore.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.records[thing]
	if !ok {
		return shadowstore.Record{}, shadowstore.ErrNotFound
	}
	return record, nil
}

func (m *memoryStore) Apply(thing string, request shadow.Document) (shadowstore.Record, shadow.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record := m.records[thing]
	record.Thing = thing
	record.Desired = shadowstore.MergeState(record.Desired, request.State.Desired)
	record.Reported = shadowstore.MergeState(record.Reported, request.State.Reported)
	record.Version++
	m.records[thing] = record
	return record, shadowstore.ComputeDelta(record.Desired, record.Reported), nil
}

func (m *memoryStore) Delete(thing string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[thing]; !ok {
		return shadowstore.ErrNotFound
	}
	delete(m.records, thing)
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
}

func (p *recordingPublisher) PublishMessageQ1(topic string, payload []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
}

func newTestServer(t *testing.T, builder *api.Builder) (*httptest.Server, *memoryStore) {
	t.Helper()
	store := newMemoryStore()
	router := mux.NewRouter()
	builder.Store = store
	builder.Router = router
	api.NewAPI(builder)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server, store
}

func TestShadowRoutes(t *testing.T) {
	publisher := &recordingPublisher{}
	server, store := newTestServer(t, &api.Builder{Publisher: publisher})
	client := server.Client()

	// no document yet
	res, err := client.Get(server.URL + "/things/panel/shadow")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	// desired update creates the document and pushes a delta event
	req, _ := http.NewRequest(http.MethodPut, server.URL+"/things/panel/shadow/desired",
		bytes.NewBufferString(`{"Red":1}`))
	res, err = client.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
	require.Len(t, publisher.topics, 1)
	assert.Equal(t, "things/panel/shadow/update/delta", publisher.topics[0])

	// the full document is readable
	res, err = client.Get(server.URL + "/things/panel/shadow")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var record shadowstore.Record
	require.NoError(t, json.NewDecoder(res.Body).Decode(&record))
	res.Body.Close()
	assert.Equal(t, uint64(1), record.Version)
	assert.True(t, record.Desired.Equal(shadow.State{"Red": 1}))

	// a matching report settles the delta, no event goes out
	req, _ = http.NewRequest(http.MethodPut, server.URL+"/things/panel/shadow/reported",
		bytes.NewBufferString(`{"Red":1}`))
	res, err = client.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
	assert.Len(t, publisher.topics, 1)

	// both sides are readable on their own
	res, err = client.Get(server.URL + "/things/panel/shadow/reported")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var state shadow.State
	require.NoError(t, json.NewDecoder(res.Body).Decode(&state))
	res.Body.Close()
	assert.True(t, state.Equal(shadow.State{"Red": 1}))

	// delete and verify it is gone
	req, _ = http.NewRequest(http.MethodDelete, server.URL+"/things/panel/shadow", nil)
	res, err = client.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
	_, ok := store.records["panel"]
	assert.False(t, ok)

	res, err = client.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestWriteSideRejectsInvalidBody(t *testing.T) {
	server, _ := newTestServer(t, &api.Builder{})
	client := server.Client()

	for _, body := range []string{``, `{}`, `not json`, `["Red"]`} {
		req, _ := http.NewRequest(http.MethodPut, server.URL+"/things/panel/shadow/desired",
			bytes.NewBufferString(body))
		res, err := client.Do(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, res.StatusCode, "body %q", body)
	}
}

func TestBearerMiddleware(t *testing.T) {
	secret := "test-secret"
	server, store := newTestServer(t, &api.Builder{JWTSecret: secret})
	store.records["panel"] = shadowstore.Record{Thing: "panel", Version: 1}
	client := server.Client()

	// reads stay open
	res, err := client.Get(server.URL + "/things/panel/shadow")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	// mutation without token
	req, _ := http.NewRequest(http.MethodPut, server.URL+"/things/panel/shadow/desired",
		bytes.NewBufferString(`{"Red":1}`))
	res, err = client.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	// mutation with a token signed with the wrong secret
	req, _ = http.NewRequest(http.MethodPut, server.URL+"/things/panel/shadow/desired",
		bytes.NewBufferString(`{"Red":1}`))
	req.Header.Set("Authorization", "Bearer "+signToken(t, "wrong-secret"))
	res, err = client.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	// mutation with a valid token
	req, _ = http.NewRequest(http.MethodPut, server.URL+"/things/panel/shadow/desired",
		bytes.NewBufferString(`{"Red":1}`))
	req.Header.Set("Authorization", "Bearer "+signToken(t, secret))
	res, err = client.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, res.StatusCode)

	// delete requires the token as well
	req, _ = http.NewRequest(http.MethodDelete, server.URL+"/things/panel/shadow", nil)
	res, err = client.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	req, _ = http.NewRequest(http.MethodDelete, server.URL+"/things/panel/shadow", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, secret))
	res, err = client.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
}

func signToken(t *testing.T, secret string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "tester",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}
