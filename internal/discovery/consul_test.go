package discovery

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeAgent struct {
	mu           sync.Mutex
	registered   map[string]any
	deregistered []string
}

func (f *fakeAgent) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("X-Consul-Index", "1")
	w.Header().Set("X-Consul-LastContact", "0")
	w.Header().Set("X-Consul-KnownLeader", "true")
	switch {
	case r.URL.Path == "/v1/agent/service/register":
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &f.registered)
	case strings.HasPrefix(r.URL.Path, "/v1/agent/service/deregister/"):
		f.deregistered = append(f.deregistered, strings.TrimPrefix(r.URL.Path, "/v1/agent/service/deregister/"))
	case r.URL.Path == "/v1/health/service/user-service":
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"Node":{"Address":"10.0.0.9"},"Service":{"ID":"u1","Service":"user-service","Address":"","Port":3001}}]`))
	case r.URL.Path == "/v1/health/service/ghost":
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[]`))
	default:
		http.NotFound(w, r)
	}
}

func newConsul(t *testing.T) (*Consul, *fakeAgent) {
	t.Helper()
	agent := &fakeAgent{}
	srv := httptest.NewServer(agent)
	t.Cleanup(srv.Close)

	c, err := NewConsul(strings.TrimPrefix(srv.URL, "http://"), zap.NewNop())
	require.NoError(t, err)
	return c, agent
}

func TestRegisterAndDeregister(t *testing.T) {
	c, agent := newConsul(t)

	id, err := c.Register(Registration{Name: "story-service", Address: "10.0.0.5:3004"})
	require.NoError(t, err)
	assert.Equal(t, "story-service-10.0.0.5-3004", id)
	agent.mu.Lock()
	assert.Equal(t, "story-service-10.0.0.5-3004", agent.registered["ID"])
	assert.EqualValues(t, 3004, agent.registered["Port"])
	check, _ := agent.registered["Check"].(map[string]any)
	assert.Equal(t, "http://10.0.0.5:3004/healthz", check["HTTP"])
	agent.mu.Unlock()

	require.NoError(t, c.Deregister("story-service-10.0.0.5-3004"))
	assert.Equal(t, []string{"story-service-10.0.0.5-3004"}, agent.deregistered)
}

func TestLookup(t *testing.T) {
	c, _ := newConsul(t)

	u, err := c.Lookup("user-service")
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.9:3001", u)

	_, err = c.Lookup("ghost")
	assert.Error(t, err)
}
