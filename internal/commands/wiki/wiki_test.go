package wiki

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"spectreon/internal/registry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cannedClient struct {
	calls   int
	results []Result
	err     error
}

func (c *cannedClient) Search(_ context.Context, _ string) ([]Result, error) {
	c.calls++
	return c.results, c.err
}

func newEnv(t *testing.T, client Client) (*Feature, *[]string) {
	t.Helper()
	f := New(registry.New(nil), client)
	lines := &[]string{}
	f.say = func(_, text string) { *lines = append(*lines, text) }
	return f, lines
}

func msg(rest string) *registry.MessageContext {
	return &registry.MessageContext{
		Actor: registry.ActorContext{GuildID: "g1", ChannelID: "c1", UserID: "u1"},
		Rest:  rest,
		Cmd:   "!wiki",
	}
}

func TestParseOpensearch(t *testing.T) {
	body := []byte(`["delta",["Delta Bulbasaur","Delta Pokémon"],["",""],["https://w/Delta_Bulbasaur","https://w/Delta_Pok%C3%A9mon"]]`)
	results, err := parseOpensearch(body)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "Delta Bulbasaur", results[0].Title)
	assert.Equal(t, "https://w/Delta_Bulbasaur", results[0].URL)
}

func TestParseOpensearchRejectsMalformed(t *testing.T) {
	_, err := parseOpensearch([]byte(`{"not":"an array"}`))
	assert.Error(t, err)

	_, err = parseOpensearch([]byte(`["q",["a"]]`))
	assert.Error(t, err)
}

func TestLookupCachesResults(t *testing.T) {
	client := &cannedClient{results: []Result{{Title: "Delta Bulbasaur", URL: "https://w/db"}}}
	f, lines := newEnv(t, client)

	require.NoError(t, f.handle(msg("delta bulbasaur")))
	require.NoError(t, f.handle(msg("Delta Bulbasaur")))
	assert.Equal(t, 1, client.calls, "case-folded repeat should hit the cache")
	assert.Contains(t, (*lines)[len(*lines)-1], "Delta Bulbasaur")
}

func TestEmptyResultReply(t *testing.T) {
	f, lines := newEnv(t, &cannedClient{})

	require.NoError(t, f.handle(msg("garbage")))
	assert.Contains(t, (*lines)[len(*lines)-1], "nothing for")
}

func TestEmptyQueryUsage(t *testing.T) {
	f, lines := newEnv(t, &cannedClient{})

	require.NoError(t, f.handle(msg("")))
	assert.Contains(t, (*lines)[len(*lines)-1], "look up")
}

func TestHTTPClientAgainstTestServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "opensearch", r.URL.Query().Get("action"))
		assert.Equal(t, "Tesseract", r.URL.Query().Get("search"))
		_, _ = w.Write([]byte(`["Tesseract",["Tesseract"],[""],["https://w/Tesseract"]]`))
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL)
	results, err := client.Search(context.Background(), "Tesseract")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "https://w/Tesseract", results[0].URL)
}

func TestHTTPClientSurfacesBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewHTTPClient(srv.URL).Search(context.Background(), "x")
	assert.ErrorContains(t, err, "status 502")
}
