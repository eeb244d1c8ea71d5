package loader

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetch_HTMLPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<html><head><title>Beefalo</title><script>track()</script></head>
<body><h2>Diet</h2><p>Beefalo eat <b>grass</b>.</p></body></html>`))
	}))
	defer srv.Close()

	records, err := NewFetcher().Fetch(context.Background(), srv.URL+"/wiki/Beefalo")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Contains(t, records[0].Text, "## Diet")
	assert.Contains(t, records[0].Text, "**grass**")
	assert.NotContains(t, records[0].Text, "track()")
	assert.Equal(t, "Beefalo", records[0].Metadata["title"])
	assert.Equal(t, srv.URL+"/wiki/Beefalo", records[0].Metadata["source"])
}

func TestFetch_PlainText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("Spiders sleep during the day."))
	}))
	defer srv.Close()

	records, err := NewFetcher().Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Spiders sleep during the day.", records[0].Text)
}

func TestFetch_Errors(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := NewFetcher().Fetch(context.Background(), srv.URL+"/missing")
	assert.ErrorContains(t, err, "404")

	_, err = NewFetcher().Fetch(context.Background(), "ftp://example.com/file")
	assert.Error(t, err)

	assert.True(t, IsURL("https://dontstarve.wiki.gg/wiki/Wilson"))
	assert.False(t, IsURL("data/wiki.md"))
}
