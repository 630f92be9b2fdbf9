package fetcher

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testLoc struct {
	Loc string `xml:"loc"`
}

func TestEachXML_Sitemap(t *testing.T) {
	input := `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>https://example.fr/a</loc></url>
  <url><loc>https://example.fr/b</loc></url>
</urlset>`

	var locs []string
	err := EachXML[testLoc](context.Background(), strings.NewReader(input), "url", func(l testLoc) error {
		locs = append(locs, l.Loc)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.fr/a", "https://example.fr/b"}, locs)
}

func TestEachXML_Latin1(t *testing.T) {
	input := "<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?><r><url><loc>caf\xe9</loc></url></r>"

	var got string
	err := EachXML[testLoc](context.Background(), strings.NewReader(input), "url", func(l testLoc) error {
		got = l.Loc
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "café", got)
}

func TestEachXML_StopsOnCallbackError(t *testing.T) {
	input := `<r><url><loc>a</loc></url><url><loc>b</loc></url></r>`
	stop := errors.New("stop")

	n := 0
	err := EachXML[testLoc](context.Background(), strings.NewReader(input), "url", func(testLoc) error {
		n++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, n)
}

func TestEachXML_Malformed(t *testing.T) {
	err := EachXML[testLoc](context.Background(), strings.NewReader(`<r><url><loc>a</url>`), "url", func(testLoc) error { return nil })
	assert.Error(t, err)
}

func TestEachXML_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := EachXML[testLoc](ctx, strings.NewReader(`<r/>`), "url", func(testLoc) error { return nil })
	assert.Error(t, err)
}
