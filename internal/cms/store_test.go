package cms

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeDoc(t *testing.T, dir, lang, name, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, lang), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, lang, name+".yaml"), []byte(body), 0o644))
}

func TestStore_FallsBackToEnglish(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "en", "faq", "hero:\n  title: Questions\nquestions:\n  - question: Is it free?\n    answer: Yes.\n")
	writeDoc(t, dir, "fr", "faq", "hero:\n  title: Questions fréquentes\n")

	s := NewStore(dir)
	fr, err := s.FAQ("fr")
	require.NoError(t, err)
	require.Equal(t, "Questions fréquentes", fr.Hero.Title)

	de, err := s.FAQ("de")
	require.NoError(t, err)
	require.Equal(t, "Questions", de.Hero.Title)
	require.Len(t, de.Questions, 1)
}

func TestStore_NotFoundAndBadNames(t *testing.T) {
	s := NewStore(t.TempDir())
	var doc map[string]any
	require.ErrorIs(t, s.Load("en", "home", &doc), ErrNotFound)
	require.ErrorIs(t, s.Load("en", "../secrets", &doc), ErrNotFound)
	require.ErrorIs(t, s.Load("../..", "home", &doc), ErrNotFound)
}

func TestStore_CachesUntilPurged(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "en", "navbar", "brand:\n  name: GearConnect\n")
	s := NewStore(dir, WithCacheTTL(time.Hour))

	first, err := s.Navbar("en")
	require.NoError(t, err)
	require.Equal(t, "GearConnect", first.Brand.Name)

	writeDoc(t, dir, "en", "navbar", "brand:\n  name: Changed\n")
	cached, err := s.Navbar("en")
	require.NoError(t, err)
	require.Equal(t, "GearConnect", cached.Brand.Name)

	s.Purge()
	fresh, err := s.Navbar("en")
	require.NoError(t, err)
	require.Equal(t, "Changed", fresh.Brand.Name)
}

func TestStore_ParseError(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "en", "home", "hero: [unclosed\n")
	_, err := NewStore(dir, WithCacheTTL(0)).Home("en")
	require.Error(t, err)
	require.False(t, errors.Is(err, ErrNotFound))
}

func TestLegal_RendersSanitizedMarkdown(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "en", "privacy", `hero:
  title: Privacy
sections:
  - title: Data
    content: |
      We store **nothing** you did not send us.
      <script>alert(1)</script>
      [Contact](https://gearconnect.app/contact)
`)
	hero, sections, err := NewStore(dir).Legal("en", "privacy")
	require.NoError(t, err)
	require.Equal(t, "Privacy", hero.Title)
	require.Len(t, sections, 1)

	html := string(sections[0].HTML)
	require.Contains(t, html, "<strong>nothing</strong>")
	require.NotContains(t, html, "<script>")
	require.True(t, strings.Contains(html, `rel="nofollow`))

	_, _, err = NewStore(dir).Legal("en", "navbar")
	require.ErrorIs(t, err, ErrNotFound)
}
