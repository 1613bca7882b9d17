package env

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"buzzy/internal/schema"
)

func TestMigrateFromEmptyToVersionOne(t *testing.T) {
	dir := t.TempDir()
	asker := &ScriptedAsker{Answers: map[string]string{
		"recipe_database": filepath.Join(dir, "recipes"),
		"build_dir":       filepath.Join(dir, "build"),
	}}
	s := NewStore(dir, asker)

	rec, err := s.UpdateTo(1)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"build_dir", "recipe_database"}, asker.Asked)
	assert.Equal(t, 1, rec.Version)

	data, err := os.ReadFile(s.Path)
	require.NoError(t, err)
	doc, err := schema.Parse(data)
	require.NoError(t, err)
	assert.Equal(t, "1", doc.Get("version").Value)
	assert.Equal(t, filepath.Join(dir, "build"), doc.Get("build_dir").Value)

	_, err = s.Load(true)
	require.Error(t, err)
	assert.Equal(t, `environment is out of date; run "buzzy configure"`, err.Error())

	loaded, err := s.Load(false)
	require.NoError(t, err)
	assert.Equal(t, rec, loaded)
}

func TestUpdateAsksOnlyForNewFields(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(
		"version: 1\nrecipe_database: /srv/recipes\nbuild_dir: /srv/build\n"), 0o644))

	asker := &ScriptedAsker{Answers: map[string]string{
		"name":  "Pat Doe",
		"email": "pat@example.org",
	}}
	s := NewStore(dir, asker)
	rec, err := s.Update()
	require.NoError(t, err)

	assert.Equal(t, []string{"repo_dir", "repo_name", "name", "email", "mirror_endpoint", "mirror_bucket"}, asker.Asked)
	assert.Equal(t, Latest, rec.Version)
	assert.Equal(t, "/srv/recipes", rec.RecipeDatabase)
	assert.Equal(t, filepath.Join(dir, "repo"), rec.RepoDir)
	assert.Equal(t, "buzzy", rec.RepoName)
	assert.Equal(t, "Pat Doe <pat@example.org>", rec.Packager())
	assert.False(t, rec.MirrorEnabled())

	loaded, err := s.Load(true)
	require.NoError(t, err)
	assert.Equal(t, rec, loaded)
}

func TestUpdateAtLatestAsksNothing(t *testing.T) {
	dir := t.TempDir()
	first := &ScriptedAsker{Answers: map[string]string{"name": "Pat", "email": "pat@example.org"}}
	_, err := NewStore(dir, first).Update()
	require.NoError(t, err)

	again := &ScriptedAsker{}
	_, err = NewStore(dir, again).Update()
	require.NoError(t, err)
	assert.Empty(t, again.Asked)
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, NoninteractiveAsker{})

	_, err := s.Load(true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not configured")

	require.NoError(t, os.WriteFile(s.Path, []byte("version: 2\nrecipe_database: /r\nbuild_dir: /b\n"), 0o644))
	_, err = s.Load(false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected repo_dir in environment (version 2)")

	require.NoError(t, os.WriteFile(s.Path, []byte("version: 9\n"), 0o644))
	_, err = s.Load(false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown environment version 9")
}

func TestNoninteractiveAskerNeedsDefaults(t *testing.T) {
	_, err := NewStore(t.TempDir(), NoninteractiveAsker{}).Update()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "name has no default")
}

func TestTerminalAskerLineMode(t *testing.T) {
	var out bytes.Buffer
	a := &TerminalAsker{In: strings.NewReader("\nnot-an-email\npat@example.org\n\n"), Out: &out}

	email, err := a.Ask(Question{Key: "email", Prompt: "Packager email", Check: checkEmail})
	require.NoError(t, err)
	assert.Equal(t, "pat@example.org", email)
	assert.Equal(t, 3, strings.Count(out.String(), "Packager email: "))
	assert.Contains(t, out.String(), "Invalid input")

	out.Reset()
	name, err := a.Ask(Question{Key: "repo_name", Prompt: "Repository", Default: "buzzy", HasDefault: true, Check: checkIdentifier})
	require.NoError(t, err)
	assert.Equal(t, "buzzy", name)
	assert.Equal(t, "Repository [buzzy]: ", out.String())

	_, err = a.Ask(Question{Key: "name", Prompt: "Packager name"})
	assert.Error(t, err)
}

func TestCheckPathExpandsHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	p, err := checkPath("~/recipes")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "recipes"), p)

	_, err = checkPath("  ")
	assert.Error(t, err)
}
