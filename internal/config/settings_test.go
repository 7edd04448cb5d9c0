package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeSettings(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadAndGet(t *testing.T) {
	path := writeSettings(t, `
issues:
  customQuery: "is:open assignee:@me"
  ignoreMilestones:
    - Backlog
    - Icebox
`)
	s, err := Load(path, zap.NewNop())
	require.NoError(t, err)

	require.Equal(t, "is:open assignee:@me", s.GetString("issues", "customQuery", ""))
	require.Equal(t, []string{"Backlog", "Icebox"}, s.GetStringSlice("issues", "ignoreMilestones"))
}

func TestMissingValuesDefault(t *testing.T) {
	path := writeSettings(t, "issues: {}\n")
	s, err := Load(path, zap.NewNop())
	require.NoError(t, err)

	require.Equal(t, "fallback", s.GetString("issues", "customQuery", "fallback"))
	require.Nil(t, s.GetStringSlice("issues", "ignoreMilestones"))
	require.Equal(t, "", s.GetString("other", "key", ""))
}

func TestMissingFileIsEmpty(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), zap.NewNop())
	require.NoError(t, err)
	require.Equal(t, "", s.GetString("issues", "customQuery", ""))
}

func TestReloadFiresChangedNamespacesOnly(t *testing.T) {
	path := writeSettings(t, `
issues:
  customQuery: "old"
tracker:
  kind: github
`)
	s, err := Load(path, zap.NewNop())
	require.NoError(t, err)

	var changed []string
	sub := s.OnDidChange(func(ns string) { changed = append(changed, ns) })
	defer sub.Dispose()

	require.NoError(t, os.WriteFile(path, []byte(`
issues:
  customQuery: "new"
tracker:
  kind: github
`), 0644))
	require.NoError(t, s.Reload())

	require.Equal(t, []string{"issues"}, changed)
	require.Equal(t, "new", s.GetString("issues", "customQuery", ""))
}
