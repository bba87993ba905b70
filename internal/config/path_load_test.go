package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolvePathPrecedence(t *testing.T) {
	explicit := "/tmp/custom.jsonc"
	resolved, err := ResolvePath(explicit)
	require.NoError(t, err)
	require.Equal(t, explicit, resolved)

	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	resolved, err = ResolvePath("")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(xdg, "olivia", "config.jsonc"), resolved)

	t.Setenv("XDG_CONFIG_HOME", "")
	home := t.TempDir()
	t.Setenv("HOME", home)
	resolved, err = ResolvePath("")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, ".config", "olivia", "config.jsonc"), resolved)
}

func TestLoadMissingConfigUsesDefaultsWithWarning(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.jsonc")

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, path, loaded.Path)
	require.False(t, loaded.Exists)
	require.Equal(t, Default(), loaded.Config)
	require.NotEmpty(t, loaded.Warnings)
	require.Contains(t, loaded.Warnings[0].Message, "not found")
}

func TestLoadExistingJSONCParsesAndValidates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.jsonc")
	contents := `
{
  "audio": {
    "input": "default",
    "fallback": "default",
    "frame_ms": 30,
  },
  "metrics": {"listen": "127.0.0.1:9464"},
}
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.True(t, loaded.Exists)
	require.Equal(t, path, loaded.Path)
	require.Equal(t, 30, loaded.Config.Audio.FrameMS)
	require.Equal(t, "127.0.0.1:9464", loaded.Config.Metrics.Listen)
}

func TestLoadParseErrorIncludesPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.jsonc")
	require.NoError(t, os.WriteFile(path, []byte("{ not-json }"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "parse config")
	require.Contains(t, err.Error(), path)
}

func TestLoadResolvesFilePaths(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.jsonc")
	contents := `{
  "env_file": ".env",
  "persona_file": "~/persona.yaml",
  "session_log": {"path": "/var/tmp/../tmp/olivia.jsonl"},
}`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, ".env"), loaded.Config.EnvFile)
	require.Equal(t, filepath.Join(home, "persona.yaml"), loaded.Config.PersonaFile)
	require.Equal(t, "/var/tmp/olivia.jsonl", loaded.Config.SessionLog.Path)
}

func TestResolveFilePath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "empty", in: "  ", want: ""},
		{name: "home", in: "~", want: home},
		{name: "under home", in: "~/olivia/.env", want: filepath.Join(home, "olivia", ".env")},
		{name: "absolute", in: "/etc/olivia//persona.yaml", want: "/etc/olivia/persona.yaml"},
		{name: "relative", in: "secrets/.env", want: filepath.Join("/cfg", "secrets", ".env")},
		{name: "other user", in: "~bob/.env", want: filepath.Join("/cfg", "~bob", ".env")},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := resolveFilePath(tc.in, "/cfg")
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}
