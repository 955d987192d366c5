package bridge

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SevenOfNine-ai/redditgw/internal/config"
)

func TestBuildChildEnvAllowlist(t *testing.T) {
	env := BuildChildEnv(map[string]string{
		"PATH":                   "/usr/bin",
		"HOME":                   "/home/bot",
		"LC_ALL":                 "C.UTF-8",
		"https_proxy":            "http://proxy:3128",
		"NODE_EXTRA_CA_CERTS":    "/etc/ca.pem",
		"AWS_SECRET_ACCESS_KEY":  "nope",
		"REDDIT_PASSWORD":        "nope",
		"REDDITGW_WRITE_ENABLED": "true",
	})

	assert.Equal(t, map[string]string{
		"PATH":                "/usr/bin",
		"HOME":                "/home/bot",
		"LC_ALL":              "C.UTF-8",
		"https_proxy":         "http://proxy:3128",
		"NODE_EXTRA_CA_CERTS": "/etc/ca.pem",
	}, env)
}

func loadConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load(config.NewViper())
	require.NoError(t, err)
	return cfg
}

func TestBuildLaunchSpec(t *testing.T) {
	cfg := loadConfig(t)
	cfg.Command = "/opt/reddit-mcp"
	cfg.Args = []string{"--stdio"}

	creds := config.RedditEnv{ClientID: "id", ClientSecret: "secret"}
	base := map[string]string{"PATH": "/usr/bin", "REDDIT_PASSWORD": "leaked"}

	spec, err := BuildLaunchSpec(cfg, creds, base, nil)
	require.NoError(t, err)

	assert.Equal(t, "/opt/reddit-mcp", spec.Command)
	assert.Equal(t, []string{"--stdio"}, spec.Args)
	assert.Equal(t, "<override>", spec.PackageDir)
	assert.Equal(t, map[string]string{
		"PATH":                 "/usr/bin",
		"REDDIT_AUTH_MODE":     "auto",
		"REDDIT_SAFE_MODE":     "off",
		"REDDIT_CLIENT_ID":     "id",
		"REDDIT_CLIENT_SECRET": "secret",
	}, spec.Env)
	assert.Equal(t, []string{"PATH", "REDDIT_AUTH_MODE", "REDDIT_CLIENT_ID", "REDDIT_CLIENT_SECRET", "REDDIT_SAFE_MODE"}, spec.EnvKeys())

	cfg.Write.Enabled = true
	spec, err = BuildLaunchSpec(cfg, creds, base, nil)
	require.NoError(t, err)
	assert.Equal(t, "strict", spec.Env["REDDIT_SAFE_MODE"])
}

func TestBuildLaunchSpecResolverError(t *testing.T) {
	cfg := loadConfig(t)
	missing := errors.New("not installed")

	_, err := BuildLaunchSpec(cfg, config.RedditEnv{}, nil, func(string, []string) (LaunchSpec, error) {
		return LaunchSpec{}, missing
	})
	assert.ErrorIs(t, err, missing)
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))
}

func TestResolveLaunch(t *testing.T) {
	t.Run("override", func(t *testing.T) {
		args := []string{"a"}
		spec, err := ResolveLaunch("custom", args, "", "")
		require.NoError(t, err)
		args[0] = "mutated"
		assert.Equal(t, "custom", spec.Command)
		assert.Equal(t, []string{"a"}, spec.Args)
	})

	t.Run("built entrypoint", func(t *testing.T) {
		root := t.TempDir()
		pkg := filepath.Join(root, "node_modules", UpstreamPackage)
		writeFile(t, filepath.Join(pkg, "package.json"))
		writeFile(t, filepath.Join(pkg, "dist", "bin.js"))
		writeFile(t, filepath.Join(pkg, "src", "index.ts"))

		nested := filepath.Join(root, "a", "b")
		require.NoError(t, os.MkdirAll(nested, 0o755))

		spec, err := ResolveLaunch("", nil, nested, "/usr/bin/node")
		require.NoError(t, err)
		assert.Equal(t, "/usr/bin/node", spec.Command)
		assert.Equal(t, []string{filepath.Join(pkg, "dist", "bin.js")}, spec.Args)
		assert.Equal(t, pkg, spec.PackageDir)
	})

	t.Run("typescript source", func(t *testing.T) {
		root := t.TempDir()
		pkg := filepath.Join(root, "node_modules", UpstreamPackage)
		writeFile(t, filepath.Join(pkg, "package.json"))
		writeFile(t, filepath.Join(pkg, "src", "index.ts"))

		spec, err := ResolveLaunch("", nil, root, "")
		require.NoError(t, err)
		assert.Equal(t, "node", spec.Command)
		assert.Equal(t, []string{"--import", "tsx", filepath.Join(pkg, "src", "index.ts")}, spec.Args)
	})

	t.Run("no entrypoint", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, filepath.Join(root, "node_modules", UpstreamPackage, "package.json"))

		_, err := ResolveLaunch("", nil, root, "node")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "entrypoint not found")
	})
}

func TestDefaultResolver(t *testing.T) {
	installed := func(t *testing.T) (root, pkg string) {
		t.Helper()
		root = t.TempDir()
		pkg = filepath.Join(root, "node_modules", UpstreamPackage)
		writeFile(t, filepath.Join(pkg, "package.json"))
		writeFile(t, filepath.Join(pkg, "dist", "bin.js"))
		return root, pkg
	}

	t.Run("WorkDirFirst", func(t *testing.T) {
		root, pkg := installed(t)
		other, _ := installed(t)

		spec, err := DefaultResolver(SearchPaths{WorkDir: root, ExecDir: other})("", nil)
		require.NoError(t, err)
		assert.Equal(t, pkg, spec.PackageDir)
		assert.Equal(t, "node", spec.Command)
	})

	t.Run("FallsBackToExecDir", func(t *testing.T) {
		root, pkg := installed(t)

		spec, err := DefaultResolver(SearchPaths{WorkDir: t.TempDir(), ExecDir: filepath.Join(root, "bin")})("", nil)
		require.NoError(t, err)
		assert.Equal(t, pkg, spec.PackageDir)
	})

	t.Run("NodeFromPath", func(t *testing.T) {
		root, _ := installed(t)
		bin := t.TempDir()
		writeFile(t, filepath.Join(bin, "node"))

		spec, err := DefaultResolver(SearchPaths{WorkDir: root, PATH: t.TempDir() + string(filepath.ListSeparator) + bin})("", nil)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(bin, "node"), spec.Command)
	})

	t.Run("NoDirectories", func(t *testing.T) {
		_, err := DefaultResolver(SearchPaths{})("", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no search directories")
	})

	t.Run("NotInstalled", func(t *testing.T) {
		dir := t.TempDir()
		_, err := DefaultResolver(SearchPaths{WorkDir: dir})("", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unable to resolve package directory")
	})

	t.Run("OverrideSkipsSearch", func(t *testing.T) {
		spec, err := DefaultResolver(SearchPaths{})("/opt/server", []string{"--stdio"})
		require.NoError(t, err)
		assert.Equal(t, "/opt/server", spec.Command)
		assert.Equal(t, []string{"--stdio"}, spec.Args)
	})
}

func TestFindInstalledPackageDirMissing(t *testing.T) {
	dir := t.TempDir()
	_, err := FindInstalledPackageDir("does-not-exist", dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unable to resolve package directory for 'does-not-exist'")
}
