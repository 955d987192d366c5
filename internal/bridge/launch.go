package bridge

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/SevenOfNine-ai/redditgw/internal/config"
)

// UpstreamPackage is the npm package that provides the Reddit MCP server.
const UpstreamPackage = "reddit-mcp-server"

// LaunchSpec is the fully resolved child process invocation.
type LaunchSpec struct {
	Command string
	Args    []string
	Env     map[string]string
	// PackageDir is where the upstream package was found, or "<override>".
	PackageDir string
}

// EnvKeys returns the sorted environment keys, for logging without values.
func (s LaunchSpec) EnvKeys() []string {
	keys := make([]string, 0, len(s.Env))
	for key := range s.Env {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}

var childEnvAllowExact = map[string]struct{}{
	"PATH": {}, "HOME": {}, "USER": {}, "SHELL": {},
	"TMPDIR": {}, "TEMP": {}, "TMP": {},
	"LANG": {}, "TERM": {}, "TZ": {},
	"SYSTEMROOT": {}, "COMSPEC": {}, "PATHEXT": {}, "WINDIR": {},
	"HTTP_PROXY": {}, "HTTPS_PROXY": {}, "NO_PROXY": {}, "ALL_PROXY": {},
	"http_proxy": {}, "https_proxy": {}, "no_proxy": {}, "all_proxy": {},
	"NODE_EXTRA_CA_CERTS": {}, "SSL_CERT_FILE": {}, "SSL_CERT_DIR": {}, "OPENSSL_CONF": {},
}

var childEnvAllowPrefixes = []string{"LC_"}

// BuildChildEnv copies only allowlisted keys from base.
func BuildChildEnv(base map[string]string) map[string]string {
	env := make(map[string]string)
	for key, value := range base {
		if _, ok := childEnvAllowExact[key]; ok {
			env[key] = value
			continue
		}
		for _, prefix := range childEnvAllowPrefixes {
			if strings.HasPrefix(key, prefix) {
				env[key] = value
				break
			}
		}
	}
	return env
}

// Resolver locates the upstream executable.
type Resolver func(commandOverride string, args []string) (LaunchSpec, error)

// BuildLaunchSpec combines the filtered base environment, the auth and safe
// modes, the present credentials and the resolved command.
func BuildLaunchSpec(cfg *config.Config, creds config.RedditEnv, base map[string]string, resolve Resolver) (LaunchSpec, error) {
	env := BuildChildEnv(base)
	env["REDDIT_AUTH_MODE"] = cfg.Reddit.AuthMode
	env["REDDIT_SAFE_MODE"] = cfg.SafeMode()
	for key, value := range creds.Vars() {
		env[key] = value
	}

	if resolve == nil {
		resolve = DefaultResolver(SearchPaths{PATH: base["PATH"]})
	}
	launch, err := resolve(cfg.Command, cfg.Args)
	if err != nil {
		return LaunchSpec{}, err
	}
	launch.Env = env
	return launch, nil
}

// SearchPaths are where DefaultResolver looks. Empty fields are skipped.
type SearchPaths struct {
	WorkDir string
	ExecDir string
	// PATH is searched for the node binary.
	PATH string
}

func (p SearchPaths) dirs() []string {
	var dirs []string
	for _, dir := range []string{p.WorkDir, p.ExecDir} {
		if dir != "" && !slices.Contains(dirs, dir) {
			dirs = append(dirs, dir)
		}
	}
	return dirs
}

// DefaultResolver searches upward from paths.WorkDir and then from
// paths.ExecDir. The node binary is looked up on paths.PATH.
func DefaultResolver(paths SearchPaths) Resolver {
	return func(commandOverride string, args []string) (LaunchSpec, error) {
		if commandOverride != "" {
			return ResolveLaunch(commandOverride, args, "", "")
		}

		node := findNode(paths.PATH)
		var lastErr error
		for _, dir := range paths.dirs() {
			spec, err := ResolveLaunch("", nil, dir, node)
			if err == nil {
				return spec, nil
			}
			lastErr = err
		}
		if lastErr == nil {
			lastErr = errors.New("no search directories available")
		}
		return LaunchSpec{}, lastErr
	}
}

// ResolveLaunch returns the override when set. Otherwise it finds the upstream
// package above fromDir and runs its built entrypoint, or its TypeScript source
// through tsx.
func ResolveLaunch(commandOverride string, args []string, fromDir, node string) (LaunchSpec, error) {
	if commandOverride != "" {
		return LaunchSpec{
			Command:    commandOverride,
			Args:       slices.Clone(args),
			PackageDir: "<override>",
		}, nil
	}

	packageDir, err := FindInstalledPackageDir(UpstreamPackage, fromDir)
	if err != nil {
		return LaunchSpec{}, err
	}
	if node == "" {
		node = "node"
	}

	distBin := filepath.Join(packageDir, "dist", "bin.js")
	if fileExists(distBin) {
		return LaunchSpec{Command: node, Args: []string{distBin}, PackageDir: packageDir}, nil
	}

	srcIndex := filepath.Join(packageDir, "src", "index.ts")
	if fileExists(srcIndex) {
		return LaunchSpec{Command: node, Args: []string{"--import", "tsx", srcIndex}, PackageDir: packageDir}, nil
	}

	return LaunchSpec{}, fmt.Errorf("%s entrypoint not found in %s. Expected dist/bin.js or src/index.ts", UpstreamPackage, packageDir)
}

// FindInstalledPackageDir walks up from fromDir looking for
// node_modules/<pkg>/package.json.
func FindInstalledPackageDir(pkg, fromDir string) (string, error) {
	current, err := filepath.Abs(fromDir)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", fromDir, err)
	}

	for {
		candidate := filepath.Join(current, "node_modules", pkg)
		if fileExists(filepath.Join(candidate, "package.json")) {
			return candidate, nil
		}

		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}

	return "", fmt.Errorf("unable to resolve package directory for '%s' from '%s'", pkg, fromDir)
}

func findNode(path string) string {
	for _, dir := range filepath.SplitList(path) {
		if dir == "" {
			continue
		}
		for _, name := range []string{"node", "node.exe"} {
			candidate := filepath.Join(dir, name)
			if fileExists(candidate) {
				return candidate
			}
		}
	}
	return "node"
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
