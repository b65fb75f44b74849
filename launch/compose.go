package launch

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/jugelauncher/launcher/auth"
	"github.com/jugelauncher/launcher/download"
	"github.com/jugelauncher/launcher/manifest"
)

// ErrLaunchConfig is raised by Compose before any process is spawned: an
// unrecognized argument-template placeholder, or inputs the template needs
// but the profile/account cannot supply.
var ErrLaunchConfig = errors.New("launch configuration error")

var placeholderPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// CommandLine is a fully resolved game invocation. Compose is
// deterministic: identical inputs yield an identical CommandLine.
type CommandLine struct {
	JavaPath string
	Args     []string
	WorkDir  string
}

// Compose resolves the manifest's argument template against the profile and
// account into a runnable command line.
func Compose(m *manifest.Manifest, profile *Profile, account *auth.Account, store *download.Store) (*CommandLine, error) {
	if account == nil {
		return nil, fmt.Errorf("%w: no account", ErrLaunchConfig)
	}
	gameDir := profile.GameDir
	if gameDir == "" {
		gameDir = store.BaseDir
	}
	versionDir := filepath.Join(store.BaseDir, "versions", m.ID)
	nativeDir := filepath.Join(versionDir, "natives")
	assetsDir := filepath.Join(gameDir, "assets")

	classpath := []string{store.ClientPath(m.ID)}
	for _, lib := range m.Libraries {
		classpath = append(classpath, store.LibraryPath(lib))
	}

	args := []string{
		fmt.Sprintf("-Xms%vM", profile.MinMemoryMB),
		fmt.Sprintf("-Xmx%vM", profile.MaxMemoryMB),
		"-Djava.library.path=" + nativeDir,
	}
	args = append(args, profile.extraJavaArgs()...)
	args = append(args, "-cp", strings.Join(classpath, string(os.PathListSeparator)), m.MainClass)

	assetIndex := m.Assets
	if assetIndex == "" {
		assetIndex = "legacy"
	}
	userType := "mojang"
	if account.Type == auth.AccountProvider {
		userType = "msa"
	}
	substitutions := map[string]string{
		"auth_player_name":  account.Name,
		"version_name":      m.ID,
		"game_dir":          gameDir,
		"game_directory":    gameDir,
		"assets_root":       assetsDir,
		"game_assets":       assetsDir,
		"assets_index_name": assetIndex,
		"auth_uuid":         account.UUID,
		"auth_access_token": account.AccessToken(),
		"user_type":         userType,
		"user_properties":   "{}",
		"version_type":      m.Type,
	}

	for _, templateArg := range strings.Fields(m.MinecraftArguments) {
		resolved, err := substitute(templateArg, substitutions)
		if err != nil {
			return nil, err
		}
		args = append(args, resolved)
	}
	args = append(args,
		"--width", strconv.Itoa(profile.Width),
		"--height", strconv.Itoa(profile.Height),
	)
	return &CommandLine{
		JavaPath: profile.javaPath(),
		Args:     args,
		WorkDir:  gameDir,
	}, nil
}

func substitute(templateArg string, substitutions map[string]string) (string, error) {
	var missing string
	resolved := placeholderPattern.ReplaceAllStringFunc(templateArg, func(token string) string {
		name := token[2 : len(token)-1]
		if value, ok := substitutions[name]; ok {
			return value
		}
		if missing == "" {
			missing = name
		}
		return token
	})
	if missing != "" {
		return "", fmt.Errorf("%w: unrecognized placeholder ${%v}", ErrLaunchConfig, missing)
	}
	return resolved, nil
}
