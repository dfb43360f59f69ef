package session

import "github.com/matheus3301/inbox/internal/config"

const DefaultSessionName = "main"

// Resolve determines the active session name using precedence:
// 1. flagOverride (--session flag)
// 2. config.toml default_session
// 3. "main"
func Resolve(flagOverride string) string {
	if flagOverride != "" {
		return flagOverride
	}
	cfg, err := config.Load(ConfigPath())
	if err == nil && cfg.DefaultSession != "" {
		return cfg.DefaultSession
	}
	return DefaultSessionName
}

// LoadConfig reads the global config and fills session-scoped defaults
// (token file, download dir) for name.
func LoadConfig(name string) (*config.Config, error) {
	cfg, err := config.LoadOrDefault(ConfigPath())
	if err != nil {
		return nil, err
	}
	if cfg.TokenFile == "" {
		cfg.TokenFile = TokenPath(name)
	}
	if cfg.DownloadDir == "" {
		cfg.DownloadDir = DownloadDir(name)
	}
	return cfg, nil
}
