package session

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDir(t *testing.T) {
	t.Setenv(BaseDirEnv, "")
	home, _ := os.UserHomeDir()
	got := Dir("main")
	want := filepath.Join(home, ".inbox", "sessions", "main")
	if got != want {
		t.Errorf("Dir(main) = %q, want %q", got, want)
	}
}

func TestBaseDirOverride(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv(BaseDirEnv, tmp)
	if got := Dir("x"); got != filepath.Join(tmp, "sessions", "x") {
		t.Errorf("Dir(x) = %q", got)
	}
}

func TestSocketPath(t *testing.T) {
	got := SocketPath("test")
	if !strings.HasSuffix(got, filepath.Join("sessions", "test", "daemon.sock")) {
		t.Errorf("SocketPath(test) = %q, want suffix sessions/test/daemon.sock", got)
	}
}

func TestLogPath(t *testing.T) {
	got := LogPath("test", "inboxd")
	if !strings.HasSuffix(got, filepath.Join("sessions", "test", "logs", "inboxd.log")) {
		t.Errorf("LogPath = %q", got)
	}
}

func TestEnsureDir(t *testing.T) {
	t.Setenv(BaseDirEnv, t.TempDir())

	if err := EnsureDir("test"); err != nil {
		t.Fatal(err)
	}
	for _, d := range []string{Dir("test"), LogDir("test"), DownloadDir("test")} {
		info, err := os.Stat(d)
		if err != nil {
			t.Fatalf("%s not created: %v", d, err)
		}
		if !info.IsDir() {
			t.Errorf("%s is not a directory", d)
		}
		if perm := info.Mode().Perm(); perm != 0700 {
			t.Errorf("%s permission = %o, want 0700", d, perm)
		}
	}
}

func TestLoadConfigSessionDefaults(t *testing.T) {
	t.Setenv(BaseDirEnv, t.TempDir())

	cfg, err := LoadConfig("work")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.TokenFile != TokenPath("work") {
		t.Errorf("TokenFile = %q, want %q", cfg.TokenFile, TokenPath("work"))
	}
	if cfg.DownloadDir != DownloadDir("work") {
		t.Errorf("DownloadDir = %q", cfg.DownloadDir)
	}
}

func TestResolvePrecedence(t *testing.T) {
	t.Setenv(BaseDirEnv, t.TempDir())
	if got := Resolve("flag"); got != "flag" {
		t.Errorf("Resolve(flag) = %q", got)
	}
	if got := Resolve(""); got != DefaultSessionName {
		t.Errorf("Resolve(\"\") = %q, want %q", got, DefaultSessionName)
	}
}
