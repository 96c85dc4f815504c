package internal

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestCourseConfig_PairsDefaults(t *testing.T) {
	c := CourseConfig{Folders: []FolderConfig{
		{Topic: "3"},
		{Topic: "x", Source: "/abs/x-dev", Dest: "out/x"},
	}}
	pairs := c.Pairs()
	if pairs[0].Source != filepath.Join("notebooks", "3-dev") || pairs[0].Dest != filepath.Join("notebooks", "3") {
		t.Errorf("pair 0 = %+v", pairs[0])
	}
	if pairs[1].Source != "/abs/x-dev" || pairs[1].Dest != "out/x" {
		t.Errorf("pair 1 = %+v", pairs[1])
	}
}

func TestCourseConfig_Resolve(t *testing.T) {
	c := CourseConfig{Root: "/course"}
	if got := c.Resolve("media"); got != filepath.Join("/course", "media") {
		t.Errorf("Resolve(media) = %q", got)
	}
	if got := c.Resolve("/elsewhere"); got != "/elsewhere" {
		t.Errorf("Resolve(/elsewhere) = %q", got)
	}
}

func TestCourseConfig_LockPathDefault(t *testing.T) {
	c := CourseConfig{Root: "/course", BuildImagesDir: "_build/html/_images/"}
	if got := c.LockPath(); got != filepath.Join("/course", "_build", "html", ".nbpublish.lock") {
		t.Errorf("LockPath = %q", got)
	}
	c.LockFile = "/tmp/x.lock"
	if got := c.LockPath(); got != "/tmp/x.lock" {
		t.Errorf("LockPath = %q", got)
	}
}

func TestCourseConfig_Rejects(t *testing.T) {
	cases := map[string]func(c *CourseConfig){
		"duplicate topic": func(c *CourseConfig) { c.Folders = append(c.Folders, FolderConfig{Topic: "1"}) },
		"same folder":     func(c *CourseConfig) { c.Folders = []FolderConfig{{Topic: "1", Source: "a", Dest: "a"}} },
		"shared dest": func(c *CourseConfig) {
			c.Folders = []FolderConfig{{Topic: "1", Dest: "out"}, {Topic: "2", Dest: "out"}}
		},
		"bad glob":   func(c *CourseConfig) { c.Pattern = "[" },
		"no folders": func(c *CourseConfig) { c.Folders = nil },
		"no topic":   func(c *CourseConfig) { c.Folders = []FolderConfig{{Source: "a"}} },
	}
	for name, mutate := range cases {
		cfg := NewDefaultConfig()
		mutate(&cfg.Course)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestApplicationConfig_Workers(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.App.Workers = 1000
	if err := cfg.Validate(); err == nil {
		t.Error("too many workers should fail validation")
	}
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}
