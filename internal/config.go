package internal

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/nbpublish/internal/models"
	"github.com/starford/nbpublish/internal/sanitize"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App    ApplicationConfig `yaml:"app"`
	Course CourseConfig      `yaml:"course"`
	Rules  sanitize.Rules    `yaml:"rules"`
	SQLite SQLiteConfig      `yaml:"sqlite"`
	Auth   AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Course.Validate(); err != nil {
		return fmt.Errorf("course: %w", err)
	}
	if err := c.Rules.Validate(); err != nil {
		return fmt.Errorf("rules: %w", err)
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	Workers  int        `yaml:"workers"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Workers, validation.Min(1), validation.Max(64)),
	); err != nil {
		return err
	}
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration for watch mode.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// FolderConfig names one topic. Source and Dest default to
// notebooks/<topic>-dev and notebooks/<topic>.
type FolderConfig struct {
	Topic  string `yaml:"topic"`
	Source string `yaml:"source"`
	Dest   string `yaml:"dest"`
}

// Validate validates the folder entry.
func (f FolderConfig) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.Topic, validation.Required),
	)
}

// CourseConfig describes where authored notebooks, media and build output live.
// Relative paths are resolved against Root.
type CourseConfig struct {
	Root           string         `yaml:"root"`
	Pattern        string         `yaml:"pattern"`
	Folders        []FolderConfig `yaml:"folders"`
	MediaDir       string         `yaml:"media_dir"`
	BuildImagesDir string         `yaml:"build_images_dir"`
	LockFile       string         `yaml:"lock_file"`
}

// Validate validates the course layout.
func (c *CourseConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Root, validation.Required),
		validation.Field(&c.Pattern, validation.Required, validation.By(validGlob)),
		validation.Field(&c.Folders, validation.Required),
		validation.Field(&c.MediaDir, validation.Required),
		validation.Field(&c.BuildImagesDir, validation.Required),
	); err != nil {
		return err
	}
	seenTopic := make(map[string]struct{}, len(c.Folders))
	seenDest := make(map[string]string, len(c.Folders))
	for _, p := range c.Pairs() {
		if _, dup := seenTopic[p.Topic]; dup {
			return fmt.Errorf("duplicate topic %q", p.Topic)
		}
		seenTopic[p.Topic] = struct{}{}
		if filepath.Clean(c.Resolve(p.Source)) == filepath.Clean(c.Resolve(p.Dest)) {
			return fmt.Errorf("topic %q: source and dest are the same folder", p.Topic)
		}
		dest := filepath.Clean(c.Resolve(p.Dest))
		if other, dup := seenDest[dest]; dup {
			return fmt.Errorf("topics %q and %q publish into the same folder", other, p.Topic)
		}
		seenDest[dest] = p.Topic
	}
	return nil
}

func validGlob(v any) error {
	s, _ := v.(string)
	if _, err := filepath.Match(s, ""); err != nil {
		return fmt.Errorf("invalid glob %q", s)
	}
	return nil
}

// Pairs returns the folder pairs with defaults filled in.
func (c *CourseConfig) Pairs() []models.FolderPair {
	out := make([]models.FolderPair, 0, len(c.Folders))
	for _, f := range c.Folders {
		p := models.FolderPair{Topic: f.Topic, Source: f.Source, Dest: f.Dest}
		if p.Source == "" {
			p.Source = filepath.Join("notebooks", f.Topic+"-dev")
		}
		if p.Dest == "" {
			p.Dest = filepath.Join("notebooks", f.Topic)
		}
		out = append(out, p)
	}
	return out
}

// Resolve returns p as an absolute-or-root-relative path.
func (c *CourseConfig) Resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Root, p)
}

// LockPath returns the lock file location. It defaults to a file next to
// the build images directory.
func (c *CourseConfig) LockPath() string {
	if c.LockFile != "" {
		return c.Resolve(c.LockFile)
	}
	images := strings.TrimRight(c.Resolve(c.BuildImagesDir), string(filepath.Separator))
	return filepath.Join(filepath.Dir(images), ".nbpublish.lock")
}

// SQLiteConfig holds the build manifest database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration for the watch-mode API.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local use.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with the course book's layout.
func NewDefaultConfig() *Config {
	folders := make([]FolderConfig, 0, 9)
	for i := 1; i <= 8; i++ {
		folders = append(folders, FolderConfig{Topic: fmt.Sprint(i)})
	}
	folders = append(folders, FolderConfig{
		Topic:  "assignments",
		Source: "../course-assignments/notebooks/assignments-dev",
		Dest:   "notebooks/assignments",
	})

	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			Workers:  1,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Course: CourseConfig{
			Root:           ".",
			Pattern:        "*.ipynb",
			Folders:        folders,
			MediaDir:       "media",
			BuildImagesDir: "_build/html/_images",
		},
		Rules: sanitize.DefaultRules(),
		SQLite: SQLiteConfig{
			Path: "./.nbpublish.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
