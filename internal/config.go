package internal

import (
	"fmt"
	"log/slog"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/attractor-gallery/internal/codec"
	"github.com/starford/attractor-gallery/internal/curator"
	"github.com/starford/attractor-gallery/internal/scoring"
	"github.com/starford/attractor-gallery/internal/validity"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Store backends.
const (
	BackendFS    = "fs"
	BackendMinIO = "minio"
)

// Log formats.
const (
	LogFormatJSON = "json"
	LogFormatText = "text"
)

// Config represents the application configuration.
type Config struct {
	App      ApplicationConfig `yaml:"app"`
	Store    StoreConfig       `yaml:"store"`
	Catalog  CatalogConfig     `yaml:"catalog"`
	Curation CurationConfig    `yaml:"curation"`
	Gallery  GalleryConfig     `yaml:"gallery"`
	Auth     AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Store.Validate(); err != nil {
		return err
	}
	if err := c.Catalog.Validate(); err != nil {
		return err
	}
	if err := c.Curation.Validate(); err != nil {
		return err
	}
	if err := c.Gallery.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel  slog.Level `yaml:"log_level"`
	LogFormat string     `yaml:"log_format"`
	HTTP      HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if c.LogFormat == "" {
		c.LogFormat = LogFormatJSON
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.LogFormat, validation.In(LogFormatJSON, LogFormatText)),
	); err != nil {
		return err
	}
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
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

// StoreConfig selects where attractor records are read from.
type StoreConfig struct {
	Backend string      `yaml:"backend"`
	Path    string      `yaml:"path"`
	MinIO   MinIOConfig `yaml:"minio"`
}

// Validate validates the store configuration.
func (c *StoreConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Backend, validation.Required, validation.In(BackendFS, BackendMinIO)),
		validation.Field(&c.Path, validation.When(c.Backend == BackendFS, validation.Required)),
	); err != nil {
		return err
	}
	if c.Backend == BackendMinIO {
		return c.MinIO.Validate()
	}
	return nil
}

// MinIOConfig holds S3-compatible object store settings.
type MinIOConfig struct {
	Endpoint          string  `yaml:"endpoint"`
	AccessKey         string  `yaml:"access_key"`
	SecretKey         string  `yaml:"secret_key"`
	Bucket            string  `yaml:"bucket"`
	Prefix            string  `yaml:"prefix"`
	UseSSL            bool    `yaml:"use_ssl"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// Validate validates the MinIO configuration.
func (c *MinIOConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Endpoint, validation.Required),
		validation.Field(&c.Bucket, validation.Required),
		validation.Field(&c.RequestsPerSecond, validation.Min(0.0)),
	)
}

// CatalogConfig holds the SQLite catalog settings. An empty Path disables
// the catalog.
//
// When Primary is set the store is synced into the catalog at startup and
// curation reads from the catalog instead of the store.
type CatalogConfig struct {
	Path    string `yaml:"path"`
	Primary bool   `yaml:"primary"`
}

// Enabled reports whether a catalog is configured.
func (c *CatalogConfig) Enabled() bool {
	return c.Path != ""
}

// Validate validates the catalog configuration.
func (c *CatalogConfig) Validate() error {
	if c.Primary && c.Path == "" {
		return fmt.Errorf("catalog: primary is set but path is empty")
	}
	return nil
}

// CurationConfig holds grouping, ranking and validity parameters.
type CurationConfig struct {
	TopN               int      `yaml:"top_n"`
	Groups             []string `yaml:"groups"`
	DefaultGroup       string   `yaml:"default_group"`
	Scoring            string   `yaml:"scoring"`
	MaxLeadingExponent float64  `yaml:"max_leading_exponent"`
	MaxCoordinate      float64  `yaml:"max_coordinate"`
}

// Validate validates the curation configuration.
func (c *CurationConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.TopN, validation.Required, validation.Min(1)),
		validation.Field(&c.Scoring, validation.Required, validation.In(toAny(scoring.Names())...)),
		validation.Field(&c.MaxLeadingExponent, validation.Required, validation.Min(0.0).Exclusive()),
		validation.Field(&c.MaxCoordinate, validation.Required, validation.Min(0.0).Exclusive()),
		validation.Field(&c.Groups, validation.Each(validation.Required)),
		validation.Field(&c.DefaultGroup,
			validation.NotIn(toAny(c.Groups)...).Error("must not repeat a name from groups")),
	)
}

// CuratorConfig converts the curation section into a curator.Config.
func (c *CurationConfig) CuratorConfig() (curator.Config, error) {
	policy, err := scoring.Lookup(c.Scoring)
	if err != nil {
		return curator.Config{}, err
	}
	return curator.Config{
		TopN:         c.TopN,
		Groups:       c.Groups,
		DefaultGroup: c.DefaultGroup,
		Policy:       policy,
		Bounds: validity.Bounds{
			MaxLeadingExponent: c.MaxLeadingExponent,
			MaxCoordinate:      c.MaxCoordinate,
		},
	}, nil
}

// GalleryConfig holds export settings.
type GalleryConfig struct {
	OutputDir   string `yaml:"output_dir"`
	Compression string `yaml:"compression"`
	Workers     int    `yaml:"workers"`
}

// Validate validates the gallery configuration.
func (c *GalleryConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.OutputDir, validation.Required),
		validation.Field(&c.Workers, validation.Min(0)),
	); err != nil {
		return err
	}
	_, err := codec.ParseKind(c.Compression)
	return err
}

// CompressionKind returns the parsed compression setting.
func (c *GalleryConfig) CompressionKind() codec.Kind {
	k, _ := codec.ParseKind(c.Compression)
	return k
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
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

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel:  slog.LevelInfo,
			LogFormat: LogFormatJSON,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Store: StoreConfig{
			Backend: BackendFS,
			Path:    "./results",
		},
		Curation: CurationConfig{
			TopN:               20,
			Groups:             []string{"evolve"},
			DefaultGroup:       "random",
			Scoring:            scoring.BellCurvePolicy.Name,
			MaxLeadingExponent: validity.DefaultMaxLeadingExponent,
			MaxCoordinate:      validity.DefaultMaxCoordinate,
		},
		Gallery: GalleryConfig{
			OutputDir:   "./gallery",
			Compression: string(codec.None),
			Workers:     4,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
