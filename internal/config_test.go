package internal

import (
	"strings"
	"testing"
)

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
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeValid(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: "mysecret"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with token should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
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
	err := cfg.Validate()
	if err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Curation.TopN != 20 || cfg.Curation.DefaultGroup != "random" {
		t.Errorf("unexpected curation defaults: %+v", cfg.Curation)
	}
}

func TestStoreConfig_MinIORequiresBucket(t *testing.T) {
	cfg := StoreConfig{Backend: BackendMinIO, MinIO: MinIOConfig{Endpoint: "localhost:9000"}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("minio backend without bucket should fail")
	}
	cfg.MinIO.Bucket = "records"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("minio backend with bucket should pass: %v", err)
	}
}

func TestStoreConfig_UnknownBackend(t *testing.T) {
	cfg := StoreConfig{Backend: "ftp", Path: "x"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("unknown backend should fail")
	}
}

func TestStoreConfig_FSRequiresPath(t *testing.T) {
	cfg := StoreConfig{Backend: BackendFS}
	if err := cfg.Validate(); err == nil {
		t.Fatal("fs backend without path should fail")
	}
}

func TestCatalogConfig_PrimaryNeedsPath(t *testing.T) {
	cfg := CatalogConfig{Primary: true}
	if err := cfg.Validate(); err == nil {
		t.Fatal("primary catalog without path should fail")
	}
	if cfg.Enabled() {
		t.Error("catalog without path should be disabled")
	}
}

func TestCurationConfig_Invalid(t *testing.T) {
	cases := map[string]func(c *CurationConfig){
		"zero top_n":        func(c *CurationConfig) { c.TopN = 0 },
		"unknown scoring":   func(c *CurationConfig) { c.Scoring = "entropy" },
		"negative bound":    func(c *CurationConfig) { c.MaxCoordinate = -1 },
		"empty group entry": func(c *CurationConfig) { c.Groups = []string{"evolve", ""} },
		"default in groups": func(c *CurationConfig) { c.Groups = []string{"evolve", "random"} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := NewDefaultConfig().Curation
			mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("%s should fail validation", name)
			}
		})
	}
}

func TestCurationConfig_CuratorConfig(t *testing.T) {
	cfg := NewDefaultConfig().Curation
	cfg.Scoring = "linear"
	cfg.MaxCoordinate = 500
	cc, err := cfg.CuratorConfig()
	if err != nil {
		t.Fatalf("CuratorConfig: %v", err)
	}
	if cc.Policy.Name != "linear" || cc.TopN != 20 || cc.Bounds.MaxCoordinate != 500 {
		t.Errorf("unexpected curator config: %+v", cc)
	}
}

func TestGalleryConfig_Compression(t *testing.T) {
	cfg := GalleryConfig{OutputDir: "out", Compression: "zstd"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("zstd should pass: %v", err)
	}
	if cfg.CompressionKind() != "zstd" {
		t.Errorf("kind = %q", cfg.CompressionKind())
	}
	cfg.Compression = "brotli"
	if err := cfg.Validate(); err == nil {
		t.Fatal("unknown compression should fail")
	}
}

func TestAppConfig_LogFormat(t *testing.T) {
	cfg := ApplicationConfig{HTTP: HTTPConfig{Port: 8080}}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty format should default: %v", err)
	}
	if cfg.LogFormat != LogFormatJSON {
		t.Errorf("format = %q, want json", cfg.LogFormat)
	}
	cfg.LogFormat = "xml"
	if err := cfg.Validate(); err == nil {
		t.Fatal("unknown format should fail")
	}
}
