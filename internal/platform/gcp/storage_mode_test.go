package gcp

import (
	"errors"
	"testing"
)

func TestResolveExportStoreConfigDisabledWithoutBucket(t *testing.T) {
	t.Setenv("OLX_EXPORT_GCS_BUCKET", "")
	t.Setenv("OBJECT_STORAGE_MODE", "nonsense")

	cfg, err := ResolveExportStoreConfigFromEnv()
	if err != nil {
		t.Fatalf("ResolveExportStoreConfigFromEnv: %v", err)
	}
	if cfg.Enabled() {
		t.Fatalf("enabled: want=false got=true")
	}
}

func TestResolveExportStoreConfigDefaultGCS(t *testing.T) {
	t.Setenv("OLX_EXPORT_GCS_BUCKET", "exports")
	t.Setenv("OBJECT_STORAGE_MODE", "")
	t.Setenv("STORAGE_EMULATOR_HOST", "")
	t.Setenv("OLX_EXPORT_GCS_PREFIX", "/olx/")

	cfg, err := ResolveExportStoreConfigFromEnv()
	if err != nil {
		t.Fatalf("ResolveExportStoreConfigFromEnv: %v", err)
	}
	if cfg.Mode != StorageModeGCS || cfg.Prefix != "olx" {
		t.Fatalf("config: got=%+v", cfg)
	}
}

func TestResolveExportStoreConfigEmulatorFallback(t *testing.T) {
	t.Setenv("OLX_EXPORT_GCS_BUCKET", "exports")
	t.Setenv("OBJECT_STORAGE_MODE", "")
	t.Setenv("STORAGE_EMULATOR_HOST", "http://fake-gcs:4443/")

	cfg, err := ResolveExportStoreConfigFromEnv()
	if err != nil {
		t.Fatalf("ResolveExportStoreConfigFromEnv: %v", err)
	}
	if cfg.Mode != StorageModeGCSEmulator || cfg.EmulatorHost != "http://fake-gcs:4443" {
		t.Fatalf("config: got=%+v", cfg)
	}
}

func TestResolveExportStoreConfigErrors(t *testing.T) {
	cases := []struct {
		mode, host string
		want       ConfigErrorCode
	}{
		{"local", "", ConfigErrorInvalidMode},
		{"gcs_emulator", "", ConfigErrorMissingEmulatorHost},
		{"gcs_emulator", "fake-gcs:4443", ConfigErrorInvalidURL},
	}
	for _, tc := range cases {
		t.Setenv("OLX_EXPORT_GCS_BUCKET", "exports")
		t.Setenv("OBJECT_STORAGE_MODE", tc.mode)
		t.Setenv("STORAGE_EMULATOR_HOST", tc.host)

		_, err := ResolveExportStoreConfigFromEnv()
		var ce *ConfigError
		if !errors.As(err, &ce) || ce.Code != tc.want {
			t.Fatalf("mode=%q host=%q: want code %s got=%v", tc.mode, tc.host, tc.want, err)
		}
	}
}

func TestPublicURL(t *testing.T) {
	cases := []struct {
		cfg  ExportStoreConfig
		want string
	}{
		{ExportStoreConfig{Mode: StorageModeGCS, Bucket: "b"}, "https://storage.googleapis.com/b/olx/x.xml"},
		{ExportStoreConfig{Mode: StorageModeGCS, Bucket: "b", PublicBaseURL: "http://cdn.local"}, "http://cdn.local/b/olx/x.xml"},
		{ExportStoreConfig{Mode: StorageModeGCSEmulator, Bucket: "b", EmulatorHost: "http://fake:4443"}, "http://fake:4443/storage/v1/b/b/o/olx%2Fx.xml?alt=media"},
	}
	for _, tc := range cases {
		if got := publicURL(tc.cfg, "olx/x.xml"); got != tc.want {
			t.Fatalf("publicURL(%+v): want=%q got=%q", tc.cfg, tc.want, got)
		}
	}
}
