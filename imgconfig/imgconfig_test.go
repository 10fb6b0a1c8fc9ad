package imgconfig_test

import (
	"testing"

	"github.com/Skryldev/oipipe/imgconfig"
)

func TestParse_Basic(t *testing.T) {
	raw := "cache_root=/var/oip/cache;cache_default_max_files=50"
	cfg, err := imgconfig.Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.CacheRoot != "/var/oip/cache" {
		t.Errorf("CacheRoot = %q, want /var/oip/cache", cfg.CacheRoot)
	}
	if cfg.CacheDefaultMaxFiles != 50 {
		t.Errorf("CacheDefaultMaxFiles = %d, want 50", cfg.CacheDefaultMaxFiles)
	}
}

func TestParse_NewlineSeparated(t *testing.T) {
	raw := "cache_root=/tmp/cache\ncache_default_max_files=5\n"
	cfg, err := imgconfig.Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.CacheRoot != "/tmp/cache" || cfg.CacheDefaultMaxFiles != 5 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestParse_ArrayValueTakesFirstElement(t *testing.T) {
	raw := "cache_root=/a,/b,/c"
	cfg, err := imgconfig.Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.CacheRoot != "/a" {
		t.Errorf("CacheRoot = %q, want /a", cfg.CacheRoot)
	}
}

func TestParse_UnrecognizedKeyRejected(t *testing.T) {
	_, err := imgconfig.Parse("not_a_real_key=1")
	if err == nil {
		t.Fatal("expected error for unrecognized key")
	}
}

func TestParse_MalformedStatement(t *testing.T) {
	_, err := imgconfig.Parse("cache_root")
	if err == nil {
		t.Fatal("expected error for malformed statement")
	}
}

func TestParse_BlankLinesIgnored(t *testing.T) {
	raw := "\n\ncache_root=/x\n\n  \ncache_default_max_files=3\n"
	cfg, err := imgconfig.Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.CacheRoot != "/x" || cfg.CacheDefaultMaxFiles != 3 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestValidate_RejectsEmptyRoot(t *testing.T) {
	cfg := imgconfig.Default()
	cfg.CacheRoot = ""
	if err := imgconfig.Validate(cfg); err == nil {
		t.Error("expected validation error for empty cache root")
	}
}

func TestValidate_RejectsNonPositiveMaxFiles(t *testing.T) {
	cfg := imgconfig.Default()
	cfg.CacheDefaultMaxFiles = 0
	if err := imgconfig.Validate(cfg); err == nil {
		t.Error("expected validation error for zero max files")
	}
}
