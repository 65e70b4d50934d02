package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alloctrace/pkg/errors"
)

func validCOSConfig() *COSConfig {
	return &COSConfig{
		Bucket:    "exports-1250000000",
		Region:    "ap-guangzhou",
		SecretID:  "id",
		SecretKey: "key",
	}
}

func TestNewCOSStorage_Defaults(t *testing.T) {
	s, err := NewCOSStorage(validCOSConfig())
	require.NoError(t, err)

	assert.Equal(t, "myqcloud.com", s.domain)
	assert.Equal(t, "https", s.scheme)
}

func TestNewCOSStorage_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*COSConfig)
	}{
		{"missing bucket", func(c *COSConfig) { c.Bucket = "" }},
		{"missing region", func(c *COSConfig) { c.Region = "" }},
		{"missing secret id", func(c *COSConfig) { c.SecretID = "" }},
		{"missing secret key", func(c *COSConfig) { c.SecretKey = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validCOSConfig()
			tt.mutate(cfg)
			_, err := NewCOSStorage(cfg)
			require.Error(t, err)
			assert.Equal(t, errors.CodeConfigError, errors.GetErrorCode(err))
		})
	}
}

func TestCOSStorage_URL(t *testing.T) {
	s, err := NewCOSStorage(validCOSConfig())
	require.NoError(t, err)

	assert.Equal(t,
		"https://exports-1250000000.cos.ap-guangzhou.myqcloud.com/exports/run-1/snap_lifetime.json",
		s.URL("exports/run-1/snap_lifetime.json"))
}

func TestCOSStorage_CustomDomainAndScheme(t *testing.T) {
	cfg := validCOSConfig()
	cfg.Domain = "internal.example.com"
	cfg.Scheme = "http"

	s, err := NewCOSStorage(cfg)
	require.NoError(t, err)
	assert.Equal(t,
		"http://exports-1250000000.cos.ap-guangzhou.internal.example.com/a/b.json",
		s.URL("a/b.json"))
}

func TestExportKey(t *testing.T) {
	assert.Equal(t, "exports/run-9/snap_unsafe_ffi.json",
		ExportKey("run-9", "/tmp/out/snap_unsafe_ffi.json"))
}
