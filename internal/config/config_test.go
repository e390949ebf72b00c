package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatFileSize(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{0, "0 Bytes"},
		{512, "512 Bytes"},
		{1024, "1 KB"},
		{1536, "1.5 KB"},
		{100 * 1024 * 1024, "100 MB"},
		{3 << 30, "3 GB"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatFileSize(tt.bytes))
	}
}

func TestLoadDefaultsCarryUploadAllowlists(t *testing.T) {
	cfg := Load()

	assert.Contains(t, cfg.Media.AllowedVideoTypes, "video/mp4")
	assert.Contains(t, cfg.Media.AllowedDocumentTypes, "application/pdf")
	assert.InDelta(t, 0.2, cfg.Llm.Temperature, 1e-9)
}

func TestAllowlistOverrideFromEnv(t *testing.T) {
	t.Setenv("ALLOWED_VIDEO_TYPES", "video/mp4, video/quicktime")

	cfg := Load()
	assert.Equal(t, []string{"video/mp4", "video/quicktime"}, cfg.Media.AllowedVideoTypes)
}

func TestValidateRejectsEmptyAllowlist(t *testing.T) {
	cfg := Load()
	cfg.Llm.APIKey = "sk-test"
	cfg.Media.AllowedVideoTypes = nil

	errs := cfg.Validate()
	assert.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "ALLOWED_VIDEO_TYPES")
}
