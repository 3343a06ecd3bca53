package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfig_Validate(t *testing.T) {
	cfg := &Config{
		Database:  DatabaseConfig{Path: "./data/apm.db"},
		Server:    ServerConfig{Port: 8080},
		Retention: RetentionConfig{SpansDays: 30, ErrorsDays: 90, HourlyRollupsDays: 90},
	}
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate_RejectsEmptyPath(t *testing.T) {
	cfg := &Config{
		Database:  DatabaseConfig{Path: ""},
		Server:    ServerConfig{Port: 8080},
		Retention: RetentionConfig{SpansDays: 30, ErrorsDays: 90, HourlyRollupsDays: 90},
	}
	assert.Error(t, cfg.Validate())
}

func TestConfig_Validate_RejectsBadPort(t *testing.T) {
	cfg := &Config{
		Database:  DatabaseConfig{Path: "./data/apm.db"},
		Server:    ServerConfig{Port: 0},
		Retention: RetentionConfig{SpansDays: 30, ErrorsDays: 90, HourlyRollupsDays: 90},
	}
	assert.Error(t, cfg.Validate())
}
