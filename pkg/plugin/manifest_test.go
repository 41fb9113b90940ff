package plugin

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseManifest(t *testing.T) {
	m, err := ParseManifest([]byte(`
name: audit-log
version: "1.2.0"
description: Records every message to a file
filter: namespace == "jobs"
settings:
  path: /var/log/audit.jsonl
`))
	require.NoError(t, err)
	assert.Equal(t, "audit-log", m.Name)
	assert.Equal(t, "1.2.0", m.Version)
	assert.Equal(t, "audit-log", m.FactoryName())
	assert.Equal(t, `namespace == "jobs"`, m.Filter)
	assert.Equal(t, "/var/log/audit.jsonl", m.Settings["path"])
}

func TestParseManifest_Defaults(t *testing.T) {
	m, err := ParseManifest([]byte("name: minimal\n"))
	require.NoError(t, err)
	assert.Equal(t, "0.1.0", m.Version)
	assert.Equal(t, "minimal", m.FactoryName())
}

func TestParseManifest_FactoryOverride(t *testing.T) {
	m, err := ParseManifest([]byte("name: audit-prod\nfactory: audit-log\n"))
	require.NoError(t, err)
	assert.Equal(t, "audit-log", m.FactoryName())
}

func TestParseManifest_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty", ""},
		{"missing name", "version: 1.0.0\n"},
		{"bad name chars", "name: Not Valid\n"},
		{"uppercase name", "name: AuditLog\n"},
		{"unknown key", "name: ok\nexecutable: /bin/sh\n"},
		{"settings not object", "name: ok\nsettings: yes\n"},
		{"not yaml", "{{{{"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseManifest([]byte(tt.data))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidManifest), "got %v", err)
		})
	}
}

func TestParseManifest_BadFilterCompiles(t *testing.T) {
	// The schema accepts any filter string; compilation happens at load.
	m, err := ParseManifest([]byte("name: ok\nfilter: \"type ===\"\n"))
	require.NoError(t, err)

	_, err = compileFilter(m.Filter)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidManifest))
}
