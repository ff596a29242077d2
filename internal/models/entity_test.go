// file: internal/models/entity_test.go
// version: 1.0.0
// guid: 0d6f3f0a-0a57-4b7f-9a53-2b0f2d1c8e41

package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEntityKind(t *testing.T) {
	k, err := ParseEntityKind(" Album ")
	require.NoError(t, err)
	assert.Equal(t, KindAlbum, k)

	_, err = ParseEntityKind("book")
	assert.Error(t, err)
}

func TestDisplayTitle(t *testing.T) {
	e := &LibraryEntity{Name: "radiohead"}
	assert.Equal(t, "radiohead", e.DisplayTitle())
	e.Title = "Radiohead"
	assert.Equal(t, "Radiohead", e.DisplayTitle())
}

func TestPrimaryImage(t *testing.T) {
	var nilMeta *CanonicalMetadata
	assert.Equal(t, "", nilMeta.PrimaryImage())

	m := &CanonicalMetadata{ImageURIs: []string{"", "http://img/1.jpg", "http://img/2.jpg"}}
	assert.Equal(t, "http://img/1.jpg", m.PrimaryImage())
}

func TestParseReleaseDate(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
		ok   bool
	}{
		{"1997-05-21", time.Date(1997, 5, 21, 0, 0, 0, 0, time.UTC), true},
		{"1965-08", time.Date(1965, 8, 1, 0, 0, 0, 0, time.UTC), true},
		{"2000", time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC), true},
		{"", time.Time{}, false},
		{"someday", time.Time{}, false},
	}
	for _, tt := range tests {
		got := ParseReleaseDate(tt.in)
		if !tt.ok {
			assert.Nil(t, got, tt.in)
			continue
		}
		require.NotNil(t, got, tt.in)
		assert.True(t, tt.want.Equal(*got), "ParseReleaseDate(%q) = %v", tt.in, got)
	}
}
