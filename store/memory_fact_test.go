package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryTypeIsValid(t *testing.T) {
	valid := []MemoryType{MemoryTypePreference, MemoryTypeFact, MemoryTypeConstraint, MemoryTypeCommitment}
	for _, mt := range valid {
		assert.True(t, mt.IsValid(), "type %q", mt)
	}
	assert.False(t, MemoryType("opinion").IsValid())
	assert.False(t, MemoryType("").IsValid())
}

func TestCanonicalString(t *testing.T) {
	got := CanonicalString(MemoryTypePreference, "diet", "vegan")
	assert.Equal(t, "preference: diet is vegan", got)

	// Deterministic: identical inputs always produce identical text.
	assert.Equal(t, got, CanonicalString(MemoryTypePreference, "diet", "vegan"))
}

func TestFactVectorSearchOptionsValidate(t *testing.T) {
	tests := []struct {
		name    string
		opts    FactVectorSearchOptions
		wantErr bool
	}{
		{
			name:    "valid",
			opts:    FactVectorSearchOptions{SessionID: "s1", Vector: []float32{1}, Threshold: 0.25, Limit: 5},
			wantErr: false,
		},
		{
			name:    "missing session",
			opts:    FactVectorSearchOptions{Vector: []float32{1}},
			wantErr: true,
		},
		{
			name:    "empty vector",
			opts:    FactVectorSearchOptions{SessionID: "s1"},
			wantErr: true,
		},
		{
			name:    "threshold above one",
			opts:    FactVectorSearchOptions{SessionID: "s1", Vector: []float32{1}, Threshold: 1.5},
			wantErr: true,
		},
		{
			name:    "negative threshold",
			opts:    FactVectorSearchOptions{SessionID: "s1", Vector: []float32{1}, Threshold: -0.1},
			wantErr: true,
		},
		{
			name:    "negative limit",
			opts:    FactVectorSearchOptions{SessionID: "s1", Vector: []float32{1}, Limit: -1},
			wantErr: true,
		},
		{
			name:    "limit too large",
			opts:    FactVectorSearchOptions{SessionID: "s1", Vector: []float32{1}, Limit: 1001},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFactVectorSearchOptionsDefaultLimit(t *testing.T) {
	opts := FactVectorSearchOptions{SessionID: "s1", Vector: []float32{1}}
	require.NoError(t, opts.Validate())
	assert.Equal(t, 5, opts.Limit)
}
