package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ersonp/lore-state/internal/domain/services"
)

func TestParseHints(t *testing.T) {
	tests := []struct {
		name    string
		input   []string
		want    services.Hints
		wantErr bool
	}{
		{name: "none", input: nil, want: services.Hints{}},
		{name: "all", input: []string{"all"}, want: services.AllHints()},
		{
			name:  "several with spacing and case",
			input: []string{" Entities", "relations ", "EVENTS"},
			want:  services.Hints{EntityMentions: true, RelationshipChange: true, EventScheduling: true},
		},
		{name: "state", input: []string{"state"}, want: services.Hints{StateChange: true}},
		{name: "empty value ignored", input: []string{""}, want: services.Hints{}},
		{name: "unknown", input: []string{"weather"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseHints(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "weather")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCheckFormat(t *testing.T) {
	assert.NoError(t, checkFormat("text"))
	assert.NoError(t, checkFormat("json"))

	err := checkFormat("yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "text, json")
}

func TestCycleRange(t *testing.T) {
	end := 7
	assert.Equal(t, "[3, now)", cycleRange(3, nil))
	assert.Equal(t, "[3, 7)", cycleRange(3, &end))
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "3f2a9c1e", shortID("3f2a9c1e-0b6d-4a55-9e0f-7c1d2b3a4e5f"))
	assert.Equal(t, "abc", shortID("abc"))
}

func TestFirstLine(t *testing.T) {
	assert.Equal(t, "You lean on the bar.", firstLine("You lean on the bar.\nMara nods."))

	long := strings.Repeat("é", 100)
	got := firstLine(long)
	assert.Equal(t, 72, len([]rune(got)))
	assert.True(t, strings.HasSuffix(got, "..."))
}

func TestPlayState_Commands(t *testing.T) {
	var out bytes.Buffer
	s := &playState{out: &out}

	err := s.runInputLoop(context.Background(), strings.NewReader("help\n\nquit\n"))
	require.NoError(t, err)

	assert.Contains(t, out.String(), "Commands:")
	assert.Contains(t, out.String(), "Goodbye!")
}

func TestPlayState_EOF(t *testing.T) {
	var out bytes.Buffer
	s := &playState{out: &out}

	err := s.runInputLoop(context.Background(), strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, "> ", out.String())
}
