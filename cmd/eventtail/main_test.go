package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"broadcast", `{"type":"broadcast","from":"alice","text":"hi","at":"2024-05-01T10:00:00Z"}`,
			"2024-05-01T10:00:00Z broadcast alice: hi"},
		{"private queued", `{"type":"private","from":"alice","to":"bob","text":"psst","at":"2024-05-01T10:00:00Z"}`,
			"2024-05-01T10:00:00Z private alice -> bob (queued): psst"},
		{"private delivered", `{"type":"private","from":"alice","to":"bob","text":"yo","delivered":true,"at":"2024-05-01T10:00:00Z"}`,
			"2024-05-01T10:00:00Z private alice -> bob (delivered): yo"},
		{"presence", `{"type":"presence","username":"bob","online":true,"at":"2024-05-01T10:00:00Z"}`,
			"2024-05-01T10:00:00Z presence bob online"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := format([]byte(tt.in))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := format([]byte(`{"type":"typing"}`))
	assert.Error(t, err)
	_, err = format([]byte(`not json`))
	assert.Error(t, err)
}
