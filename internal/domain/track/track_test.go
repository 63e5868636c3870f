package track

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStub_Query(t *testing.T) {
	tests := []struct {
		name string
		stub Stub
		want string
	}{
		{
			name: "artist and title",
			stub: Stub{Title: "Harvest Moon", Artist: "Neil Young", SourceID: "abc"},
			want: "Neil Young Harvest Moon",
		},
		{
			name: "title only",
			stub: Stub{Title: "Harvest Moon", SourceID: "abc"},
			want: "Harvest Moon",
		},
		{
			name: "no hints falls back to source id",
			stub: Stub{SourceID: "dQw4w9WgXcQ"},
			want: "dQw4w9WgXcQ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.stub.Query())
		})
	}
}

func TestStreamHandle_CloseIdempotent(t *testing.T) {
	released := 0
	h := NewStreamHandle("https://cdn.example/a.webm", "opus", time.Time{}, func() {
		released++
	})

	h.Close()
	h.Close()
	h.Close()

	assert.Equal(t, 1, released, "release must run exactly once")
}

func TestStreamHandle_NilRelease(t *testing.T) {
	h := NewStreamHandle("https://cdn.example/a.webm", "", time.Time{}, nil)
	assert.NotPanics(t, func() { h.Close() })
}
