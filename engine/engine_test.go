package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFrame_Validate(t *testing.T) {
	tests := []struct {
		name    string
		frame   Frame
		wantErr bool
	}{
		{name: "valid", frame: Frame{Pix: make([]byte, 2*3*4), Width: 2, Height: 3}},
		{name: "zero width", frame: Frame{Pix: nil, Width: 0, Height: 3}, wantErr: true},
		{name: "negative height", frame: Frame{Pix: nil, Width: 2, Height: -1}, wantErr: true},
		{name: "short buffer", frame: Frame{Pix: make([]byte, 10), Width: 2, Height: 3}, wantErr: true},
		{name: "long buffer", frame: Frame{Pix: make([]byte, 100), Width: 2, Height: 3}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.frame.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidFrame)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestBufferOutput_ReleaseOnce(t *testing.T) {
	freed := 0
	out := NewBufferOutput(`{"status":0}`, true, 0, func() { freed++ })

	text, ok := out.Text()
	assert.True(t, ok)
	assert.Equal(t, `{"status":0}`, text)

	out.Release()
	out.Release()
	assert.Equal(t, 1, freed)
}

func TestBufferOutput_NoText(t *testing.T) {
	out := NewBufferOutput("", false, -1, nil)

	_, ok := out.Text()
	assert.False(t, ok)
	assert.Equal(t, int32(-1), out.Status())

	// Should not panic without a free function
	out.Release()
}

func TestBufferText(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want string
	}{
		{name: "plain", in: []byte(`{"status":0}`), want: `{"status":0}`},
		{name: "length counts terminator", in: []byte("{\"status\":0}\x00"), want: `{"status":0}`},
		{name: "padding after terminator", in: []byte("{}\x00\x00garbage"), want: `{}`},
		{name: "empty", in: nil, want: ""},
		{name: "only terminator", in: []byte{0}, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BufferText(tt.in))
		})
	}
}
