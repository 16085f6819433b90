package cryptonet

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigDefaults(t *testing.T) {
	assert.Equal(t, EnrollConfig{ImageFormat: ImageFormatRGBA, SkipAntispoof: Bool(true)}, NewEnrollConfig())
	assert.Equal(t, PredictConfig{ImageFormat: ImageFormatRGBA, SkipAntispoof: Bool(true)}, NewPredictConfig())
	assert.Equal(t, ValidConfig{ImageFormat: ImageFormatRGBA, SkipAntispoof: Bool(true)}, NewValidConfig())
	assert.Equal(t, FaceAndEmbeddingConfig{ImageFormat: ImageFormatRGBA, SkipAntispoof: Bool(true)}, NewFaceAndEmbeddingConfig())
	assert.Equal(t, DocumentAndFaceConfig{ImageFormat: ImageFormatRGBA, SkipAntispoof: Bool(true)}, NewDocumentAndFaceConfig())
}

func TestEncode(t *testing.T) {
	tests := []struct {
		name string
		enc  func() ([]byte, error)
		want string
	}{
		{
			name: "enroll defaults",
			enc:  func() ([]byte, error) { return Encode(NewEnrollConfig()) },
			want: `{"input_image_format":"rgba","skip_antispoof":true}`,
		},
		{
			name: "enroll zero value",
			enc:  func() ([]byte, error) { return Encode(EnrollConfig{}) },
			want: `{"input_image_format":"rgba","skip_antispoof":true}`,
		},
		{
			name: "enroll literal with only a token",
			enc:  func() ([]byte, error) { return Encode(EnrollConfig{MFToken: String("x")}) },
			want: `{"input_image_format":"rgba","skip_antispoof":true,"mf_token":"x"}`,
		},
		{
			name: "enroll with token",
			enc: func() ([]byte, error) {
				return Encode(EnrollConfig{ImageFormat: ImageFormatRGBA, SkipAntispoof: Bool(false), MFToken: String("abc")})
			},
			want: `{"input_image_format":"rgba","skip_antispoof":false,"mf_token":"abc"}`,
		},
		{
			name: "enroll with empty token",
			enc:  func() ([]byte, error) { return Encode(EnrollConfig{MFToken: String("")}) },
			want: `{"input_image_format":"rgba","skip_antispoof":true,"mf_token":""}`,
		},
		{
			name: "predict",
			enc:  func() ([]byte, error) { return Encode(NewPredictConfig()) },
			want: `{"input_image_format":"rgba","skip_antispoof":true}`,
		},
		{
			name: "validate zero value",
			enc:  func() ([]byte, error) { return Encode(ValidConfig{}) },
			want: `{"input_image_format":"rgba","skip_antispoof":true}`,
		},
		{
			name: "face and embedding zero value",
			enc:  func() ([]byte, error) { return Encode(FaceAndEmbeddingConfig{}) },
			want: `{"input_image_format":"rgba","skip_antispoof":true}`,
		},
		{
			name: "document and face explicit false",
			enc:  func() ([]byte, error) { return Encode(DocumentAndFaceConfig{SkipAntispoof: Bool(false)}) },
			want: `{"input_image_format":"rgba","skip_antispoof":false}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.enc()
			require.NoError(t, err)
			// Exact bytes: the encoding is deterministic
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestEncode_RejectsUnknownFormat(t *testing.T) {
	tests := []struct {
		name string
		enc  func() ([]byte, error)
	}{
		{"enroll", func() ([]byte, error) { return Encode(EnrollConfig{ImageFormat: "bgr"}) }},
		{"predict", func() ([]byte, error) { return Encode(PredictConfig{ImageFormat: "RGBA"}) }},
		{"validate", func() ([]byte, error) { return Encode(ValidConfig{ImageFormat: "gray"}) }},
		{"face and embedding", func() ([]byte, error) { return Encode(FaceAndEmbeddingConfig{ImageFormat: "yuv"}) }},
		{"document and face", func() ([]byte, error) { return Encode(DocumentAndFaceConfig{ImageFormat: "bgra"}) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.enc()
			assert.ErrorIs(t, err, ErrInvalidImageFormat)
		})
	}
}

func TestEncode_DoesNotModifyCaller(t *testing.T) {
	cfg := EnrollConfig{}
	_, err := Encode(cfg)
	require.NoError(t, err)
	assert.Equal(t, EnrollConfig{}, cfg)
}

func TestEnrollConfig_RoundTrip(t *testing.T) {
	canonical := []string{
		`{"input_image_format":"rgba","skip_antispoof":true}`,
		`{"input_image_format":"rgba","skip_antispoof":false}`,
		`{"input_image_format":"rgba","skip_antispoof":true,"mf_token":"t0k"}`,
		`{"input_image_format":"rgba","skip_antispoof":true,"mf_token":""}`,
	}

	for _, in := range canonical {
		t.Run(in, func(t *testing.T) {
			var cfg EnrollConfig
			require.NoError(t, json.Unmarshal([]byte(in), &cfg))
			out, err := Encode(cfg)
			require.NoError(t, err)
			assert.Equal(t, in, string(out))
		})
	}
}

func TestConfig_UnmarshalKeepsDefaults(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  EnrollConfig
	}{
		{
			name:  "empty object",
			input: `{}`,
			want:  EnrollConfig{ImageFormat: ImageFormatRGBA, SkipAntispoof: Bool(true)},
		},
		{
			name:  "only token",
			input: `{"mf_token":"x"}`,
			want:  EnrollConfig{ImageFormat: ImageFormatRGBA, SkipAntispoof: Bool(true), MFToken: String("x")},
		},
		{
			name:  "empty token kept",
			input: `{"mf_token":""}`,
			want:  EnrollConfig{ImageFormat: ImageFormatRGBA, SkipAntispoof: Bool(true), MFToken: String("")},
		},
		{
			name:  "explicit false",
			input: `{"skip_antispoof":false}`,
			want:  EnrollConfig{ImageFormat: ImageFormatRGBA, SkipAntispoof: Bool(false)},
		},
		{
			name:  "unknown keys ignored",
			input: `{"threshold":0.5}`,
			want:  EnrollConfig{ImageFormat: ImageFormatRGBA, SkipAntispoof: Bool(true)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cfg EnrollConfig
			require.NoError(t, json.Unmarshal([]byte(tt.input), &cfg))
			assert.Equal(t, tt.want, cfg)
		})
	}
}

func TestConfig_UnmarshalOtherTypes(t *testing.T) {
	var p PredictConfig
	require.NoError(t, json.Unmarshal([]byte(`{}`), &p))
	assert.Equal(t, NewPredictConfig(), p)

	var v ValidConfig
	require.NoError(t, json.Unmarshal([]byte(`{"skip_antispoof":false}`), &v))
	require.NotNil(t, v.SkipAntispoof)
	assert.False(t, *v.SkipAntispoof)
	assert.Equal(t, ImageFormatRGBA, v.ImageFormat)

	var f FaceAndEmbeddingConfig
	require.NoError(t, json.Unmarshal([]byte(`{"input_image_format":"rgba"}`), &f))
	assert.Equal(t, NewFaceAndEmbeddingConfig(), f)

	var d DocumentAndFaceConfig
	require.NoError(t, json.Unmarshal([]byte(`{}`), &d))
	assert.Equal(t, NewDocumentAndFaceConfig(), d)

	assert.Error(t, json.Unmarshal([]byte(`{"skip_antispoof":"yes"}`), &d))
}

func TestConfig_NestedUnmarshal(t *testing.T) {
	var req struct {
		Config EnrollConfig `json:"config"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"config":{"mf_token":"n"}}`), &req))
	assert.Equal(t, EnrollConfig{ImageFormat: ImageFormatRGBA, SkipAntispoof: Bool(true), MFToken: String("n")}, req.Config)
}
