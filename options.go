package cryptonet

import (
	"encoding/json"
	"errors"
	"fmt"

	defaults "github.com/mcuadros/go-defaults"
)

// ImageFormat is the pixel layout of frames sent to the engine.
type ImageFormat string

// ImageFormatRGBA is the only layout the engine accepts.
const ImageFormatRGBA ImageFormat = "rgba"

// ErrInvalidImageFormat is returned by Encode for a format other than rgba.
var ErrInvalidImageFormat = errors.New("unsupported input_image_format")

// The zero value of every config is usable: an empty ImageFormat encodes as
// rgba and a nil SkipAntispoof encodes as true.

// EnrollConfig holds the options for Enroll.
type EnrollConfig struct {
	ImageFormat   ImageFormat `json:"input_image_format" default:"rgba"`
	SkipAntispoof *bool       `json:"skip_antispoof"`

	// MFToken is an optional multi-factor token passed through to the
	// engine. Nil omits the key; a pointer to "" sends it empty.
	MFToken *string `json:"mf_token,omitempty"`
}

// PredictConfig holds the options for Predict.
type PredictConfig struct {
	ImageFormat   ImageFormat `json:"input_image_format" default:"rgba"`
	SkipAntispoof *bool       `json:"skip_antispoof"`
}

// ValidConfig holds the options for Validate.
type ValidConfig struct {
	ImageFormat   ImageFormat `json:"input_image_format" default:"rgba"`
	SkipAntispoof *bool       `json:"skip_antispoof"`
}

// FaceAndEmbeddingConfig holds the options for CompareFaceAndEmbedding.
type FaceAndEmbeddingConfig struct {
	ImageFormat   ImageFormat `json:"input_image_format" default:"rgba"`
	SkipAntispoof *bool       `json:"skip_antispoof"`
}

// DocumentAndFaceConfig holds the options for CompareDocumentAndFace.
type DocumentAndFaceConfig struct {
	ImageFormat   ImageFormat `json:"input_image_format" default:"rgba"`
	SkipAntispoof *bool       `json:"skip_antispoof"`
}

// OperationConfig is any of the per-operation config types.
type OperationConfig interface {
	EnrollConfig | PredictConfig | ValidConfig | FaceAndEmbeddingConfig | DocumentAndFaceConfig
}

// Bool returns a pointer to v, for SkipAntispoof.
func Bool(v bool) *bool { return &v }

// String returns a pointer to s, for MFToken.
func String(s string) *string { return &s }

// fill applies the defaults go-defaults cannot express and checks the format.
func fill(format *ImageFormat, skip **bool) error {
	switch *format {
	case "":
		*format = ImageFormatRGBA
	case ImageFormatRGBA:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidImageFormat, string(*format))
	}
	if *skip == nil {
		*skip = Bool(true)
	}
	return nil
}

func (c *EnrollConfig) applyDefaults() error {
	defaults.SetDefaults(c)
	return fill(&c.ImageFormat, &c.SkipAntispoof)
}

func (c *PredictConfig) applyDefaults() error {
	defaults.SetDefaults(c)
	return fill(&c.ImageFormat, &c.SkipAntispoof)
}

func (c *ValidConfig) applyDefaults() error {
	defaults.SetDefaults(c)
	return fill(&c.ImageFormat, &c.SkipAntispoof)
}

func (c *FaceAndEmbeddingConfig) applyDefaults() error {
	defaults.SetDefaults(c)
	return fill(&c.ImageFormat, &c.SkipAntispoof)
}

func (c *DocumentAndFaceConfig) applyDefaults() error {
	defaults.SetDefaults(c)
	return fill(&c.ImageFormat, &c.SkipAntispoof)
}

// NewEnrollConfig returns an EnrollConfig with default values.
func NewEnrollConfig() EnrollConfig {
	var c EnrollConfig
	_ = c.applyDefaults()
	return c
}

// NewPredictConfig returns a PredictConfig with default values.
func NewPredictConfig() PredictConfig {
	var c PredictConfig
	_ = c.applyDefaults()
	return c
}

// NewValidConfig returns a ValidConfig with default values.
func NewValidConfig() ValidConfig {
	var c ValidConfig
	_ = c.applyDefaults()
	return c
}

// NewFaceAndEmbeddingConfig returns a FaceAndEmbeddingConfig with default values.
func NewFaceAndEmbeddingConfig() FaceAndEmbeddingConfig {
	var c FaceAndEmbeddingConfig
	_ = c.applyDefaults()
	return c
}

// NewDocumentAndFaceConfig returns a DocumentAndFaceConfig with default values.
func NewDocumentAndFaceConfig() DocumentAndFaceConfig {
	var c DocumentAndFaceConfig
	_ = c.applyDefaults()
	return c
}

// UnmarshalJSON decodes data over the defaults, so absent keys keep them.
func (c *EnrollConfig) UnmarshalJSON(data []byte) error {
	type plain EnrollConfig
	v := plain(NewEnrollConfig())
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*c = EnrollConfig(v)
	return nil
}

// UnmarshalJSON decodes data over the defaults, so absent keys keep them.
func (c *PredictConfig) UnmarshalJSON(data []byte) error {
	type plain PredictConfig
	v := plain(NewPredictConfig())
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*c = PredictConfig(v)
	return nil
}

// UnmarshalJSON decodes data over the defaults, so absent keys keep them.
func (c *ValidConfig) UnmarshalJSON(data []byte) error {
	type plain ValidConfig
	v := plain(NewValidConfig())
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*c = ValidConfig(v)
	return nil
}

// UnmarshalJSON decodes data over the defaults, so absent keys keep them.
func (c *FaceAndEmbeddingConfig) UnmarshalJSON(data []byte) error {
	type plain FaceAndEmbeddingConfig
	v := plain(NewFaceAndEmbeddingConfig())
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*c = FaceAndEmbeddingConfig(v)
	return nil
}

// UnmarshalJSON decodes data over the defaults, so absent keys keep them.
func (c *DocumentAndFaceConfig) UnmarshalJSON(data []byte) error {
	type plain DocumentAndFaceConfig
	v := plain(NewDocumentAndFaceConfig())
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*c = DocumentAndFaceConfig(v)
	return nil
}

// Encode serializes cfg to the compact JSON object the engine expects.
// Keys are emitted in a fixed order. Unset fields encode as their defaults.
func Encode[C OperationConfig](cfg C) ([]byte, error) {
	var err error
	switch c := any(&cfg).(type) {
	case *EnrollConfig:
		err = c.applyDefaults()
	case *PredictConfig:
		err = c.applyDefaults()
	case *ValidConfig:
		err = c.applyDefaults()
	case *FaceAndEmbeddingConfig:
		err = c.applyDefaults()
	case *DocumentAndFaceConfig:
		err = c.applyDefaults()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}

	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return data, nil
}
