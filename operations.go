package cryptonet

import (
	"context"
	"image"

	"github.com/kacy/cryptonet/engine"
)

func encoder[C OperationConfig](cfg C) func() ([]byte, error) {
	return func() ([]byte, error) { return Encode(cfg) }
}

// Enroll registers the face in img and returns the engine's JSON result.
func (c *Client) Enroll(ctx context.Context, img image.Image, cfg EnrollConfig) (string, error) {
	return c.run(ctx, engine.OpEnroll, []image.Image{img}, encoder(cfg),
		func(ctx context.Context, h engine.Handle, config []byte, f []engine.Frame) (engine.Output, error) {
			return c.engine.Enroll(ctx, h, config, f[0])
		})
}

// Predict matches the face in img against enrolled users.
func (c *Client) Predict(ctx context.Context, img image.Image, cfg PredictConfig) (string, error) {
	return c.run(ctx, engine.OpPredict, []image.Image{img}, encoder(cfg),
		func(ctx context.Context, h engine.Handle, config []byte, f []engine.Frame) (engine.Output, error) {
			return c.engine.Predict(ctx, h, config, f[0])
		})
}

// Validate checks img for a usable face.
func (c *Client) Validate(ctx context.Context, img image.Image, cfg ValidConfig) (string, error) {
	return c.run(ctx, engine.OpValidate, []image.Image{img}, encoder(cfg),
		func(ctx context.Context, h engine.Handle, config []byte, f []engine.Frame) (engine.Output, error) {
			return c.engine.Validate(ctx, h, config, f[0])
		})
}

// Delete removes the enrolled user puid.
func (c *Client) Delete(ctx context.Context, puid string) (string, error) {
	return c.run(ctx, engine.OpDelete, nil, nil,
		func(ctx context.Context, h engine.Handle, config []byte, _ []engine.Frame) (engine.Output, error) {
			return c.engine.Delete(ctx, h, config, []byte(puid))
		})
}

// CompareEmbeddings compares two precomputed embeddings. Empty inputs are
// passed to the engine as they are.
func (c *Client) CompareEmbeddings(ctx context.Context, a, b []byte) (string, error) {
	return c.run(ctx, engine.OpCompareEmbeddings, nil, nil,
		func(ctx context.Context, h engine.Handle, config []byte, _ []engine.Frame) (engine.Output, error) {
			return c.engine.CompareEmbeddings(ctx, h, config, a, b)
		})
}

// CompareFaceAndEmbedding compares the face in selfie with a precomputed embedding.
func (c *Client) CompareFaceAndEmbedding(ctx context.Context, selfie image.Image, embedding []byte, cfg FaceAndEmbeddingConfig) (string, error) {
	return c.run(ctx, engine.OpCompareFaceAndEmbedding, []image.Image{selfie}, encoder(cfg),
		func(ctx context.Context, h engine.Handle, config []byte, f []engine.Frame) (engine.Output, error) {
			return c.engine.CompareFaceAndEmbedding(ctx, h, config, f[0], embedding)
		})
}

// CompareDocumentAndFace compares the portrait on an identity document with
// a selfie. Both images are resized independently.
func (c *Client) CompareDocumentAndFace(ctx context.Context, document, selfie image.Image, cfg DocumentAndFaceConfig) (string, error) {
	return c.run(ctx, engine.OpCompareDocumentAndFace, []image.Image{document, selfie}, encoder(cfg),
		func(ctx context.Context, h engine.Handle, config []byte, f []engine.Frame) (engine.Output, error) {
			return c.engine.CompareDocumentAndFace(ctx, h, config, f[0], f[1])
		})
}
