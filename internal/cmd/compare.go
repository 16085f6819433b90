package cmd

import (
	"context"
	"fmt"
	"image"
	"os"

	"github.com/spf13/cobra"

	"github.com/kacy/cryptonet"
	"github.com/kacy/cryptonet/imaging"
)

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Compare faces and embeddings without starting the server",
	Long: `Compare opens a session, runs a single comparison and prints the engine
result as JSON.

Embedding files hold the raw bytes returned by a previous enroll or predict.
Images may be in any supported format: png, jpeg, gif, bmp, tiff, webp
or netpbm.`,
}

var compareEmbeddingsCmd = &cobra.Command{
	Use:   "embeddings <embedding-a> <embedding-b>",
	Short: "Compare two stored embeddings",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read embedding: %w", err)
		}
		b, err := os.ReadFile(args[1])
		if err != nil {
			return fmt.Errorf("failed to read embedding: %w", err)
		}
		return oneShot(cmd, func(ctx context.Context, c *cryptonet.Client) (string, error) {
			return c.CompareEmbeddings(ctx, a, b)
		})
	},
}

var compareFaceCmd = &cobra.Command{
	Use:   "face <selfie> <embedding>",
	Short: "Compare a selfie with a stored embedding",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		selfie, err := readImage(args[0])
		if err != nil {
			return err
		}
		embedding, err := os.ReadFile(args[1])
		if err != nil {
			return fmt.Errorf("failed to read embedding: %w", err)
		}

		cfg := cryptonet.NewFaceAndEmbeddingConfig()
		skip, _ := cmd.Flags().GetBool("skip-antispoof")
		cfg.SkipAntispoof = cryptonet.Bool(skip)
		return oneShot(cmd, func(ctx context.Context, c *cryptonet.Client) (string, error) {
			return c.CompareFaceAndEmbedding(ctx, selfie, embedding, cfg)
		})
	},
}

var compareDocumentCmd = &cobra.Command{
	Use:   "document <document> <selfie>",
	Short: "Compare the face on an identity document with a selfie",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		document, err := readImage(args[0])
		if err != nil {
			return err
		}
		selfie, err := readImage(args[1])
		if err != nil {
			return err
		}

		cfg := cryptonet.NewDocumentAndFaceConfig()
		skip, _ := cmd.Flags().GetBool("skip-antispoof")
		cfg.SkipAntispoof = cryptonet.Bool(skip)
		return oneShot(cmd, func(ctx context.Context, c *cryptonet.Client) (string, error) {
			return c.CompareDocumentAndFace(ctx, document, selfie, cfg)
		})
	},
}

func init() {
	rootCmd.AddCommand(compareCmd)
	compareCmd.AddCommand(compareEmbeddingsCmd, compareFaceCmd, compareDocumentCmd)

	compareFaceCmd.Flags().Bool("skip-antispoof", true, "skip the liveness check")
	compareDocumentCmd.Flags().Bool("skip-antispoof", true, "skip the liveness check")
}

func readImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	img, _, err := imaging.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}
