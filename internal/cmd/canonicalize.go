package cmd

import (
	"fmt"
	"image/png"
	"os"

	"github.com/spf13/cobra"

	"github.com/kacy/cryptonet/imaging"
)

var canonicalizeCmd = &cobra.Command{
	Use:   "canonicalize <input> <output.png>",
	Short: "Write the frame an image becomes before it reaches the engine",
	Long: `Canonicalize resizes an image to the engine resolution, converts it to
opaque RGBA and writes the result as PNG. Useful for checking what the
engine actually sees.`,
	Args: cobra.ExactArgs(2),
	RunE: runCanonicalize,
}

func init() {
	rootCmd.AddCommand(canonicalizeCmd)
	canonicalizeCmd.Flags().Int("size", imaging.CanonicalSize, "side length in pixels")
}

func runCanonicalize(cmd *cobra.Command, args []string) error {
	size, _ := cmd.Flags().GetInt("size")

	img, err := readImage(args[0])
	if err != nil {
		return err
	}
	frame, err := imaging.Canonicalize(img, size)
	if err != nil {
		return err
	}
	rgba, err := imaging.FrameImage(frame)
	if err != nil {
		return err
	}

	out, err := os.Create(args[1])
	if err != nil {
		return fmt.Errorf("failed to create output: %w", err)
	}
	if err := png.Encode(out, rgba); err != nil {
		out.Close()
		return fmt.Errorf("failed to encode output: %w", err)
	}
	if err := out.Close(); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "wrote %dx%d frame to %s\n", frame.Width, frame.Height, args[1])
	return nil
}
