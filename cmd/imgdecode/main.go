// Command imgdecode decodes an image with the engine codec and writes
// the result as a PNG file, for eyeballing decoder output. Encoding
// uses the standard library; decoding always goes through this module.
package main

import (
	"fmt"
	"image"
	"image/png"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	imagecodec "github.com/Pyramid-Systems-Inc/Pyramid-Engine-sub000"
)

func main() {
	var (
		output  string
		verbose bool
		precise bool
	)

	root := &cobra.Command{
		Use:   "imgdecode <file>",
		Short: "Decode an image and re-encode it as PNG",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := zerolog.Nop()
			if verbose {
				logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
					Level(zerolog.DebugLevel).
					With().Timestamp().Logger()
			}
			opts := &imagecodec.DecodeOptions{Logger: &logger, PreciseColor: precise}

			img, err := imagecodec.LoadWithOptions(args[0], opts)
			if err != nil {
				return err
			}

			out := image.NewNRGBA(image.Rect(0, 0, img.Width, img.Height))
			for i := 0; i < img.Width*img.Height; i++ {
				out.Pix[i*4+0] = img.Pix[i*img.Channels+0]
				out.Pix[i*4+1] = img.Pix[i*img.Channels+1]
				out.Pix[i*4+2] = img.Pix[i*img.Channels+2]
				if img.Channels == 4 {
					out.Pix[i*4+3] = img.Pix[i*img.Channels+3]
				} else {
					out.Pix[i*4+3] = 255
				}
			}

			f, err := os.Create(output)
			if err != nil {
				return err
			}
			defer f.Close()

			if err := png.Encode(f, out); err != nil {
				return fmt.Errorf("encode %s: %w", output, err)
			}
			logger.Info().Str("output", output).Msg("written")
			return nil
		},
	}

	root.Flags().StringVarP(&output, "output", "o", "out.png", "output PNG path")
	root.Flags().BoolVarP(&verbose, "verbose", "v", false, "log chunk/marker details while decoding")
	root.Flags().BoolVar(&precise, "precise-color", false, "use the floating-point YCbCr converter")
	root.SilenceUsage = true

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
