// Command imginfo prints the decoded geometry of image files handled by
// the engine's codec: PNG, baseline JPEG, TGA, and BMP.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	imagecodec "github.com/Pyramid-Systems-Inc/Pyramid-Engine-sub000"
)

func main() {
	var verbose bool

	root := &cobra.Command{
		Use:   "imginfo <file>...",
		Short: "Print dimensions and channel layout of image files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := zerolog.Nop()
			if verbose {
				logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
					Level(zerolog.DebugLevel).
					With().Timestamp().Logger()
			}
			opts := &imagecodec.DecodeOptions{Logger: &logger}

			failed := false
			for _, path := range args {
				img, err := imagecodec.LoadWithOptions(path, opts)
				if err != nil {
					fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
					failed = true
					continue
				}
				fmt.Printf("%s: %dx%d, %d channels, %d bytes\n",
					path, img.Width, img.Height, img.Channels, len(img.Pix))
			}
			if failed {
				return fmt.Errorf("some files failed to decode")
			}
			return nil
		},
	}

	root.Flags().BoolVarP(&verbose, "verbose", "v", false, "log chunk/marker details while decoding")
	root.SilenceUsage = true

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
