package main

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	pe "github.com/wanglei-coder/pereloc"
)

var verifyBase string

func init() {
	cmd := newVerifyCmd()
	cmd.Flags().StringVar(&verifyBase, "base", "", "Candidate base address (required)")
	_ = cmd.MarkFlagRequired("base")
	rootCmd.AddCommand(cmd)
}

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <file> --base <address>",
		Short: "Check whether an image is relocated to a given base",
		Long: `The verify command decodes every relocated field of the image relative
to the candidate base and checks that it points inside the image.

Example:
  pereloc verify dump.bin --mapped --base 0x7ff700000000`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(cmd.OutOrStdout(), args[0])
		},
	}
}

func runVerify(w io.Writer, path string) error {
	base, err := parseBase(verifyBase)
	if err != nil {
		return err
	}
	image, _, err := loadImage(path)
	if err != nil {
		return err
	}

	r := pe.NewRelocator(newLogger())
	verr := r.VerifyBase(image, base)

	result := map[string]interface{}{
		"file":      path,
		"base":      fmt.Sprintf("0x%x", base),
		"relocated": verr == nil,
	}
	if verr != nil {
		result["error"] = verr.Error()
	}

	if jsonOut {
		if err := printJSON(w, result); err != nil {
			return err
		}
	} else if verr == nil {
		fmt.Fprintf(w, "%s is relocated to 0x%x\n", path, base)
	}

	if verr != nil {
		return errors.WithMessagef(verr, "%s is not relocated to 0x%x", path, base)
	}
	return nil
}
