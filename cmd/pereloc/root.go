package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose  bool
	jsonOut  bool
	logLevel string
	mapped   bool
)

var rootCmd = &cobra.Command{
	Use:   "pereloc",
	Short: "Inspect and rebase the relocation table of PE images",
	Long: `pereloc walks the base relocation table of Windows PE images. It can
validate the table, check which base an image is currently relocated to, and
rewrite the image for a new base address.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug diagnostics")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Diagnostics level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().
		BoolVar(&mapped, "mapped", false, "Input is an already mapped image dump, not a PE file")
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newLogger() hclog.Logger {
	level := hclog.LevelFromString(logLevel)
	if level == hclog.NoLevel {
		level = hclog.Warn
	}
	if verbose {
		level = hclog.Debug
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:   "pereloc",
		Level:  level,
		Output: os.Stderr,
	})
}

// parseBase accepts a decimal or 0x prefixed address.
func parseBase(s string) (uint64, error) {
	if s == "" {
		return 0, errors.New("empty base address")
	}
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid base address %q", s)
	}
	return v, nil
}

// printJSON outputs data as JSON
func printJSON(w io.Writer, v interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
