// Copyright (c) 2024 The Brainpluck Contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/brainpluck/brainpluck/internal/compiler"
)

var verbose bool

func main() {
	root := &cobra.Command{
		Use:     "brainpluck",
		Short:   "HIR->SAM->Brainfuck compiler and Brainfuck->Wasm JIT",
		Version: compiler.Version,
		PersistentPreRun: func(*cobra.Command, []string) {
			if verbose {
				logrus.SetLevel(logrus.DebugLevel)
			}
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(compileCmd(), debugCmd(), jitCmd(), runCmd())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func readFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	return string(data), err
}

func sibling(path, ext string) string {
	base := strings.TrimSuffix(path, filepath.Ext(path))
	return base + ext
}

func compileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compile <file.hir>",
		Short: "compile HIR to a SAM listing and a Brainfuck program",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := readFile(args[0])
			if err != nil {
				return err
			}
			res, err := compiler.Compile(src)
			if err != nil {
				return err
			}
			samPath := sibling(args[0], ".sam")
			bfPath := sibling(args[0], ".bf")
			if err := os.WriteFile(samPath, []byte(res.SAM), 0o644); err != nil {
				return err
			}
			if err := os.WriteFile(bfPath, []byte(res.BF), 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s and %s\n", samPath, bfPath)
			return nil
		},
	}
}

func debugCmd() *cobra.Command {
	var input string
	var trace bool
	cmd := &cobra.Command{
		Use:   "debug <file.hir>",
		Short: "lower to SAM and interpret directly, bypassing Brainfuck",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := readFile(args[0])
			if err != nil {
				return err
			}
			res, err := compiler.DebugProgram(src, input, trace)
			if err != nil {
				return err
			}
			for _, line := range res.Trace {
				fmt.Fprintln(cmd.ErrOrStderr(), line)
			}
			fmt.Fprint(cmd.OutOrStdout(), res.Output)
			return nil
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "program input")
	cmd.Flags().BoolVar(&trace, "trace", false, "print one line per executed instruction")
	return cmd
}

func jitCmd() *cobra.Command {
	var outPath string
	var wat bool
	cmd := &cobra.Command{
		Use:   "jit <file.bf>",
		Short: "compile Brainfuck to a Wasm module",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := readFile(args[0])
			if err != nil {
				return err
			}
			if wat {
				text, err := compiler.CompileBFToWat(src)
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), text)
				return nil
			}
			bin, err := compiler.CompileBFToWasm(src)
			if err != nil {
				return err
			}
			if outPath == "" {
				outPath = sibling(args[0], ".wasm")
			}
			if err := os.WriteFile(outPath, bin, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", outPath)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outPath, "output", "o", "", "output path (default: <file>.wasm)")
	cmd.Flags().BoolVar(&wat, "wat", false, "print the text format instead of writing a binary")
	return cmd
}

func runCmd() *cobra.Command {
	var input string
	cmd := &cobra.Command{
		Use:   "run <file.bf>",
		Short: "run Brainfuck on the in-host reference interpreter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := readFile(args[0])
			if err != nil {
				return err
			}
			out, err := compiler.RunBF(src, input)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "program input")
	return cmd
}
