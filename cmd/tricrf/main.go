// Command tricrf trains and applies triangular-chain CRF, linear-chain
// CRF, and MaxEnt sequence-labeling models from a single "key = value"
// configuration file, in the spirit of kshedden-hmm's estimate command
// but generalized from a fixed HMM shape to a config-driven model type.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/spokenlu/tricrf/config"
)

func main() {
	root := &cobra.Command{
		Use:          "tricrf <config>",
		Short:        "Train and apply triangular-chain CRF sequence labeling models",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(args[0])
			if err != nil {
				return runError{code: 1, err: err}
			}
			if err := run(cfg); err != nil {
				return err
			}
			return nil
		},
	}

	if err := root.Execute(); err != nil {
		var re runError
		if asRunError(err, &re) {
			fmt.Fprintln(os.Stderr, re.err)
			os.Exit(re.code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runError tags an error with the exit code it should produce, per the
// 0/1/2 contract: 1 for configuration/data errors, 2 for optimizer
// failure. Errors that aren't tagged (cobra usage errors, missing
// argument) fall through to exit code 1 in main.
type runError struct {
	code int
	err  error
}

func (e runError) Error() string { return e.err.Error() }

func asRunError(err error, out *runError) bool {
	re, ok := err.(runError)
	if ok {
		*out = re
	}
	return ok
}
