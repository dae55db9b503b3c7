// Copyright 2024 CONJUGATE Project
// Licensed under the Apache License, Version 2.0

// Command streamformd is the logical-to-physical application transformer,
// usable either as a one-shot CLI (`streamformd transform`) or as a daemon
// (`streamformd serve`) fronting the same transform.Run call with an HTTP
// and gRPC surface.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "streamformd",
		Short: "Logical-to-physical streaming application transformer",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")

	root.AddCommand(newTransformCmd(&configPath))
	root.AddCommand(newServeCmd(&configPath))
	return root
}
