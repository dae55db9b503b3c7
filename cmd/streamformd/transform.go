// Copyright 2024 CONJUGATE Project
// Licensed under the Apache License, Version 2.0

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/conjugate/streamform/internal/config"
	streamio "github.com/conjugate/streamform/internal/io"
	"github.com/conjugate/streamform/internal/transform"
)

func newTransformCmd(configPath *string) *cobra.Command {
	var dump bool

	cmd := &cobra.Command{
		Use:   "transform <in.xml> <out.xml>",
		Short: "Run a single logical-to-physical transform",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath, nil)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg.LogLevel)
			if err != nil {
				return err
			}
			defer logger.Sync()

			return runTransformFile(args[0], args[1], cfg.Transform, dump, logger)
		},
	}
	cmd.Flags().BoolVar(&dump, "dump", false, "print the logical and physical model trees to stderr")
	return cmd
}

func runTransformFile(inPath, outPath string, topts config.TransformOptions, dump bool, logger *zap.Logger) error {
	in, err := os.Open(inPath)
	if err != nil {
		return fmt.Errorf("streamformd: open %s: %w", inPath, err)
	}
	defer in.Close()

	app, err := streamio.DecodeLogicalApp(in)
	if err != nil {
		return fmt.Errorf("streamformd: decode %s: %w", inPath, err)
	}

	opts := transform.Options{
		AllowUnresolvedIntrinsics:  topts.AllowUnresolvedIntrinsics,
		DisableThreadedPortPruning: topts.DisableThreadedPortPruning,
	}
	logger.Info("starting transform", zap.String("input", inPath))

	lm, pm, physApp, err := transform.RunWithModels(app, opts)
	if err != nil {
		logger.Error("transform failed", zap.Error(err))
		return err
	}

	if dump {
		if lm != nil {
			fmt.Fprintln(os.Stderr, "--- logical model ---")
			lm.Dump(os.Stderr, 0)
		}
		if pm != nil {
			fmt.Fprintln(os.Stderr, "--- physical model ---")
			pm.Dump(os.Stderr, 0)
		}
	}

	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("streamformd: create %s: %w", outPath, err)
	}
	defer out.Close()

	if err := streamio.EncodePhysicalApp(out, physApp); err != nil {
		return fmt.Errorf("streamformd: encode %s: %w", outPath, err)
	}
	logger.Info("transform complete",
		zap.Int("physical_operators", len(physApp.Operators)),
		zap.Int("pes", len(physApp.PEs)))
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("streamformd: parse log level %q: %w", level, err)
	}
	cfg.Level = lvl
	return cfg.Build()
}
