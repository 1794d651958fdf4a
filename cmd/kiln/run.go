package main

import (
	"context"
	"fmt"
	"os"

	"github.com/openfluke/webgpu/wgpu"
	"github.com/urfave/cli/v3"

	"github.com/kiln-ml/kiln/internal/device"
	"github.com/kiln-ml/kiln/internal/plan"
)

func runCmd() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "execute a YAML launch plan",
		ArgsUsage: "<plan.yaml>",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "capacity",
				Usage: "dispatches per command buffer (overrides config and plan)",
			},
			&cli.BoolFlag{
				Name:  "no-pipeline-cache",
				Usage: "rebuild the compute pipeline on every launch",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return fmt.Errorf("run takes exactly one plan file, got %d args", cmd.Args().Len())
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			log := buildLogger(cmd, cfg)

			p, err := plan.Load(cmd.Args().First())
			if err != nil {
				return err
			}

			opts := device.Options{
				BatchCapacity:        cfg.BatchCapacity,
				PowerPreference:      powerPreference(cfg.Power),
				DisablePipelineCache: cmd.Bool("no-pipeline-cache"),
				Logger:               log,
			}
			if n := cmd.Int("capacity"); n > 0 {
				opts.BatchCapacity = int(n)
				p.Capacity = 0
			}

			r, err := plan.NewRunner(p, opts, os.Stdout)
			if err != nil {
				return err
			}
			defer r.Close()
			return r.Run(p)
		},
	}
}

func powerPreference(s string) wgpu.PowerPreference {
	switch s {
	case "low-power":
		return wgpu.PowerPreferenceLowPower
	case "high-performance":
		return wgpu.PowerPreferenceHighPerformance
	default:
		return wgpu.PowerPreferenceUndefined
	}
}
