package main

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/kiln-ml/kiln/internal/device"
)

func probeCmd() *cli.Command {
	return &cli.Command{
		Name:  "probe",
		Usage: "report the default GPU adapter and its compute limits",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			rep, err := device.Probe()
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(rep, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
}
