package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"dream-push-backend/internal/pusherr"
)

func newProcessCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "process",
		Short: "Run a single processing pass and print its summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := loadApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			result, err := a.processor.ProcessOnce(ctx)
			if err != nil {
				a.log.Error("processing pass failed", zap.Stringer("kind", pusherr.KindOf(err)), zap.Error(err))
				return err
			}

			out, err := json.Marshal(result)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}
