package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/inodb/pgs-harmonizer/internal/build"
	"github.com/inodb/pgs-harmonizer/internal/liftover"
)

func newDownloadChainCmd() *cobra.Command {
	var (
		target string
		dir    string
	)

	cmd := &cobra.Command{
		Use:   "download-chain <source-build>",
		Short: "Download a UCSC liftover chain file",
		Long: `Download the UCSC chain file that lifts coordinates from the source build
to the target build. Files are stored in chains.dir (default
~/.pgs-harmonizer/chains) and reused by the harmonize command.`,
		Example: `  pgs-harmonizer download-chain GRCh37
  pgs-harmonizer download-chain NCBI36 --target GRCh37
  pgs-harmonizer download-chain hg19 --dir /data/chains`,
		Args: usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			pair, err := build.Resolve(args[0], target)
			if err != nil {
				return usageError{err}
			}
			if pair.Identity() {
				return usageError{fmt.Errorf("source and target build are both %s", pair.Source)}
			}
			if dir == "" {
				dir = viper.GetString("chains.dir")
			}

			src := liftover.NewFileChainSource(dir)
			src.BaseURL = viper.GetString("chains.url")
			src.Logger = logger
			if err := src.Fetch(cmd.Context(), pair); err != nil {
				return fmt.Errorf("downloading %s: %w", liftover.ChainFileName(pair), err)
			}

			logger.Info("chain file ready",
				zap.String("pair", pair.String()),
				zap.String("path", src.Path(pair)))
			fmt.Fprintln(cmd.OutOrStdout(), src.Path(pair))
			return nil
		},
	}

	cmd.Flags().StringVarP(&target, "target", "t", "GRCh38", "target genome build")
	cmd.Flags().StringVar(&dir, "dir", "", "output directory (default: chains.dir)")

	return cmd
}
