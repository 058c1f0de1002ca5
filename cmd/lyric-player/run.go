package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"lyric-player/internal/app"
	"lyric-player/internal/logging"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "启动播放守护进程",
	Long:  `启动播放守护进程：驱动 mpv 播放，同步歌词，并在 unix socket 上接收播放指令`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		if closer := logging.Setup(cfg.Log); closer != nil {
			defer closer.Close()
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := app.New(ctx, cfg)
		if err != nil {
			log.Error().Err(err).Msg("Failed to initialize")
			return err
		}
		return a.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
