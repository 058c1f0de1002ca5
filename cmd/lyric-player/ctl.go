package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"lyric-player/internal/ipc"
)

var (
	ctlTimeout time.Duration
	errFailed  = errors.New("intent failed")
)

var ctlCmd = &cobra.Command{
	Use:   "ctl <intent> [args...]",
	Short: "向守护进程发送播放指令",
	Long: `向运行中的守护进程发送一条播放指令并打印回复。

可用指令: play N, next, prev, toggle, pause, seek S, volume V, mode [MODE],
load-playlist ID, load-tracks ID,ID, add ID, add-next ID, remove N, clear,
compact, lyrics TYPE,TYPE, status`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		ctx, cancel := context.WithTimeout(context.Background(), ctlTimeout)
		defer cancel()

		reply, err := ipc.Send(ctx, cfg.App.SocketPath, strings.Join(args, " "))
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), reply)
		if strings.HasPrefix(reply, "error:") {
			return errFailed
		}
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "持续打印当前歌词行",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		out := cmd.OutOrStdout()
		return ipc.Subscribe(ctx, cfg.App.SocketPath, func(line string) {
			fmt.Fprintln(out, line)
		})
	},
}

func init() {
	// play/load 会等到歌曲开始播放才回复
	ctlCmd.Flags().DurationVarP(&ctlTimeout, "timeout", "t", 30*time.Second, "how long to wait for the reply")
	rootCmd.AddCommand(ctlCmd, watchCmd)
}
