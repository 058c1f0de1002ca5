package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"lyric-player/internal/ipc"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "以表格显示当前播放状态",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		ctx, cancel := context.WithTimeout(context.Background(), ctlTimeout)
		defer cancel()

		reply, err := ipc.Send(ctx, cfg.App.SocketPath, "status")
		if err != nil {
			return err
		}
		if statusJSON {
			fmt.Fprintln(cmd.OutOrStdout(), reply)
			return nil
		}
		if strings.HasPrefix(reply, "error:") {
			fmt.Fprintln(cmd.OutOrStdout(), reply)
			return errFailed
		}
		var st ipc.Status
		if err := json.Unmarshal([]byte(reply), &st); err != nil {
			return fmt.Errorf("failed to decode status reply: %w", err)
		}
		renderStatus(cmd.OutOrStdout(), st)
		return nil
	},
}

func renderStatus(w io.Writer, st ipc.Status) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)

	state := text.FgHiBlack.Sprint("stopped")
	switch {
	case st.Loading:
		state = text.FgYellow.Sprint("loading")
	case st.Playing:
		state = text.FgGreen.Sprint("playing")
	case st.Current != nil:
		state = "paused"
	}

	track := "-"
	if st.Current != nil {
		track = st.Current.Title
		if st.Current.ArtistDisplay != "" {
			track = st.Current.ArtistDisplay + " - " + track
		}
	}
	lyric := "-"
	if st.Lyric != nil {
		lyric = st.Lyric.Text
		if st.Lyric.Translation != "" {
			lyric += " / " + st.Lyric.Translation
		}
	}

	t.AppendRows([]table.Row{
		{"Track", track},
		{"State", state},
		{"Position", st.Position + " / " + st.Duration},
		{"Queue", fmt.Sprintf("%d / %d", st.Index+1, st.Length)},
		{"Mode", st.Mode},
		{"Volume", fmt.Sprintf("%.0f%%", st.Volume*100)},
		{"Compact", st.Compact},
		{"Lyric", lyric},
	})
	t.Render()
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print the raw JSON reply")
	rootCmd.AddCommand(statusCmd)
}
