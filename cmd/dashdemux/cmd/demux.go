package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/go-dash/dashdemux/internal/config"
	"github.com/go-dash/dashdemux/internal/dash"
	"github.com/go-dash/dashdemux/internal/nesteddemux"
)

var demuxCount int

var demuxCmd = &cobra.Command{
	Use:   "demux <mpd-url>",
	Short: "Demux an MPEG-DASH presentation and print packet headers",
	Args:  cobra.ExactArgs(1),
	RunE:  runDemux,
}

func init() {
	demuxCmd.Flags().IntVar(&demuxCount, "count", 20, "number of packets to print before stopping (0 = unbounded)")
	rootCmd.AddCommand(demuxCmd)
}

func runDemux(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	client, err := newClient(cfg)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	mc, err := dash.Parse(ctx, client, args[0], 0, 0)
	if err != nil {
		return fmt.Errorf("parsing manifest: %w", err)
	}

	d := dash.NewDemux(mc, nesteddemux.Factory)

	for n := 0; demuxCount == 0 || n < demuxCount; n++ {
		pkt, err := d.ReadPacket(ctx)
		if errors.Is(err, io.EOF) {
			fmt.Println("end of stream")
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading packet: %w", err)
		}
		fmt.Printf("%s pts=%d dts=%d size=%d key=%v seg=%d\n",
			pkt.RepresentationID, pkt.PTS, pkt.DTS, len(pkt.Data), pkt.KeyFrame, pkt.SegNumber)
	}
	return nil
}
