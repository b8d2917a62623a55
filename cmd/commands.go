package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"solrtmp/internal/solrtmp"
	"solrtmp/pkg/rtmp"
)

func connectCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "connect [url]",
		Short: "Connect to an application and stay connected",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, _, cleanup, err := openSession(cmd.Context(), *configPath, args)
			if err != nil {
				return err
			}
			defer cleanup()

			<-ctx.Done()
			slog.Info("Shutting down")
			return nil
		},
	}
}

func playCmd(configPath *string) *cobra.Command {
	var (
		output string
		stream string
		start  int
		length int
	)

	cmd := &cobra.Command{
		Use:   "play [url]",
		Short: "Play a stream, optionally recording it to an FLV file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, s, cleanup, err := openSession(cmd.Context(), *configPath, args)
			if err != nil {
				return err
			}
			defer cleanup()

			name, err := s.streamName(stream)
			if err != nil {
				return err
			}

			var w io.Writer = io.Discard
			if output != "" {
				f, err := createOutput(output)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			recorder := solrtmp.NewRecorder(w)
			client := s.app.Client()
			client.SetStreamEventDispatcher(recorder)

			streamID, err := s.app.CreateStream(ctx)
			if err != nil {
				return err
			}
			client.Play(streamID, name, start, length)
			slog.Info("Playing", "stream", name, "streamId", streamID)

			<-ctx.Done()
			audio, video, data := recorder.Counts()
			slog.Info("Playback finished", "audio", audio, "video", video, "data", data)
			client.CloseStream(streamID)
			return recorder.Err()
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Record the stream to this FLV file")
	cmd.Flags().StringVarP(&stream, "stream", "s", "", "Stream name (default from the url)")
	cmd.Flags().IntVar(&start, "start", -2, "Start position in seconds, -2 for live or recorded, -1 for live only")
	cmd.Flags().IntVar(&length, "len", -1, "Duration to play, -1 until the end")
	return cmd
}

func publishCmd(configPath *string) *cobra.Command {
	var (
		stream   string
		mode     string
		realtime bool
	)

	cmd := &cobra.Command{
		Use:   "publish [url] <file.flv>",
		Short: "Publish an FLV file to a stream",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			file := args[len(args)-1]
			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("open %s: %w", file, err)
			}
			defer f.Close()

			ctx, s, cleanup, err := openSession(cmd.Context(), *configPath, args[:len(args)-1])
			if err != nil {
				return err
			}
			defer cleanup()

			name, err := s.streamName(stream)
			if err != nil {
				return err
			}
			streamID, err := s.app.CreateStream(ctx)
			if err != nil {
				return err
			}

			client := s.app.Client()
			started := make(chan struct{})
			client.Publish(streamID, name, mode, rtmp.NetStreamEventHandlerFunc(func(n *rtmp.Notify) {
				slog.Info("Publish status", "streamId", streamID, "status", n.Args)
				select {
				case <-started:
				default:
					close(started)
				}
			}))

			select {
			case <-started:
			case <-ctx.Done():
				return ctx.Err()
			}

			sent, err := solrtmp.PublishFile(ctx, client, streamID, f, realtime)
			slog.Info("Publishing finished", "stream", name, "tags", sent)
			client.Unpublish(streamID)
			client.DeleteStream(streamID)
			return err
		},
	}

	cmd.Flags().StringVarP(&stream, "stream", "s", "", "Stream name (default from the url)")
	cmd.Flags().StringVar(&mode, "mode", "live", "Publish mode: live, record or append")
	cmd.Flags().BoolVar(&realtime, "realtime", true, "Pace tags by their timestamps")
	return cmd
}
