package main

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/perchd/perch/client"
)

var (
	partialStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))
	finalStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFDF5"))
)

var streamCmd = &cobra.Command{
	Use:   "stream <file.wav>",
	Short: "Stream a WAV file over the realtime endpoint",
	Long: `Stream a WAV file to /v1/realtime in timed chunks and print the
decoder's partial hypotheses as they arrive, then the final transcript.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		chunk, _ := cmd.Flags().GetDuration("chunk")

		c := client.New(viper.GetString("server"))
		result, err := c.StreamFile(
			cmd.Context(),
			args[0],
			chunk,
			func(e client.Event) {
				switch e.Type {
				case "transcription":
					if e.Final {
						// The final transcript is printed below, once
						// the stream has settled.
						return
					}
					fmt.Println(partialStyle.Render(e.Text))
				case "error":
					logger.Warn("server error", "message", e.Message)
				}
			},
		)
		if err != nil {
			logger.Fatal("stream", "error", err)
		}

		logger.Debug("stream finished", "audio", result.Audio)
		fmt.Println(finalStyle.Render(result.Text))
	},
}

func init() {
	streamCmd.Flags().
		Duration("chunk", 250*time.Millisecond, "How much audio to send per message")
}
