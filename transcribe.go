package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/perchd/perch/client"
)

var transcribeCmd = &cobra.Command{
	Use:   "transcribe <file.wav>",
	Short: "Transcribe a WAV file in one shot",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		language, _ := cmd.Flags().GetString("language")
		model, _ := cmd.Flags().GetString("model")
		output, _ := cmd.Flags().GetString("output")

		c := client.New(viper.GetString("server"))
		result, err := c.TranscribeFile(cmd.Context(), args[0], client.TranscribeOptions{
			Model:    model,
			Language: language,
		})
		if err != nil {
			logger.Fatal("transcribe", "error", err)
		}

		logger.Debug("transcribed",
			"language", result.Language,
			"duration", result.Duration)

		if output != "" {
			if err := os.WriteFile(output, []byte(result.Text+"\n"), 0o644); err != nil {
				logger.Fatal("write transcript", "error", err)
			}
			logger.Info("transcript written", "path", output)
			return
		}
		fmt.Println(result.Text)
	},
}

func init() {
	transcribeCmd.Flags().StringP("language", "g", "", "Language hint")
	transcribeCmd.Flags().StringP("model", "m", "", "Model name to request")
	transcribeCmd.Flags().StringP("output", "o", "", "Write the transcript to a file")
}
