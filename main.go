package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var logger *log.Logger

var rootCmd = &cobra.Command{
	Use:   "perch",
	Short: "perch is an OpenAI-compatible speech-to-text server",
	Long: `perch serves a Parakeet-family speech model over OpenAI-compatible
REST endpoints and a realtime websocket for streaming transcription.`,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(transcribeCmd)
	rootCmd.AddCommand(streamCmd)
	rootCmd.AddCommand(sessionsCmd)

	rootCmd.PersistentFlags().
		String("server", "http://localhost:8000", "Base URL of a running perch server")
	rootCmd.PersistentFlags().
		String("database-url", "", "Postgres URL for session persistence (optional)")
	rootCmd.PersistentFlags().
		Bool("debug", false, "Enable debug logging")

	viper.BindPFlag("server", rootCmd.PersistentFlags().Lookup("server"))
	viper.BindPFlag("database_url", rootCmd.PersistentFlags().Lookup("database-url"))
	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
}

func initConfig() {
	viper.SetConfigName("perch")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			fmt.Printf("Error reading config file: %s\n", err)
		}
	}

	logger = newLogger()
}

func newLogger() *log.Logger {
	l := log.New(os.Stderr)
	if viper.GetBool("debug") {
		l.SetLevel(log.DebugLevel)
	}

	styles := log.DefaultStyles()
	styles.Prefix = styles.Prefix.Bold(false)
	styles.Message = styles.Message.Bold(true)
	styles.Key = styles.Key.
		Bold(false).
		Foreground(lipgloss.Color("#ff8800"))
	l.SetStyles(styles)

	return l
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
