package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/perchd/perch/db"
	"github.com/perchd/perch/stt"
	"github.com/perchd/perch/www"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the transcription server",
	Long: `Start the HTTP server: OpenAI-compatible one-shot transcription
plus the /v1/realtime websocket for streaming sessions.`,
	Run: runServe,
}

func init() {
	serveCmd.Flags().
		StringP("listen", "l", ":8000", "Address to listen on")
	serveCmd.Flags().
		String("model", "", "Path to the Parakeet model directory")
	serveCmd.Flags().
		String("engine", "", "Engine backend: mlx or stub (default mlx when a model is set)")
	serveCmd.Flags().
		String("python", "python3", "Python interpreter for the MLX worker")
	serveCmd.Flags().
		Duration("idle-timeout", 0, "Drop realtime sessions idle for this long (0 disables)")
	serveCmd.Flags().
		Int("left-context", 256, "Streaming decoder left context size")
	serveCmd.Flags().
		Int("right-context", 256, "Streaming decoder right context size")

	viper.BindPFlag("listen_addr", serveCmd.Flags().Lookup("listen"))
	viper.BindPFlag("model_path", serveCmd.Flags().Lookup("model"))
	viper.BindPFlag("engine", serveCmd.Flags().Lookup("engine"))
	viper.BindPFlag("python_bin", serveCmd.Flags().Lookup("python"))
	viper.BindPFlag("idle_timeout", serveCmd.Flags().Lookup("idle-timeout"))
	viper.BindPFlag("left_context", serveCmd.Flags().Lookup("left-context"))
	viper.BindPFlag("right_context", serveCmd.Flags().Lookup("right-context"))
}

func runServe(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	engine, err := stt.New(stt.Options{
		Engine:    viper.GetString("engine"),
		ModelPath: viper.GetString("model_path"),
		PythonBin: viper.GetString("python_bin"),
	}, logger.WithPrefix("stt"))
	if err != nil {
		logger.Fatal("start engine", "error", err)
	}
	defer engine.Close()

	var store www.Store
	if dsn := viper.GetString("database_url"); dsn != "" {
		pg, err := db.Open(ctx, dsn, logger.WithPrefix("data"))
		if err != nil {
			logger.Fatal("open session store", "error", err)
		}
		defer pg.Close()
		store = pg
	}

	server := www.New(www.Config{
		Engine: engine,
		Window: stt.StreamConfig{
			LeftContext:  viper.GetInt("left_context"),
			RightContext: viper.GetInt("right_context"),
		},
		Store:       store,
		Logger:      logger.WithPrefix("http"),
		IdleTimeout: viper.GetDuration("idle_timeout"),
	})

	if err := server.Serve(ctx, viper.GetString("listen_addr")); err != nil {
		logger.Fatal("server stopped", "error", err)
	}
}
