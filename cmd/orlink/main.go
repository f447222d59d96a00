package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/hmoravej/orlink/config"
	"github.com/hmoravej/orlink/internal/server"
)

func main() {
	var root = &cobra.Command{Use: "orlink"}

	var serveAddr string
	var cfgPath string
	var serve = &cobra.Command{
		Use:   "serve",
		Short: "Run HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			if serveAddr == "" {
				serveAddr = os.Getenv("ORLINK_HTTP_ADDR")
			}
			return server.Run(cfg, serveAddr)
		},
	}
	serve.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
	serve.Flags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	root.AddCommand(serve)
	if err := root.Execute(); err != nil {
		log.Fatal(err)
	}
}
