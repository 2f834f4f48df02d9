// Command test-server runs the in-memory payments API for local trial runs:
//
//	go run ./scripts/test-server --addr :9999
//	paybench run
package main

import (
	"net/http"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/wesleyorama2/paybench/internal/mockapi"
)

func main() {
	var (
		addr          string
		delay         time.Duration
		fallbackEvery int
	)

	cmd := &cobra.Command{
		Use:   "test-server",
		Short: "In-memory payments API for local paybench runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logrus.New()
			api := mockapi.New(mockapi.Config{
				SummaryDelay:  delay,
				FallbackEvery: fallbackEvery,
				Logger:        logger,
			})

			server := &http.Server{
				Addr:              addr,
				Handler:           api.Handler(),
				ReadTimeout:       5 * time.Second,
				WriteTimeout:      5 * time.Second,
				IdleTimeout:       120 * time.Second,
				MaxHeaderBytes:    1 << 20,
				ReadHeaderTimeout: 2 * time.Second,
			}

			logger.WithField("addr", addr).Info("Starting payments test server")
			return server.ListenAndServe()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":9999", "Listen address")
	cmd.Flags().DurationVar(&delay, "summary-delay", 0, "Extra latency added to every summary response")
	cmd.Flags().IntVar(&fallbackEvery, "fallback-every", 0, "Route every Nth payment to the fallback processor")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
