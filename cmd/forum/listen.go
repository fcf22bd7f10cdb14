package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	forum "github.com/rtforum/forum-sdk-go"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var listenMetricsAddr string

func init() {
	listenCmd.Flags().StringVar(&listenMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	rootCmd.AddCommand(listenCmd)
}

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Print realtime events until interrupted",
	Long:  "Connect to the forum and print every message, presence change and typing indicator as it arrives.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		log, err := newLogger()
		if err != nil {
			return err
		}
		defer log.Sync()

		reg := prometheus.NewRegistry()
		ls, err := newLiveSession(cfg, log, forum.NewMetrics(reg))
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		ls.rt.OnMessage(func(m forum.Message) {
			fmt.Fprintf(out, "message   #%d -> #%d: %s\n", m.SenderID, m.ReceiverID, m.Content)
		})
		ls.rt.OnStatusChange(func(s forum.OnlineStatus) {
			fmt.Fprintf(out, "presence  #%d %s\n", s.UserID, presence(s.IsOnline))
		})
		ls.rt.OnTypingStatus(func(s forum.TypingStatus) {
			fmt.Fprintf(out, "typing    #%d %t\n", s.UserID, s.IsTyping)
		})

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := ls.start(ctx); err != nil {
			return err
		}
		defer ls.close()

		g, gctx := errgroup.WithContext(ctx)
		if listenMetricsAddr != "" {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			srv := &http.Server{Addr: listenMetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

			g.Go(func() error {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("metrics server: %w", err)
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
		}
		g.Go(func() error {
			return ls.wait(gctx)
		})

		err = g.Wait()
		if errors.Is(err, errSessionEnded) {
			forgetSession(log)
		}
		return err
	},
}
