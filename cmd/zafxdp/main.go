// zafxdp command line: interface discovery and a single-socket capture loop
// on top of the AF_XDP service.
package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cilium/ebpf/rlimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ncldmg/zafxdp/netdev"
	"github.com/ncldmg/zafxdp/pipeline"
	"github.com/ncldmg/zafxdp/pipeline/processors"
	"github.com/ncldmg/zafxdp/service"
	"github.com/ncldmg/zafxdp/stats"
)

var version = "0.1.0"

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	var (
		configPath string
		jsonLogs   bool
		verbose    bool
	)

	rootCmd := &cobra.Command{
		Use:     "zafxdp",
		Short:   "AF_XDP kernel-bypass packet processing",
		Version: version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if jsonLogs {
				logger.SetFormatter(&logrus.JSONFormatter{})
			}
			if verbose {
				logger.SetLevel(logrus.DebugLevel)
			}
			if configPath != "" {
				viper.SetConfigFile(configPath)
				if err := viper.ReadInConfig(); err != nil {
					logger.WithError(err).Fatal("Failed to read config")
				}
			}
		},
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json", false, "JSON log output")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(listInterfacesCmd(logger))
	rootCmd.AddCommand(receiveCmd(logger))

	if err := rootCmd.Execute(); err != nil {
		logger.WithError(err).Fatal("Command failed")
	}
}

func listInterfacesCmd(logger *logrus.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "list-interfaces",
		Short: "Enumerate host interfaces and their indices",
		RunE: func(cmd *cobra.Command, args []string) error {
			ifis, err := netdev.Interfaces()
			if err != nil {
				return err
			}
			for _, ifi := range ifis {
				state := "down"
				if ifi.Up {
					state = "up"
				}
				fmt.Printf("%3d  %-16s %-18s %s\n", ifi.Index, ifi.Name, ifi.MAC, state)
			}
			return nil
		},
	}
}

func receiveCmd(logger *logrus.Logger) *cobra.Command {
	var (
		ifaceName   string
		queueID     uint32
		numPackets  uint64
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "receive",
		Short: "Capture packets on one interface queue until N packets or interrupt",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rlimit.RemoveMemlock(); err != nil {
				return fmt.Errorf("remove memlock: %w", err)
			}

			viper.SetDefault("batch_size", 64)
			viper.SetDefault("poll_timeout_ms", 100)

			counter := processors.NewCounter()
			pl := pipeline.New(pipeline.DefaultConfig())
			if err := pl.AddStage(counter); err != nil {
				return err
			}

			cfg := service.DefaultConfig()
			cfg.Interfaces = []service.InterfaceConfig{{Name: ifaceName, Queues: []uint32{queueID}}}
			cfg.BatchSize = viper.GetInt("batch_size")
			cfg.PollTimeoutMs = viper.GetInt("poll_timeout_ms")
			cfg.Logger = logger

			svc, err := service.New(cfg, pl)
			if err != nil {
				return err
			}
			defer svc.Close()

			if metricsAddr != "" {
				reg := prometheus.NewRegistry()
				if err := reg.Register(stats.NewExporter(svc.Stats())); err != nil {
					return err
				}
				go func() {
					mux := http.NewServeMux()
					mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
					if err := http.ListenAndServe(metricsAddr, mux); err != nil {
						logger.WithError(err).Warn("Metrics server stopped")
					}
				}()
				logger.WithField("addr", metricsAddr).Info("Serving /metrics")
			}

			if err := svc.Start(); err != nil {
				return err
			}
			logger.WithFields(logrus.Fields{
				"interface": ifaceName,
				"queue":     queueID,
			}).Info("Capture started, Ctrl-C to stop")

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
			tick := time.NewTicker(200 * time.Millisecond)
			defer tick.Stop()

		loop:
			for {
				select {
				case <-sig:
					break loop
				case <-tick.C:
					if numPackets > 0 && counter.Packets() >= numPackets {
						break loop
					}
				}
			}

			svc.Stop()
			printSummary(svc.Stats().Snapshot())
			return nil
		},
	}

	cmd.Flags().StringVarP(&ifaceName, "interface", "i", "", "interface name")
	cmd.Flags().Uint32VarP(&queueID, "queue", "q", 0, "RX queue id")
	cmd.Flags().Uint64VarP(&numPackets, "num-packets", "n", 0, "stop after N packets (0 = until interrupt)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	cmd.MarkFlagRequired("interface")
	return cmd
}

func printSummary(s stats.Snapshot) {
	var buf [32]byte
	fmt.Printf("received:    %d packets, %s\n", s.PacketsReceived, stats.FormatBytes(buf[:0], s.BytesReceived))
	fmt.Printf("transmitted: %d packets, %s\n", s.PacketsTransmitted, stats.FormatBytes(buf[:0], s.BytesTransmitted))
	fmt.Printf("dropped:     %d   passed: %d   errors: %d\n", s.PacketsDropped, s.PacketsPassed, s.Errors)
	fmt.Printf("rx rate:     %.1f pps over %s\n", s.RxPacketsPerSec, s.Elapsed.Round(time.Millisecond))
}
