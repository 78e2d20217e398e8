package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"sleepywoodpecker/csi-motion/internal/config"
	"sleepywoodpecker/csi-motion/internal/logger"
	"sleepywoodpecker/csi-motion/internal/metrics"
	"sleepywoodpecker/csi-motion/internal/processing"
	rserial "sleepywoodpecker/csi-motion/internal/rSerial"
	"sleepywoodpecker/csi-motion/internal/reporting"
)

const SHUTDOWN_GRACE = 500 * time.Millisecond

func main() {
	configFile := pflag.StringP("config", "c", "", "YAML configuration file (defaults are used when empty)")
	portName := pflag.StringP("port", "p", "", "serial port of the CSI receiver, overrides serial.port")
	broker := pflag.StringP("broker", "b", "", "MQTT broker URI, overrides mqtt.broker")
	rawLog := pflag.String("raw-log", "", "file to append CSI_DEBUG lines to, overrides raw_log_file")
	debug := pflag.Bool("debug", false, "log at debug level")
	pflag.Parse()

	cfg, err := loadConfig(*configFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *portName != "" {
		cfg.Serial.Port = *portName
	}
	if *broker != "" {
		cfg.MQTT.Broker = *broker
	}
	if *rawLog != "" {
		cfg.RawLogFile = *rawLog
	}
	if *debug {
		cfg.Log.Debug = true
	}
	if cfg.Serial.Port == "" {
		fmt.Fprintln(os.Stderr, "no serial port configured, use --port or serial.port")
		os.Exit(1)
	}

	// first initialize the main logger
	log, err := logger.NewLogger(cfg.Log.File, cfg.Log.Debug)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Error("[main] exiting", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func run(cfg *config.Config, log *zap.Logger) error {
	// context handler for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	m := metrics.New()

	// initialize the result transport
	var publisher reporting.Publisher = reporting.LogPublisher{Logger: log}
	if cfg.MQTT.Enabled {
		mqttPublisher, err := reporting.NewMQTTPublisher(cfg.MQTT, log)
		if err != nil {
			return err
		}
		defer mqttPublisher.Disconnect()
		publisher = mqttPublisher
	}
	reporter := reporting.NewReporter(publisher, m, log)

	pipeline, err := processing.NewPipeline(cfg.Pipeline, reporter, m, log)
	if err != nil {
		return err
	}

	// initialize the serial connection
	queue := processing.NewQueue(cfg.Serial.QueueLength, pipeline.Store(), m, log)
	source, err := rserial.NewRSerial(cfg.Serial.Port, cfg.Serial.BaudRate, cfg.Serial.ReadTimeout, log)
	if err != nil {
		return err
	}
	defer source.Close()
	processor := processing.NewProcessor(cfg.RawLogFile, queue.Frames(), pipeline, log)

	// run everything
	go reporter.Run(ctx)
	go func() {
		if err := processor.Run(ctx); err != nil {
			log.Error("[main] processor stopped", zap.Error(err))
			cancel()
		}
	}()
	go func() {
		if err := source.Run(ctx, queue); err != nil {
			log.Error("[main] serial reader stopped", zap.Error(err), zap.String("portName", cfg.Serial.Port))
			cancel()
		}
	}()

	if cfg.Telemetry.UDPAddr != "" {
		// initialize UDP connection to grafana
		udpAddr, err := net.ResolveUDPAddr("udp", cfg.Telemetry.UDPAddr)
		if err != nil {
			return err
		}
		udpConn, err := net.DialUDP("udp", nil, udpAddr)
		if err != nil {
			return err
		}
		defer udpConn.Close()

		sampler := processing.NewSampler(cfg.Telemetry.Interval, udpConn, cfg.Telemetry.Measurement, pipeline.Store(), log)
		go sampler.Run(ctx)
	}

	if cfg.Metrics.ListenAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		server := &http.Server{Addr: cfg.Metrics.ListenAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("[main] metrics server stopped", zap.Error(err))
			}
		}()
		defer server.Close()
	}

	log.Info("[main] CSI receiver running",
		zap.String("portName", cfg.Serial.Port),
		zap.String("expectedSource", cfg.Pipeline.ExpectedSource),
		zap.Int("bufferCapacity", cfg.Pipeline.BufferCapacity),
		zap.Int("windowSize", cfg.Pipeline.WindowSize),
		zap.Int("stride", cfg.Pipeline.Stride),
	)

	select {
	case <-sigCh:
	case <-ctx.Done():
	}
	cancel()

	time.Sleep(SHUTDOWN_GRACE)
	stats := pipeline.Stats()
	log.Info("[main] shutting down",
		zap.Uint64("frames", stats.FramesSeen),
		zap.Uint64("classifications", stats.Classifications),
		zap.Uint64("motionDetections", stats.MotionDetections),
	)
	return nil
}
