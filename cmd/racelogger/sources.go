package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/banshee-data/racelogger/internal/canbus"
	"github.com/banshee-data/racelogger/internal/config"
	"github.com/banshee-data/racelogger/internal/gps"
	"github.com/banshee-data/racelogger/internal/imu"
	"github.com/banshee-data/racelogger/internal/recorder"
	"github.com/banshee-data/racelogger/internal/sensor"
	"github.com/banshee-data/racelogger/internal/serialmux"
	"github.com/banshee-data/racelogger/internal/timeutil"
)

// startSources opens every configured sensor and starts its producer. A
// source that is not configured leaves its channel nil.
func startSources(ctx context.Context, wg *sync.WaitGroup, cfg *config.LoggerConfig, clock timeutil.Clock, mux *http.ServeMux) (recorder.Producers, error) {
	var p recorder.Producers

	gpsMux, err := openSerialSource("gps", cfg.GPS)
	if err != nil {
		return p, err
	}
	var initCommands []string
	if cfg.GPS != nil {
		for _, c := range cfg.GPS.InitCommands {
			initCommands = append(initCommands, gps.Command(c))
		}
	}
	if err := gpsMux.Initialize(initCommands...); err != nil {
		log.Printf("failed to initialize GPS: %v", err)
	}
	gpsProducer := gps.NewProducer(gpsMux, clock)
	if cfg.GPS.Enabled() {
		p.GPS = gpsProducer.Samples()
	}
	runSerial(ctx, wg, gpsMux, gpsProducer.Run)
	gpsMux.AttachAdminRoutes(mux)

	imuMux, err := openSerialSource("imu", cfg.IMU)
	if err != nil {
		gpsMux.Close()
		return p, err
	}
	imuProducer := imu.NewProducer(imuMux, clock)
	if cfg.IMU.Enabled() {
		p.IMU = imuProducer.Samples()
	}
	runSerial(ctx, wg, imuMux, imuProducer.Run)
	imuMux.AttachAdminRoutes(mux)

	if cfg.CAN.Enabled() {
		ch, err := startCAN(ctx, wg, cfg, clock)
		if err != nil {
			return p, err
		}
		p.CAN = ch
	}
	return p, nil
}

// openSerialSource picks a replay, a real device or a disabled mux.
func openSerialSource(name string, src *config.SerialSource) (serialmux.SerialMuxInterface, error) {
	switch {
	case !src.Enabled():
		log.Printf("%s disabled", name)
		return serialmux.NewDisabledSerialMux(name), nil
	case src.ReplayFile != "":
		lines, err := readLines(src.ReplayFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s replay: %w", name, err)
		}
		log.Printf("%s replaying %d lines from %s", name, len(lines), src.ReplayFile)
		return serialmux.NewReplaySerialMux(name, lines, src.GetReplayRate()), nil
	default:
		m, err := serialmux.NewRealSerialMux(name, src.Port, src.Options)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", name, err)
		}
		log.Printf("%s on %s (%s)", name, src.Port, src.Options)
		return m, nil
	}
}

// runSerial starts the mux monitor and the producer that consumes it.
func runSerial(ctx context.Context, wg *sync.WaitGroup, m serialmux.SerialMuxInterface, produce func(context.Context) error) {
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer m.Close()
		if err := m.Monitor(ctx); err != nil && err != context.Canceled {
			log.Printf("failed to monitor serial port: %v", err)
		}
		log.Print("monitor routine terminated")
	}()
	go func() {
		defer wg.Done()
		if err := produce(ctx); err != nil && err != context.Canceled {
			log.Printf("producer stopped: %v", err)
		}
	}()
}

// readLines loads a replay file, skipping blank lines.
func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, scanner.Err()
}

// startCAN starts a bus reader or a capture replay and returns its samples.
func startCAN(ctx context.Context, wg *sync.WaitGroup, cfg *config.LoggerConfig, clock timeutil.Clock) (<-chan sensor.CANSample, error) {
	channels, err := cfg.CANChannels()
	if err != nil {
		return nil, err
	}
	decoder, err := canbus.NewDecoder(channels...)
	if err != nil {
		return nil, err
	}

	if path := cfg.CAN.ReplayFile; path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open CAN replay: %w", err)
		}
		out := make(chan sensor.CANSample, 4096)
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer f.Close()
			if err := canbus.ReplayCapture(ctx, f, decoder, clock, out); err != nil && err != context.Canceled {
				log.Printf("CAN replay stopped: %v", err)
			}
		}()
		return out, nil
	}

	producer := canbus.NewBusProducer(cfg.CAN.Interface, decoder, clock)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := producer.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("CAN reader stopped: %v", err)
		}
	}()
	return producer.Samples(), nil
}
