package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sync"

	"github.com/banshee-data/racelogger/internal/config"
	"github.com/banshee-data/racelogger/internal/protocol/racecapture"
	"github.com/banshee-data/racelogger/internal/protocol/racetech"
	"github.com/banshee-data/racelogger/internal/recorder"
	"github.com/banshee-data/racelogger/internal/rfcomm"
)

// feedSet is the live telemetry outputs and the resources behind them.
type feedSet struct {
	Feeds   []recorder.Feed
	closers []io.Closer
}

// Close releases every output.
func (f *feedSet) Close() error {
	var errs []error
	for _, c := range f.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// startFeeds opens the RaceCapture port and starts the DL1 listener.
func startFeeds(ctx context.Context, wg *sync.WaitGroup, cfg *config.LoggerConfig) (*feedSet, error) {
	fs := &feedSet{}

	if rc := cfg.RaceCapture; rc != nil && rc.Port != "" {
		port, err := racecapture.OpenSerial(rc.Port, rc.Options)
		if err != nil {
			return nil, err
		}
		fs.closers = append(fs.closers, port)
		fs.Feeds = append(fs.Feeds, recorder.Feed{Name: "racecapture", Writer: racecapture.NewWriter(port)})
		log.Printf("RaceCapture feed on %s", rc.Port)
	}

	if cfg.DL1 != nil {
		acceptor, desc, err := dl1Acceptor(cfg.DL1)
		if err != nil {
			// A missing Bluetooth adapter should not stop logging.
			log.Printf("DL1 feed disabled: %v", err)
			return fs, nil
		}
		hub := racetech.NewHub()
		fs.closers = append(fs.closers, hub)
		fs.Feeds = append(fs.Feeds, recorder.Feed{
			Name:   "dl1",
			Writer: racetech.NewWriter(hub, cfg.DL1.GetMaxBrakePressure()),
		})

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := racetech.Serve(ctx, acceptor, hub); err != nil && err != context.Canceled {
				log.Printf("DL1 listener stopped: %v", err)
			}
		}()
		log.Printf("DL1 feed listening on %s", desc)
	}
	return fs, nil
}

func dl1Acceptor(d *config.DL1Output) (racetech.Acceptor, string, error) {
	if d.TCPListen != "" {
		l, err := net.Listen("tcp", d.TCPListen)
		if err != nil {
			return nil, "", err
		}
		return racetech.NetAcceptor{Listener: l}, l.Addr().String(), nil
	}

	channel := rfcomm.DefaultChannel
	if d.RFCOMMChannel != nil {
		channel = *d.RFCOMMChannel
	}
	l, err := rfcomm.Listen(uint8(channel))
	if err != nil {
		return nil, "", err
	}
	return l, fmt.Sprintf("RFCOMM channel %d", channel), nil
}
