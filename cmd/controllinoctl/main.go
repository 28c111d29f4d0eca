// Command controllinoctl opens a Controllino board over a serial port,
// mounts the admin debugging routes, and optionally records every
// command submitted through the admin send-command route to a local
// sqlite diagnostic log. It is a thin CLI
// shell around the driver; the protocol and concurrency live in the
// library packages.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	controllino "github.com/Argon343/controllino"
	"github.com/Argon343/controllino/adminhttp"
	"github.com/Argon343/controllino/recorder"
	"github.com/Argon343/controllino/transport"
)

var (
	port       = flag.String("port", "/dev/ttyACM0", "serial device path")
	baud       = flag.Int("baud", 19200, "serial baud rate")
	listen     = flag.String("listen", ":8080", "admin HTTP listen address")
	recordPath = flag.String("record", "", "optional sqlite path to log submitted commands and outcomes; disabled if empty")
)

func main() {
	flag.Parse()

	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	opts, err := transport.PortOptions{BaudRate: *baud}.Normalize()
	if err != nil {
		return fmt.Errorf("controllinoctl: invalid port options: %w", err)
	}

	p, err := (&transport.SerialFactory{}).Open(*port, opts)
	if err != nil {
		return fmt.Errorf("controllinoctl: open %s: %w", *port, err)
	}

	var rec *recorder.Recorder
	if *recordPath != "" {
		rec, err = recorder.Open(*recordPath)
		if err != nil {
			return fmt.Errorf("controllinoctl: open recorder: %w", err)
		}
		defer rec.Close()
	}

	driver := controllino.New(p)
	defer driver.Kill()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	openHandle, err := driver.Open()
	if err != nil {
		return fmt.Errorf("controllinoctl: open driver session: %w", err)
	}
	if !openHandle.Wait(5 * time.Second) {
		return fmt.Errorf("controllinoctl: device did not respond to open within 5s")
	}
	if _, err := openHandle.Result(); err != nil {
		return fmt.Errorf("controllinoctl: open rejected by device: %w", err)
	}
	log.Printf("controllinoctl: opened %s at %d baud", *port, opts.BaudRate)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		errorDrainLoop(ctx, driver)
	}()

	mux := http.NewServeMux()
	adminhttp.New(driver, rec).AttachRoutes(mux)

	server := &http.Server{Addr: *listen, Handler: mux}
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Printf("controllinoctl: admin HTTP listening on %s", *listen)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("controllinoctl: admin HTTP server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Print("controllinoctl: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("controllinoctl: admin HTTP shutdown error: %v", err)
	}

	if err := driver.Kill(); err != nil {
		log.Printf("controllinoctl: driver shutdown error: %v", err)
	}

	wg.Wait()
	return nil
}

// errorDrainLoop periodically calls ProcessErrors so background faults
// (malformed frames, unsolicited samples) reach the process log instead
// of silently accumulating until something calls it directly.
func errorDrainLoop(ctx context.Context, driver *controllino.Driver) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := driver.ProcessErrors(); err != nil {
				log.Printf("controllinoctl: background error: %v", err)
			}
		}
	}
}
