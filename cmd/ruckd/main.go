package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lelanhus/ruckcore/capture"
	"github.com/lelanhus/ruckcore/engine"
	"github.com/lelanhus/ruckcore/maphint"
	"github.com/lelanhus/ruckcore/relay"
	"github.com/lelanhus/ruckcore/server"
	"github.com/lelanhus/ruckcore/web"
)

func main() {
	port := flag.Int("port", server.DefaultPort, "UDP port for sample ingest")
	httpPort := flag.Int("http", 0, "HTTP/WebSocket port for the live view. 0 to disable.")
	configPath := flag.String("config", "", "Path to YAML parameter file (optional)")
	hintsPath := flag.String("hints", "", "Path to terrain surface-hint sqlite db (optional)")
	capturePath := flag.String("capture", "", "Path to raw sample capture log (optional)")
	outPath := flag.String("out", "session.json", "Path for the final session snapshot")
	relayUDP := flag.String("relay-udp", "", "Downstream UDP metrics target host:port (optional)")
	relayTCP := flag.String("relay-tcp", "", "Downstream TCP metrics target host:port (optional)")
	bodyKg := flag.Float64("body", 75, "Body mass in kg")
	loadKg := flag.Float64("load", 0, "Carried load in kg")
	tempC := flag.Float64("temp", -1000, "Ambient temperature in C (optional)")
	flag.Parse()

	params, err := engine.LoadParams(*configPath)
	if err != nil {
		log.Fatalf("Failed to load parameters: %v", err)
	}

	ctx := engine.SessionContext{
		BodyMassKg:   *bodyKg,
		LoadMassKg:   *loadKg,
		SessionStart: time.Now(),
	}

	var opts []engine.SessionOption
	if maphint.Available(*hintsPath) {
		store, err := maphint.Open(*hintsPath)
		if err != nil {
			log.Fatalf("Failed to open hint db: %v", err)
		}
		defer store.Close()
		opts = append(opts, engine.WithMapHints(store))
		log.Printf("Terrain hints loaded from %s", *hintsPath)
	}

	session, err := engine.NewSession(ctx, params, opts...)
	if err != nil {
		log.Fatalf("Failed to start session: %v", err)
	}
	if *tempC > -999 {
		session.SetEnvironment(engine.Environment{TemperatureC: *tempC})
	}

	udpSvr, err := server.NewUDPServer(*port, session)
	if err != nil {
		log.Fatalf("Failed to create UDP server: %v", err)
	}

	if *capturePath != "" {
		path := *capturePath
		if fi, err := os.Stat(path); err == nil && fi.IsDir() {
			path = fmt.Sprintf("%s/RUCK_%s.rklog", path, time.Now().Format("20060102150405"))
		}
		cw, err := capture.NewWriter(path)
		if err != nil {
			log.Fatalf("Failed to create capture writer: %v", err)
		}
		defer cw.Close()
		udpSvr.SetCaptureWriter(cw)
		log.Printf("Logging raw samples to %s", path)
	}

	var sender *relay.Sender
	if *relayUDP != "" || *relayTCP != "" {
		sender = relay.NewSender()
		if *relayUDP != "" {
			if err := sender.AddUDPTarget(*relayUDP, relay.FlagMetrics|relay.FlagSummary); err != nil {
				log.Fatalf("Bad relay UDP target: %v", err)
			}
		}
		if *relayTCP != "" {
			sender.AddTCPTarget(*relayTCP, relay.FlagMetrics|relay.FlagSummary)
		}
		if err := sender.Start(); err != nil {
			log.Fatalf("Failed to start relay: %v", err)
		}
		defer sender.Stop()
	}

	var webSvr *web.Server
	if *httpPort > 0 {
		webSvr = web.NewServer()
		go webSvr.Start(*httpPort)
	}

	// Fan the snapshot stream out to the live view and the relay.
	go func() {
		for snap := range session.Snapshots() {
			if webSvr != nil {
				webSvr.Publish(snap)
			}
			if sender != nil {
				sender.Send(relay.FormatMetrics(snap), relay.FlagMetrics)
			}
		}
	}()

	go udpSvr.Start()
	log.Printf("Session %s started (body %.1fkg, load %.1fkg)", session.ID(), *bodyKg, *loadKg)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down...")
	udpSvr.Stop()
	final := session.Stop()

	if sender != nil {
		sender.Send(relay.FormatSummary(final), relay.FlagSummary)
	}

	b, err := json.MarshalIndent(final, "", "  ")
	if err != nil {
		log.Fatalf("Failed to marshal final snapshot: %v", err)
	}
	if err := os.WriteFile(*outPath, b, 0o644); err != nil {
		log.Fatalf("Failed to write %s: %v", *outPath, err)
	}
	packets, samples := udpSvr.Stats()
	log.Printf("Final snapshot written to %s (%d packets, %d samples, %.1f kcal)",
		*outPath, packets, samples, final.CumulativeKcal)
}
