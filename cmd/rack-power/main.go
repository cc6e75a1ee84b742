// Command rack-power sequences mains power to an audio rack from a single
// switch, and publishes each step to MQTT.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sweeney/rack-power/internal/config"
	"github.com/sweeney/rack-power/internal/gpio"
	"github.com/sweeney/rack-power/internal/logging"
	"github.com/sweeney/rack-power/internal/logic"
	"github.com/sweeney/rack-power/internal/mqtt"
	"github.com/sweeney/rack-power/internal/status"
	"github.com/sweeney/rack-power/internal/web"
)

const envConfigPath = "RACKPOWER_CONFIG"

func main() {
	configPath := flag.String("config", "", "Path to YAML config file (default $"+envConfigPath+")")
	printState := flag.Bool("print-state", false, "Print current input levels and exit")

	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(cfg.Logging)
	if err := run(cfg, log, *printState); err != nil {
		log.Error("fatal", "error", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file named by the flag or RACKPOWER_CONFIG.
// With neither set, the defaults plus environment overrides are used.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = os.Getenv(envConfigPath)
	}
	cfg, err := config.Load(path)
	if errors.Is(err, config.ErrNoConfig) {
		return config.FromEnv()
	}
	return cfg, err
}

func run(cfg *config.Config, log *slog.Logger, printState bool) error {
	reader, err := gpio.NewRealReader(cfg.GPIO.Chip, inputPin(cfg.GPIO.Switch), inputPin(cfg.GPIO.ShutdownAck))
	if err != nil {
		return fmt.Errorf("init gpio inputs: %w", err)
	}
	defer reader.Close()

	if printState {
		sw, ack, err := reader.Read()
		if err != nil {
			return fmt.Errorf("read gpio: %w", err)
		}
		fmt.Printf("switch: %s, shutdown_ack: %s\n", onOff(sw), onOff(ack))
		return nil
	}

	// Lines are requested off, so every relay is de-energized from here on.
	driver, err := gpio.NewRealDriver(cfg.GPIO.Chip, outputPins(cfg.GPIO))
	if err != nil {
		return fmt.Errorf("init gpio outputs: %w", err)
	}
	defer func() {
		if err := driver.Close(); err != nil {
			log.Error("release outputs", "error", err)
		}
	}()

	var publisher mqtt.Publisher = mqtt.NopPublisher{}
	var mqttStatus mqtt.ConnectionStatus = mqtt.NopPublisher{}
	if cfg.MQTT.Broker != "" {
		p := mqtt.NewRealPublisher(mqtt.Options{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			BufferSize:  cfg.MQTT.BufferSize,
		}, log)
		publisher, mqttStatus = p, p
	} else {
		log.Info("mqtt disabled")
	}
	defer publisher.Close()

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), trackerConfig(cfg))
	tracker.Update(status.RackState{State: logic.StateOff})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		log.Warn("publish startup event failed", "error", err)
	}

	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker, log)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("http server error", "error", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Info("http status server listening", "addr", cfg.HTTP.Addr)
	}

	t := cfg.Timings
	log.Info("started",
		"poll", cfg.Poll,
		"signal_settle", t.SignalSettle,
		"boot_settle", t.BootSettle,
		"stabilize", t.Stabilize,
		"shutdown_retrigger", t.ShutdownRetrigger,
		"heartbeat", cfg.Heartbeat,
		"broker", cfg.MQTT.Broker,
	)

	ticker := time.NewTicker(cfg.Poll)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(reader, driver, publisher, mqttStatus, tracker, cfg, log, time.Now, ticker.C, sigCh)
}

// runLoop is the controller: every tick it samples the inputs, derives the
// target from switch edges, steps the engine and re-applies the commands.
func runLoop(reader gpio.Reader, driver gpio.Driver, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, cfg *config.Config, log *slog.Logger, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	startTime := now()
	engine := logic.NewEngine(cfg.Timings.Engine())
	debouncer := logic.NewDebouncer(cfg.GPIO.Switch.Debounce, cfg.GPIO.ShutdownAck.Debounce)
	heartbeat := logic.NewHeartbeat(cfg.Heartbeat, startTime)
	warnAfter := cfg.Timings.ShutdownWarnAfter

	target := logic.TargetOff
	stallReported := false
	var applyErr string

	blink := cfg.GPIO.LivenessBlink
	if cfg.GPIO.Liveness.Pin < 0 {
		blink = 0
	}
	blinkOn := false
	lastBlink := startTime

	updateTracker := func() {
		sw, ack := debouncer.CurrentState()
		tracker.Update(status.RackState{
			State:      engine.State(),
			Commands:   engine.Commands(),
			Target:     engine.Latched(),
			Pending:    engine.Pending(),
			Switch:     sw,
			Ack:        ack,
			Baselined:  debouncer.IsBaselined(),
			StateSince: engine.StateSince(),
			Counts:     engine.Counts(),
		})
		tracker.SetMQTTConnected(mqttStatus.IsConnected())
	}

	publishStatus := func(event, reason string, ts time.Time, retained bool) {
		updateTracker()
		snap := tracker.Snapshot()
		se := mqtt.SystemEvent{
			Timestamp:  ts,
			Event:      event,
			Reason:     reason,
			Retained:   retained,
			RawPayload: status.FormatStatusEvent(snap, event, reason),
		}
		if err := publisher.PublishSystem(se); err != nil {
			log.Warn("publish system event failed", "event", event, "error", err)
		}
	}

	for {
		select {
		case s := <-sig:
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			log.Info("shutting down", "signal", signalName)
			if state := engine.State(); state != logic.StateOff {
				log.Warn("stopping while rack is not off; releasing outputs hard-cuts the companion computer without a shutdown ack", "state", state)
			}
			publishStatus("SHUTDOWN", signalName, now(), true)
			return nil

		case <-tick:
			t := now()
			sw, ack, err := reader.Read()
			if err != nil {
				log.Error("gpio read error", "error", err)
				continue
			}

			for _, in := range debouncer.Process(logic.InputSample{Switch: sw, Ack: ack, Time: t}) {
				log.Info("input", "event", in.Type, "switch", in.Switch, "shutdown_ack", in.Ack)
				switch in.Type {
				case logic.InputSwitchOn:
					target = logic.TargetOn
				case logic.InputSwitchOff:
					target = logic.TargetOff
				}
			}

			cmds, events := engine.Process(logic.Input{
				Target:      target,
				ShutdownAck: debouncer.AckOn(),
				Time:        t,
			})

			if err := gpio.Apply(driver, cmds, engine.State() != logic.StateOff); err != nil {
				if err.Error() != applyErr {
					log.Error("relay write failed", "error", err)
					applyErr = err.Error()
				}
			} else if applyErr != "" {
				log.Info("relay writes recovered")
				applyErr = ""
			}

			if t.Before(lastBlink) {
				lastBlink = t
			}
			if blink > 0 && t.Sub(lastBlink) >= blink {
				blinkOn = !blinkOn
				lastBlink = t
				if err := driver.Set(gpio.LineLiveness, blinkOn); err != nil {
					log.Debug("liveness led write failed", "error", err)
				}
			}

			for _, event := range events {
				if event.Type == logic.EventShutdownRetrigger {
					log.Debug("shutdown request re-sent", "run_signal", event.Commands.RunSignal)
					continue
				}
				log.Info("sequence",
					"event", event.Type,
					"from", event.From,
					"state", event.State,
					"target", event.Target,
				)
				if err := publisher.Publish(event); err != nil {
					log.Warn("publish error", "event", event.Type, "error", err)
				}
			}

			if engine.State() == logic.StateAwaitingShutdown {
				waited := t.Sub(engine.StateSince())
				if warnAfter > 0 && !stallReported && waited >= warnAfter {
					log.Warn("computer has not acknowledged shutdown; holding power", "waited", waited)
					stallReported = true
					publishStatus("STALLED", "NO_SHUTDOWN_ACK", t, false)
				}
			} else {
				stallReported = false
			}

			if hb := heartbeat.Check(t, engine.Counts()); hb != nil {
				log.Info("heartbeat",
					"uptime", hb.Uptime,
					"state", engine.State(),
					"power_on", hb.Counts.PowerOn,
					"power_off", hb.Counts.PowerOff,
				)
				if net := readNetworkInfo(); net != nil {
					tracker.SetNetwork(net)
				}
				publishStatus("HEARTBEAT", "", hb.Timestamp, false)
			}

			updateTracker()
		}
	}
}

func inputPin(c config.InputConfig) gpio.InputPin {
	return gpio.InputPin{Pin: c.Pin, ActiveLow: c.ActiveLow, Bias: c.Bias}
}

func outputPins(c config.GPIOConfig) map[gpio.Line]gpio.OutputPin {
	outputs := map[gpio.Line]config.OutputConfig{
		gpio.LineMixer:      c.Mixer,
		gpio.LineComputer:   c.Computer,
		gpio.LineSubwoofers: c.Subwoofers,
		gpio.LineRunSignal:  c.RunSignal,
		gpio.LineIndicator:  c.Indicator,
		gpio.LineLiveness:   c.Liveness,
	}
	pins := make(map[gpio.Line]gpio.OutputPin, len(outputs))
	for line, o := range outputs {
		if o.Pin < 0 {
			continue
		}
		pins[line] = gpio.OutputPin{Pin: o.Pin, ActiveLow: o.ActiveLow, OpenDrain: o.OpenDrain}
	}
	return pins
}

func trackerConfig(cfg *config.Config) status.Config {
	return status.Config{
		PollMs:              cfg.Poll.Milliseconds(),
		SignalSettleMs:      cfg.Timings.SignalSettle.Milliseconds(),
		BootSettleMs:        cfg.Timings.BootSettle.Milliseconds(),
		StabilizeMs:         cfg.Timings.Stabilize.Milliseconds(),
		ShutdownRetriggerMs: cfg.Timings.ShutdownRetrigger.Milliseconds(),
		HeartbeatMs:         cfg.Heartbeat.Milliseconds(),
		Broker:              cfg.MQTT.Broker,
		HTTPAddr:            cfg.HTTP.Addr,
	}
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}
