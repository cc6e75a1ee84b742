package mqtt

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sweeney/rack-power/internal/logic"
)

func TestFormatPayload(t *testing.T) {
	event := logic.Event{
		Timestamp: time.Date(2026, 2, 2, 22, 18, 12, 0, time.UTC),
		Type:      logic.EventPoweringOn,
		From:      logic.StateOff,
		State:     logic.StatePoweringOn,
		Target:    logic.TargetOn,
		Commands:  logic.RelayCommandSet{Mixer: true, RunSignal: true},
	}

	payload, err := FormatPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed Payload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if parsed.Rack.Timestamp != "2026-02-02T22:18:12Z" {
		t.Errorf("unexpected timestamp: %s", parsed.Rack.Timestamp)
	}
	if parsed.Rack.Event != "POWERING_ON" {
		t.Errorf("unexpected event: %s", parsed.Rack.Event)
	}
	if parsed.Rack.From != "OFF" || parsed.Rack.State != "POWERING_ON" {
		t.Errorf("unexpected transition: %s -> %s", parsed.Rack.From, parsed.Rack.State)
	}
	if parsed.Rack.Target != "ON" {
		t.Errorf("unexpected target: %s", parsed.Rack.Target)
	}
	want := CommandsPayload{Mixer: "ON", Computer: "OFF", Subwoofers: "OFF", RunSignal: "ON"}
	if parsed.Rack.Commands != want {
		t.Errorf("unexpected commands: %+v", parsed.Rack.Commands)
	}
}

func TestFormatPayloadExactJSON(t *testing.T) {
	event := logic.Event{
		Timestamp: time.Date(2026, 2, 2, 22, 18, 12, 0, time.UTC),
		Type:      logic.EventAwaitingShutdown,
		From:      logic.StatePoweringOff,
		State:     logic.StateAwaitingShutdown,
		Target:    logic.TargetOff,
		Commands:  logic.RelayCommandSet{Computer: true},
	}

	payload, err := FormatPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"rack":{"timestamp":"2026-02-02T22:18:12Z","event":"AWAITING_SHUTDOWN","from":"POWERING_OFF","state":"AWAITING_SHUTDOWN","target":"OFF","commands":{"mixer":"OFF","computer":"ON","subwoofers":"OFF","run_signal":"OFF"}}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", string(payload), expected)
	}
}

func TestFormatPayloadTimezoneConversion(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	event := logic.Event{
		Timestamp: time.Date(2026, 2, 2, 23, 0, 0, 0, loc),
		Type:      logic.EventOn,
	}

	payload, _ := FormatPayload(event)
	var parsed Payload
	json.Unmarshal(payload, &parsed)

	if parsed.Rack.Timestamp != "2026-02-02T22:00:00Z" {
		t.Errorf("expected UTC timestamp, got %s", parsed.Rack.Timestamp)
	}
}

func TestTopics(t *testing.T) {
	topics := NewTopics("studio/rack")
	if topics.Events != "studio/rack/events" {
		t.Errorf("Events: got %q", topics.Events)
	}
	if topics.System != "studio/rack/system" {
		t.Errorf("System: got %q", topics.System)
	}

	def := NewTopics("")
	if def.Events != DefaultTopicPrefix+"/events" {
		t.Errorf("default Events: got %q", def.Events)
	}
}

func TestFormatSystemPayload(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 10, 8, 30, 0, 0, time.UTC),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"system":{"timestamp":"2026-02-10T08:30:00Z","event":"SHUTDOWN","reason":"MQTT_DISCONNECT"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", string(payload), expected)
	}
}

func TestFormatSystemPayloadOmitsEmptyReason(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 10, 14, 30, 0, 0, time.UTC),
		Event:     "RECONNECTED",
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"system":{"timestamp":"2026-02-10T14:30:00Z","event":"RECONNECTED"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", string(payload), expected)
	}
}

func TestFormatSystemPayloadRaw(t *testing.T) {
	raw := []byte(`{"status":{"state":"ON"}}`)
	payload, err := FormatSystemPayload(SystemEvent{Event: "HEARTBEAT", RawPayload: raw})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(payload) != string(raw) {
		t.Errorf("expected raw payload passthrough, got %s", payload)
	}
}

func TestFakePublisher(t *testing.T) {
	f := NewFakePublisher()

	events := []logic.Event{
		{Type: logic.EventPoweringOn, State: logic.StatePoweringOn},
		{Type: logic.EventComputerOn, State: logic.StatePoweringOn},
		{Type: logic.EventOn, State: logic.StateOn},
	}
	for _, e := range events {
		if err := f.Publish(e); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if len(f.Events) != 3 || len(f.Payloads) != 3 {
		t.Fatalf("expected 3 events and payloads, got %d/%d", len(f.Events), len(f.Payloads))
	}
	for i, e := range events {
		if f.Events[i].Type != e.Type {
			t.Errorf("event %d: expected %s, got %s", i, e.Type, f.Events[i].Type)
		}
	}
}

func TestFakePublisherErrors(t *testing.T) {
	f := NewFakePublisher()
	f.PublishError = errors.New("broker down")
	f.PublishSystemError = errors.New("broker down")

	if err := f.Publish(logic.Event{}); err == nil {
		t.Error("expected Publish error")
	}
	if err := f.PublishSystem(SystemEvent{Event: "STARTUP"}); err == nil {
		t.Error("expected PublishSystem error")
	}
	if len(f.Events) != 0 || len(f.SystemEvents) != 0 {
		t.Error("failed publishes should not be recorded")
	}
}

func TestFakePublisherSystemEventsAndReset(t *testing.T) {
	f := NewFakePublisher()
	f.Connected = true

	f.PublishSystem(SystemEvent{Event: "STARTUP", Retained: true})
	f.PublishSystem(SystemEvent{Event: "HEARTBEAT"})

	names := f.SystemEventNames()
	if len(names) != 2 || names[0] != "STARTUP" || names[1] != "HEARTBEAT" {
		t.Errorf("unexpected system events: %v", names)
	}
	if !f.SystemEvents[0].Retained {
		t.Error("expected STARTUP retained flag recorded")
	}
	if !f.IsConnected() {
		t.Error("expected connected")
	}

	f.Close()
	if !f.Closed {
		t.Error("expected Closed")
	}

	f.Reset()
	if len(f.SystemEvents) != 0 || f.Closed || f.Connected {
		t.Error("Reset did not clear state")
	}
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	if err := p.Publish(logic.Event{}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := p.PublishSystem(SystemEvent{}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if (NopPublisher{}).IsConnected() {
		t.Error("nop publisher should report disconnected")
	}
}
