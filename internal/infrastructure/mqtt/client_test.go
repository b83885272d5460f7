package mqtt

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/urbanfield/deployment-core/internal/infrastructure/config"
)

func TestTopics(t *testing.T) {
	topics := Topics{}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"request", topics.Request("sensor", "create"), "deployd/request/sensor/create"},
		{"all requests", topics.AllRequests("deployment"), "deployd/request/deployment/+"},
		{"errors", topics.Errors("created"), "deployd/errors/created"},
		{"all errors", topics.AllErrors(), "deployd/errors/+"},
		{"system status", topics.SystemStatus(), "deployd/system/status"},
		{"system shutdown", topics.SystemShutdown(), "deployd/system/shutdown"},
		{"all topics", topics.AllTopics(), "deployd/#"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestBuildClientOptions(t *testing.T) {
	t.Run("plain broker url", func(t *testing.T) {
		cfg := config.MQTTConfig{
			Broker: config.MQTTBrokerConfig{
				Host:     "broker.local",
				Port:     1883,
				ClientID: "deployd-test",
			},
		}
		opts := buildClientOptions(cfg)

		if len(opts.Servers) != 1 {
			t.Fatalf("expected 1 broker, got %d", len(opts.Servers))
		}
		if got := opts.Servers[0].String(); got != "tcp://broker.local:1883" {
			t.Errorf("broker URL = %q, want tcp://broker.local:1883", got)
		}
		if opts.ClientID != "deployd-test" {
			t.Errorf("ClientID = %q", opts.ClientID)
		}
		if opts.TLSConfig != nil {
			t.Error("TLS config set without tls enabled")
		}
	})

	t.Run("tls broker url", func(t *testing.T) {
		cfg := config.MQTTConfig{
			Broker: config.MQTTBrokerConfig{
				Host: "broker.local",
				Port: 8883,
				TLS:  true,
			},
		}
		opts := buildClientOptions(cfg)

		if got := opts.Servers[0].String(); got != "ssl://broker.local:8883" {
			t.Errorf("broker URL = %q, want ssl://broker.local:8883", got)
		}
		if opts.TLSConfig == nil {
			t.Fatal("TLS config missing")
		}
		if opts.TLSConfig.MinVersion != tlsMinVersion {
			t.Errorf("TLS MinVersion = %d, want %d", opts.TLSConfig.MinVersion, tlsMinVersion)
		}
	})

	t.Run("credentials applied when set", func(t *testing.T) {
		cfg := config.MQTTConfig{
			Auth: config.MQTTAuthConfig{Username: "svc", Password: "secret"},
		}
		opts := buildClientOptions(cfg)

		if opts.Username != "svc" || opts.Password != "secret" {
			t.Errorf("credentials not applied: %q/%q", opts.Username, opts.Password)
		}
	})

	t.Run("auto reconnect enabled", func(t *testing.T) {
		opts := buildClientOptions(config.MQTTConfig{})
		if !opts.AutoReconnect {
			t.Error("auto reconnect disabled")
		}
	})
}

func TestStatusPayloads(t *testing.T) {
	tests := []struct {
		name       string
		payload    string
		wantStatus string
		wantReason string
	}{
		{"online", buildOnlinePayload("deployd-1"), "online", ""},
		{"offline", buildOfflinePayload("deployd-1"), "offline", "graceful_shutdown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var status struct {
				Status    string `json:"status"`
				ClientID  string `json:"client_id"`
				Reason    string `json:"reason"`
				Timestamp string `json:"timestamp"`
			}
			if err := json.Unmarshal([]byte(tt.payload), &status); err != nil {
				t.Fatalf("payload is not valid JSON: %v", err)
			}
			if status.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", status.Status, tt.wantStatus)
			}
			if status.ClientID != "deployd-1" {
				t.Errorf("client_id = %q", status.ClientID)
			}
			if status.Reason != tt.wantReason {
				t.Errorf("reason = %q, want %q", status.Reason, tt.wantReason)
			}
			if status.Timestamp == "" {
				t.Error("timestamp missing")
			}
		})
	}
}

func TestConfigureLWT(t *testing.T) {
	opts := buildClientOptions(config.MQTTConfig{})
	configureLWT(opts, "deployd-1")

	if !opts.WillEnabled {
		t.Fatal("LWT not enabled")
	}
	if opts.WillTopic != "deployd/system/status" {
		t.Errorf("will topic = %q", opts.WillTopic)
	}
	if !opts.WillRetained {
		t.Error("LWT should be retained")
	}
	if !strings.Contains(string(opts.WillPayload), "unexpected_disconnect") {
		t.Errorf("will payload = %q, want crash reason", opts.WillPayload)
	}
}

func TestSubscribeValidation(t *testing.T) {
	// Validation happens before any broker interaction, so a bare
	// client is enough.
	c := &Client{subscriptions: make(map[string]subscription)}
	handler := func(topic string, payload []byte) error { return nil }

	tests := []struct {
		name    string
		topic   string
		qos     byte
		handler MessageHandler
		wantErr error
	}{
		{"empty topic", "", 1, handler, ErrInvalidTopic},
		{"qos too high", "deployd/request/sensor/create", 3, handler, ErrInvalidQoS},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Subscribe(tt.topic, tt.qos, tt.handler)
			if err != tt.wantErr {
				t.Errorf("Subscribe() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
