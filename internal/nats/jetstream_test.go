package natsjs

import (
	"testing"
	"time"
)

func TestStreamConfig(t *testing.T) {
	p := &Publisher{stream: DefaultStream, subject: "mailpoll.incidents"}
	cfg := p.StreamConfig()
	if cfg.Name != "MAILPOLL_INCIDENTS" {
		t.Errorf("Name = %q", cfg.Name)
	}
	if len(cfg.Subjects) != 1 || cfg.Subjects[0] != "mailpoll.incidents.>" {
		t.Errorf("Subjects = %v", cfg.Subjects)
	}
	if cfg.Duplicates != 10*time.Minute {
		t.Errorf("Duplicates = %v", cfg.Duplicates)
	}
}

func TestNewPublisherUnreachable(t *testing.T) {
	if _, err := NewPublisher("nats://127.0.0.1:1", "mailpoll.incidents"); err == nil {
		t.Fatal("expected connection error")
	}
}
