package email

import (
	"context"
	"net/smtp"
	"strings"
	"testing"

	"github.com/harunnryd/serena/pkg/lead"
)

func TestBuildConfirmation(t *testing.T) {
	cfg := Config{From: "bot@serena.example", CompanyName: "Serena Properties"}
	l := lead.Lead{
		Name:         "Sara",
		Contact:      "sara@example.com",
		Budget:       "2M AED",
		Location:     "Dubai Marina",
		PropertyType: "villa",
	}

	msg := string(BuildConfirmation(cfg, "sara@example.com", l))
	for _, want := range []string{
		"To: sara@example.com",
		"From: bot@serena.example",
		"multipart/alternative",
		"Hi Sara,",
		"2M AED",
		"Dubai Marina",
		"text/plain",
		"text/html",
	} {
		if !strings.Contains(msg, want) {
			t.Fatalf("message missing %q:\n%s", want, msg)
		}
	}
}

func TestBuildConfirmationNoName(t *testing.T) {
	msg := string(BuildConfirmation(Config{From: "bot@serena.example", CompanyName: "Serena Properties"}, "x@example.com", lead.Lead{Contact: "x@example.com"}))
	if !strings.Contains(msg, "Hi there,") {
		t.Fatalf("expected neutral greeting:\n%s", msg)
	}
}

func TestSendSkipsWithoutEmailAddress(t *testing.T) {
	svc := NewService(Config{Host: "smtp.example.com", From: "bot@serena.example"})
	called := false
	svc.send = func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
		called = true
		return nil
	}

	err := svc.SendLeadConfirmation(context.Background(), lead.Lead{Name: "Omar", Contact: "+971501112222"})
	if err != nil {
		t.Fatalf("phone-only lead must not error: %v", err)
	}
	if called {
		t.Fatal("phone-only lead must not trigger a send")
	}
}

func TestSendSkipsWhenUnconfigured(t *testing.T) {
	svc := NewService(Config{})
	svc.send = func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
		t.Fatal("unconfigured service must not send")
		return nil
	}
	if err := svc.SendLeadConfirmation(context.Background(), lead.Lead{Contact: "x@example.com"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSendUsesConfiguredServer(t *testing.T) {
	svc := NewService(Config{
		Host:     "smtp.example.com",
		Port:     2525,
		Username: "user",
		Password: "pass",
		From:     "bot@serena.example",
	})
	var gotAddr, gotFrom string
	var gotTo []string
	svc.send = func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo = addr, from, to
		return nil
	}

	err := svc.SendLeadConfirmation(context.Background(), lead.Lead{Name: "Sara", Contact: "sara@example.com"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if gotAddr != "smtp.example.com:2525" {
		t.Fatalf("unexpected addr %q", gotAddr)
	}
	if gotFrom != "bot@serena.example" || len(gotTo) != 1 || gotTo[0] != "sara@example.com" {
		t.Fatalf("unexpected envelope from=%q to=%v", gotFrom, gotTo)
	}
}
