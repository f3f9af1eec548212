package sshmanager

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
)

func TestParseAllowedIPs_Empty(t *testing.T) {
	networks, err := ParseAllowedIPs("  ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if networks != nil {
		t.Errorf("expected nil, got %v", networks)
	}
}

func TestParseAllowedIPs_Mixed(t *testing.T) {
	networks, err := ParseAllowedIPs("10.0.0.5, 192.168.0.0/16 ,, ::1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(networks) != 3 {
		t.Fatalf("expected 3 networks, got %d", len(networks))
	}
	if networks[0].String() != "10.0.0.5/32" {
		t.Errorf("expected 10.0.0.5/32, got %s", networks[0])
	}
	if networks[2].String() != "::1/128" {
		t.Errorf("expected ::1/128, got %s", networks[2])
	}
}

func TestParseAllowedIPs_Invalid(t *testing.T) {
	for _, in := range []string{"not-an-ip", "10.0.0.0/99"} {
		if _, err := ParseAllowedIPs(in); err == nil {
			t.Errorf("expected error for %q", in)
		}
	}
}

func TestHostPolicyEmptyAllowsAll(t *testing.T) {
	p, err := NewHostPolicy("")
	if err != nil {
		t.Fatalf("NewHostPolicy: %v", err)
	}
	if p.Restricted() {
		t.Error("empty policy should not be restricted")
	}
	if err := p.Allow("anything.example"); err != nil {
		t.Errorf("expected allow, got %v", err)
	}
}

func TestHostPolicyIPs(t *testing.T) {
	p, err := NewHostPolicy("10.0.0.0/8, 2001:db8::/32")
	if err != nil {
		t.Fatalf("NewHostPolicy: %v", err)
	}
	allowed := []string{"10.1.2.3", "2001:db8::1", "[2001:db8::2]"}
	for _, h := range allowed {
		if err := p.Allow(h); err != nil {
			t.Errorf("expected %s allowed, got %v", h, err)
		}
	}
	if err := p.Allow("192.168.1.1"); err == nil || !strings.Contains(err.Error(), "not in the allowed list") {
		t.Errorf("expected rejection, got %v", err)
	}
}

func TestHostPolicyResolvesHostnames(t *testing.T) {
	p, err := NewHostPolicy("10.0.0.0/8")
	if err != nil {
		t.Fatalf("NewHostPolicy: %v", err)
	}
	p.lookup = func(ctx context.Context, host string) ([]net.IPAddr, error) {
		switch host {
		case "inside.example":
			return []net.IPAddr{{IP: net.ParseIP("10.0.0.7")}}, nil
		case "split.example":
			return []net.IPAddr{{IP: net.ParseIP("10.0.0.7")}, {IP: net.ParseIP("8.8.8.8")}}, nil
		}
		return nil, errors.New("no such host")
	}

	if err := p.Allow("inside.example"); err != nil {
		t.Errorf("expected inside.example allowed, got %v", err)
	}
	if err := p.Allow("split.example"); err == nil {
		t.Error("a host resolving outside the list must be rejected")
	}
	if err := p.Allow("missing.example"); err == nil || !strings.Contains(err.Error(), "resolve") {
		t.Errorf("expected resolve error, got %v", err)
	}
}

func TestNewHostPolicyInvalid(t *testing.T) {
	if _, err := NewHostPolicy("10.0.0.1, bogus"); err == nil {
		t.Error("expected error for invalid allow list")
	}
}

func TestNormalizeAllowList(t *testing.T) {
	got, err := NormalizeAllowList(" 10.0.0.5 , 192.168.1.77/24,")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "10.0.0.5, 192.168.1.0/24" {
		t.Errorf("unexpected normalized list %q", got)
	}

	if got, _ := NormalizeAllowList(""); got != "" {
		t.Errorf("expected empty, got %q", got)
	}
	if _, err := NormalizeAllowList("nope"); err == nil {
		t.Error("expected error for invalid entry")
	}
}
