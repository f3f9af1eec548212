package sshconn

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNewEndpointDefaultsPort(t *testing.T) {
	ep := NewEndpoint("logs.example.com", 0)
	if ep.Port != DefaultPort {
		t.Errorf("expected port %d, got %d", DefaultPort, ep.Port)
	}
	if ep.Addr() != "logs.example.com:22" {
		t.Errorf("unexpected addr %q", ep.Addr())
	}
}

func TestEndpointIPv6Addr(t *testing.T) {
	ep := NewEndpoint("::1", 2222)
	if ep.Addr() != "[::1]:2222" {
		t.Errorf("unexpected addr %q", ep.Addr())
	}
}

func TestEndpointEqualityIsExact(t *testing.T) {
	m := map[Endpoint]string{NewEndpoint("host", 22): "a"}
	if _, ok := m[NewEndpoint("HOST", 22)]; ok {
		t.Error("endpoints with different host case must not be equal")
	}
	if _, ok := m[Endpoint{Host: "host", Port: 22}]; !ok {
		t.Error("identical endpoints must be equal")
	}
}

func TestCredentialSpecPassword(t *testing.T) {
	c, err := CredentialSpec{Host: " 10.0.0.5 ", Username: "deploy", AuthType: "password", Password: "pw"}.Credentials()
	if err != nil {
		t.Fatalf("Credentials: %v", err)
	}
	if c.Endpoint != (Endpoint{Host: "10.0.0.5", Port: 22}) {
		t.Errorf("unexpected endpoint %+v", c.Endpoint)
	}
	pw, ok := c.Auth.(PasswordAuth)
	if !ok || pw.Password != "pw" {
		t.Errorf("unexpected auth %#v", c.Auth)
	}
}

func TestCredentialSpecKey(t *testing.T) {
	c, err := CredentialSpec{Host: "h", Port: 2200, Username: "u", AuthType: "key", PrivateKeyPath: "/k"}.Credentials()
	if err != nil {
		t.Fatalf("Credentials: %v", err)
	}
	k, ok := c.Auth.(KeyAuth)
	if !ok || k.PrivateKeyPath != "/k" || k.Passphrase != "" {
		t.Errorf("unexpected auth %#v", c.Auth)
	}
}

func TestCredentialSpecInvalid(t *testing.T) {
	cases := []CredentialSpec{
		{Host: "h", Username: "u"},
		{Host: "h", Username: "u", AuthType: "kerberos"},
		{Host: "", Username: "u", AuthType: "password"},
		{Host: "h", Username: "", AuthType: "password"},
		{Host: "h", Port: 70000, Username: "u", AuthType: "password"},
		{Host: "h", Username: "u", AuthType: "key"},
	}
	for i, spec := range cases {
		if _, err := spec.Credentials(); !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("case %d: expected ErrInvalidCredentials, got %v", i, err)
		}
	}
}

func TestCredentialsRedactSecrets(t *testing.T) {
	c := Credentials{
		Endpoint: NewEndpoint("h", 22),
		Username: "u",
		Auth:     PasswordAuth{Password: "hunter2"},
	}
	for _, format := range []string{"%v", "%+v", "%#v", "%s"} {
		if out := fmt.Sprintf(format, c); strings.Contains(out, "hunter2") {
			t.Errorf("%s leaks password: %s", format, out)
		}
	}

	k := Credentials{
		Endpoint: NewEndpoint("h", 22),
		Username: "u",
		Auth:     KeyAuth{PrivateKeyPath: "/home/u/.ssh/id", Passphrase: "open-sesame"},
	}
	out := fmt.Sprintf("%v", k)
	if strings.Contains(out, "open-sesame") {
		t.Errorf("leaks passphrase: %s", out)
	}
	if !strings.Contains(out, "/home/u/.ssh/id") {
		t.Errorf("expected key path in diagnostic output: %s", out)
	}
}

func TestKindOf(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", fmt.Errorf("%w: refused", ErrUnreachable))
	if KindOf(wrapped) != KindUnreachable {
		t.Errorf("expected %q, got %q", KindUnreachable, KindOf(wrapped))
	}
	if KindOf(nil) != KindNone {
		t.Error("nil error must have no kind")
	}
	if KindOf(errors.New("plain")) != KindNone {
		t.Error("unclassified error must have no kind")
	}
}
