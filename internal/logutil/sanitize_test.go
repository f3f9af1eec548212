package logutil

import "testing"

func TestSanitizeForLog(t *testing.T) {
	cases := map[string]string{
		"/var/log/app.log":            "/var/log/app.log",
		"evil\n[tail] forged entry":   "evil [tail] forged entry",
		"tab\there\rcr":               "tab here cr",
		"bell\x07and\x1b[31mansi":     "belland[31mansi",
		"ünïcödé stays":               "ünïcödé stays",
	}
	for in, want := range cases {
		if got := SanitizeForLog(in); got != want {
			t.Errorf("SanitizeForLog(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRedact(t *testing.T) {
	if Redact("") != "" {
		t.Error("empty secret should stay empty")
	}
	if Redact("hunter2") != "[REDACTED]" {
		t.Error("secret should be redacted")
	}
}
