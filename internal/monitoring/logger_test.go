package monitoring

import "testing"

func TestSetLoggerRedirects(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	var got string
	SetLogger(func(format string, v ...interface{}) { got = format })
	Logf("pipeline run complete")
	if got != "pipeline run complete" {
		t.Errorf("redirected logger saw %q", got)
	}
}

func TestSetLoggerNilMutes(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(string, ...interface{}) { called = true })
	SetLogger(nil)
	Logf("dropped frame")
	if called {
		t.Errorf("muted logger must not reach the previous hook")
	}
}
