package xproc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func requireUnix(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires Unix-like environment")
	}
}

func TestFacadeEnsureStatusTerminate(t *testing.T) {
	requireUnix(t)
	sess := NewSession()
	defer func() { _ = sess.Close() }()
	sup, err := New(t.TempDir(), WithSession(sess))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	factory := func(sc StrategyContext) (Strategy, error) {
		return &PatternStarter{
			Args:         []string{"/bin/sh", "-c", "echo READY; exec sleep 60"},
			Pattern:      "READY",
			Timeout:      10 * time.Second,
			PollInterval: 20 * time.Millisecond,
		}, nil
	}
	pid, logPath, err := sup.Ensure(context.Background(), "db", factory, false)
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if pid <= 0 || logPath == "" {
		t.Fatalf("bad ensure result: pid=%d log=%q", pid, logPath)
	}
	if sess.Log("db") == nil {
		t.Fatalf("session missing log handle")
	}

	rows, err := sup.StatusAll()
	if err != nil || len(rows) != 1 || !rows[0].Live {
		t.Fatalf("status: %+v err=%v", rows, err)
	}

	res, err := sup.Terminate(context.Background(), "db")
	if err != nil || res != TermTerminated {
		t.Fatalf("terminate: %v %v", res, err)
	}
}

func TestFacadeHTTPHandler(t *testing.T) {
	sup, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	srv := httptest.NewServer(NewHTTPHandler("/xproc", sup, nil))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/xproc/status")
	if err != nil {
		t.Fatalf("GET status: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status code = %d", resp.StatusCode)
	}
}

func TestFacadeMetricsRegistration(t *testing.T) {
	r := prometheus.NewRegistry()
	if err := RegisterMetrics(r); err != nil {
		t.Fatalf("RegisterMetrics: %v", err)
	}
	if MetricsHandler() == nil {
		t.Fatalf("nil metrics handler")
	}
}
