package worker

import (
	"testing"

	"github.com/engramscm/engram-scm/pkg/scmsync/breaker"
)

func TestBreakerBlocksDispatchHalfOpenBlocksNonProbe(t *testing.T) {
	if !breakerBlocksDispatch(breaker.HalfOpen, "incremental") {
		t.Fatal("expected a half_open breaker to block a non-probe job")
	}
}

func TestBreakerBlocksDispatchHalfOpenAllowsProbe(t *testing.T) {
	if breakerBlocksDispatch(breaker.HalfOpen, "probe") {
		t.Fatal("expected a half_open breaker to allow a probe job through")
	}
}

func TestBreakerBlocksDispatchClosedAllowsAnyMode(t *testing.T) {
	if breakerBlocksDispatch(breaker.Closed, "incremental") {
		t.Fatal("expected a closed breaker not to block dispatch")
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	w := New(nil, nil, Config{WorkerID: "w1"}, nil, nil, nil, nil)
	if w.cfg.PollInterval <= 0 {
		t.Fatal("expected a default poll interval")
	}
	if w.cfg.LeaseSeconds <= 0 {
		t.Fatal("expected a default lease")
	}
	if w.cfg.LimiterWaitMax <= 0 {
		t.Fatal("expected a default limiter wait max")
	}
}
