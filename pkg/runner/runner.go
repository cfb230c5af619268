// Package runner drives the worker process lifecycle: start hooks, wait for
// shutdown, drain sessions, stop hooks.
package runner

import (
	"bytes"
	"context"
	"io"

	"github.com/dimiro1/banner"
)

type State int

const (
	StateNew State = iota
	StateStarting
	StateRunning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

type Runner interface {
	Run(ctx context.Context) error
	Stop() error
	State() State
}

// Hooks run around the running phase. OnStart receives the run context;
// an error aborts Run before the running state is reached.
type Hooks struct {
	OnStart func(ctx context.Context) error
	OnStop  func()
}

// Drainer ends in-flight work during shutdown.
type Drainer interface {
	Drain() error
}

// Version is stamped at build time with -ldflags.
var Version = "dev"

// PrintBanner writes the startup banner to w.
func PrintBanner(w io.Writer) {
	tpl := "{{ .Title \"DAELA\" \"\" 0 }}\nVersion: " + Version + "\nGo: {{ .GoVersion }}\n"
	banner.Init(w, true, false, bytes.NewBufferString(tpl))
}
