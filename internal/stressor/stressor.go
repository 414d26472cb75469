// Package stressor defines the payload plug-in surface: a registry of
// named stressors, each with an option schema and an entry point driven
// by a per-worker run context.
package stressor

import (
	"context"
	"sort"
	"sync"

	"stressforge/internal/engine/control"
	appErr "stressforge/pkg/errors"
)

// ExitClass is a payload's own verdict, independent of how the process
// terminated.
type ExitClass int

const (
	Success ExitClass = iota
	ResourceUnavailable
	VerificationFailure
	Unimplemented
)

func (c ExitClass) String() string {
	switch c {
	case Success:
		return "success"
	case ResourceUnavailable:
		return "resource-unavailable"
	case VerificationFailure:
		return "verification-failure"
	case Unimplemented:
		return "unimplemented"
	default:
		return "unknown"
	}
}

// ExitCode maps the verdict onto the process exit status.
func (c ExitClass) ExitCode() int {
	switch c {
	case Success:
		return appErr.ExitSuccess
	case ResourceUnavailable:
		return appErr.ExitResourceUnavailable
	case VerificationFailure:
		return appErr.ExitVerificationFailure
	case Unimplemented:
		return appErr.ExitUnimplemented
	default:
		return appErr.ExitEngineFailure
	}
}

// Params carries the validated per-run inputs into a payload entry.
type Params struct {
	Options Options
	Verify  bool
}

// EntryFunc is the payload body. It loops until ctrl.ShouldContinue()
// goes false, incrementing the bogo-ops counter once per completed
// iteration.
type EntryFunc func(ctx context.Context, ctrl *control.RunContext, p Params) (ExitClass, error)

// Descriptor declares one stressor.
type Descriptor struct {
	Name        string
	Summary     string
	Tags        []string
	Schema      Schema
	VerifyByDef bool
	Entry       EntryFunc
}

var (
	regMu    sync.RWMutex
	registry = map[string]*Descriptor{}
)

// Register installs a descriptor. Called from payload init functions;
// duplicate names are a programming error.
func Register(d *Descriptor) {
	regMu.Lock()
	defer regMu.Unlock()
	if d.Name == "" || d.Entry == nil {
		panic("stressor: descriptor missing name or entry")
	}
	if _, dup := registry[d.Name]; dup {
		panic("stressor: duplicate registration of " + d.Name)
	}
	registry[d.Name] = d
}

// Lookup finds a stressor by name.
func Lookup(name string) (*Descriptor, error) {
	regMu.RLock()
	defer regMu.RUnlock()
	d, ok := registry[name]
	if !ok {
		return nil, appErr.New(appErr.StressorNotFound).WithDetail("stressor", name)
	}
	return d, nil
}

// Names lists registered stressors in sorted order.
func Names() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
