package exec

import (
	"strings"
	"testing"

	"github.com/basalt-pkg/apm/action"
	"github.com/basalt-pkg/apm/download"
)

func TestExecuteOrdersOperations(t *testing.T) {
	var calls []string
	d := NewDriver(t.TempDir())
	d.Runner = func(name string, args ...string) error {
		calls = append(calls, args[3]) // the flag, after --root <root> --force-all
		return nil
	}

	acts := &action.Actions{
		Purge:     []string{"old1"},
		Remove:    []string{"old2"},
		Configure: []string{"foo"},
	}
	dl := download.New()
	if err := d.Execute(acts, dl, false); err != nil {
		t.Fatal(err)
	}
	got := strings.Join(calls, ",")
	if got != "--purge,--remove,--configure" {
		t.Errorf("operation order = %q, want purge,remove,configure", got)
	}
}

func TestExecutePropagatesDpkgFailure(t *testing.T) {
	d := NewDriver(t.TempDir())
	d.Runner = func(name string, args ...string) error {
		return &ExecutionError{Args: args, ExitCode: 2}
	}
	acts := &action.Actions{Remove: []string{"foo"}}
	err := d.Execute(acts, download.New(), false)
	if err == nil {
		t.Fatal("expected dpkg failure to propagate")
	}
}

func TestNoOpBatchNeverInvokesDpkg(t *testing.T) {
	invoked := false
	d := NewDriver(t.TempDir())
	d.Runner = func(name string, args ...string) error {
		invoked = true
		return nil
	}
	acts := &action.Actions{}
	if err := d.Execute(acts, download.New(), false); err != nil {
		t.Fatal(err)
	}
	if invoked {
		t.Error("expected no dpkg invocation for an empty action set")
	}
}
