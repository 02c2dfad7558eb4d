package repl

import (
	"bytes"
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func newTestREPL(t *testing.T, input string, exec Exec) (*REPL, *bytes.Buffer) {
	t.Helper()
	out := &bytes.Buffer{}
	r := New(exec, []string{"cfg", "cpg", "quorum"},
		WithIO(strings.NewReader(input), out),
		WithHistory(NewHistory(filepath.Join(t.TempDir(), "history"))))
	return r, out
}

func TestREPL_Run(t *testing.T) {
	var got [][]string
	exec := func(args []string) error {
		got = append(got, args)
		if args[0] == "fail" {
			return errors.New("boom")
		}
		return nil
	}

	r, out := newTestREPL(t, "\ncpg members g1\nfail\ncpg send g1 'hello world'\nexit\ncfg local\n", exec)
	if err := r.Run(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := [][]string{
		{"cpg", "members", "g1"},
		{"fail"},
		{"cpg", "send", "g1", "hello world"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("exec calls = %v, want %v", got, want)
	}
	if !strings.Contains(out.String(), "error: boom") {
		t.Errorf("output missing error: %q", out.String())
	}
	if r.history.Len() != 4 {
		t.Errorf("history len = %d, want 4", r.history.Len())
	}
}

func TestREPL_EOFAndHelp(t *testing.T) {
	r, out := newTestREPL(t, "help", func([]string) error {
		t.Error("exec called for help")
		return nil
	})
	if err := r.Run(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !strings.Contains(out.String(), "commands: cfg, cpg, exit, help, quit, quorum") {
		t.Errorf("help output = %q", out.String())
	}
}

func TestREPL_BadQuote(t *testing.T) {
	r, out := newTestREPL(t, "cpg send \"open\n", func([]string) error {
		t.Error("exec called for an unterminated quote")
		return nil
	})
	if err := r.Run(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !strings.Contains(out.String(), ErrUnterminatedQuote.Error()) {
		t.Errorf("output = %q", out.String())
	}
}

func TestSplit(t *testing.T) {
	tests := []struct {
		line    string
		want    []string
		wantErr bool
	}{
		{"cfg  local", []string{"cfg", "local"}, false},
		{`cpg send g "a b"`, []string{"cpg", "send", "g", "a b"}, false},
		{`x 'it\s'`, []string{"x", `it\s`}, false},
		{`x a\ b`, []string{"x", "a b"}, false},
		{`x ""`, []string{"x", ""}, false},
		{`x "open`, nil, true},
		{`x tail\`, nil, true},
	}
	for _, tt := range tests {
		got, err := Split(tt.line)
		if (err != nil) != tt.wantErr {
			t.Errorf("Split(%q) error = %v", tt.line, err)
			continue
		}
		if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Split(%q) = %q, want %q", tt.line, got, tt.want)
		}
	}
}
