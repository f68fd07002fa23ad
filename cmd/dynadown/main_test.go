package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/jacentio/dynadown/internal/ddbtest"
	"github.com/jacentio/dynadown/store"
)

type harness struct {
	t      *testing.T
	client *ddbtest.Client
	stdout bytes.Buffer
	stderr bytes.Buffer
}

func newHarness(t *testing.T) *harness {
	return &harness{t: t, client: ddbtest.New()}
}

func (h *harness) run(args ...string) error {
	h.stdout.Reset()
	a := &app{client: h.client, stdout: &h.stdout, stderr: &h.stderr}
	return a.run(context.Background(), args)
}

func (h *harness) mustRun(args ...string) {
	h.t.Helper()
	if err := h.run(args...); err != nil {
		h.t.Fatalf("run %v: %v", args, err)
	}
}

func jsonEqual(t *testing.T, want, got string) {
	t.Helper()
	var w, g any
	if err := json.Unmarshal([]byte(want), &w); err != nil {
		t.Fatalf("invalid expected JSON %q: %v", want, err)
	}
	if err := json.Unmarshal([]byte(got), &g); err != nil {
		t.Fatalf("invalid JSON output %q: %v", got, err)
	}
	if !reflect.DeepEqual(w, g) {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func expectErrorContains(t *testing.T, err error, msg string) {
	t.Helper()
	if err == nil || !strings.Contains(err.Error(), msg) {
		t.Errorf("expected error containing %q, got %v", msg, err)
	}
}

func TestPutGet(t *testing.T) {
	h := newHarness(t)

	h.mustRun("-l", "data", "put", "greeting", "hello")
	h.mustRun("-l", "data", "get", "greeting")
	if got := h.stdout.String(); got != "hello\n" {
		t.Errorf("expected \"hello\\n\", got %q", got)
	}
	// Each run opens with create-if-missing.
	if n := len(h.client.CreatedTables()); n != 2 {
		t.Errorf("expected 2 CreateTable calls, got %d", n)
	}
}

func TestPutGet_JSON(t *testing.T) {
	h := newHarness(t)

	h.mustRun("-l", "data/users", "--json", "put", "alice", `{"age":30,"tags":["a"]}`)
	h.mustRun("-l", "data/users", "--json", "get", "alice")
	jsonEqual(t, `{"age":30,"tags":["a"]}`, h.stdout.String())
	if h.client.Item("data", "users", "alice") == nil {
		t.Error("expected item in partition users")
	}
}

func TestPut_InvalidJSON(t *testing.T) {
	h := newHarness(t)

	expectErrorContains(t, h.run("-l", "data", "--json", "put", "k", "{nope"), "parse value")
	if n := len(h.client.CreatedTables()); n != 0 {
		t.Errorf("expected no table created, got %d", n)
	}
}

func TestGet_NotFound(t *testing.T) {
	h := newHarness(t)
	h.mustRun("-l", "data", "put", "k", "v")

	if err := h.run("-l", "data", "get", "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDel(t *testing.T) {
	h := newHarness(t)
	h.mustRun("-l", "data", "put", "k", "v")

	h.mustRun("-l", "data", "del", "k")
	if keys := h.client.Keys("data", "!"); len(keys) != 0 {
		t.Errorf("expected no keys, got %v", keys)
	}
}

func TestScan(t *testing.T) {
	h := newHarness(t)
	for _, k := range []string{"a", "b", "c", "d"} {
		h.mustRun("-l", "data", "put", k, "v-"+k)
	}

	h.mustRun("-l", "data", "--gt", "a", "--lt", "d", "scan")
	if got, want := h.stdout.String(), "b\tv-b\nc\tv-c\n"; got != want {
		t.Errorf("expected %q, got %q", want, got)
	}

	h.mustRun("-l", "data", "--reverse", "--limit", "2", "scan")
	if got, want := h.stdout.String(), "d\tv-d\nc\tv-c\n"; got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestScan_JSON(t *testing.T) {
	h := newHarness(t)
	h.mustRun("-l", "data", "--json", "put", "n", "1.5")

	h.mustRun("-l", "data", "--json", "scan")
	jsonEqual(t, `{"key":"n","value":1.5}`, strings.TrimSpace(h.stdout.String()))
}

func TestDestroy(t *testing.T) {
	h := newHarness(t)
	h.mustRun("-l", "data", "put", "k", "v")

	h.mustRun("-l", "data", "destroy")
	if n := h.client.DeleteTableCalls(); n != 1 {
		t.Errorf("expected 1 DeleteTable call, got %d", n)
	}
	if keys := h.client.Keys("data", "!"); keys != nil {
		t.Errorf("expected table gone, got keys %v", keys)
	}
}

func TestUsageErrors(t *testing.T) {
	h := newHarness(t)

	for _, args := range [][]string{
		{"-l", "data"},
		{"-l", "data", "get"},
		{"-l", "data", "put", "k"},
		{"-l", "data", "scan", "extra"},
		{"-l", "data", "compact"},
	} {
		if err := h.run(args...); !errors.Is(err, errUsage) {
			t.Errorf("%v: expected usage error, got %v", args, err)
		}
	}
	expectErrorContains(t, h.run("get", "k"), "--location")
	if err := h.run("--no-such-flag"); err == nil {
		t.Error("expected an error for an unknown flag")
	}
}

func TestLocationFromEnv(t *testing.T) {
	t.Setenv("DYNADOWN_LOCATION", "envtable/p")
	h := newHarness(t)

	h.mustRun("put", "k", "v")
	if h.client.Item("envtable", "p", "k") == nil {
		t.Error("expected item written to the env location")
	}
}

func TestConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dynadown.yaml")
	if err := os.WriteFile(path, []byte("location: filetable\npage-size: 10\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	h := newHarness(t)

	h.mustRun("--config", path, "put", "k", "v")
	if h.client.Item("filetable", "!", "k") == nil {
		t.Error("expected item written to the configured location")
	}
}

func TestConfigFile_FlagWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dynadown.json")
	if err := os.WriteFile(path, []byte(`{"location":"filetable"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	h := newHarness(t)

	h.mustRun("--config", path, "-l", "flagtable", "put", "k", "v")
	if h.client.Item("flagtable", "!", "k") == nil {
		t.Error("expected item written to the flag location")
	}
	if h.client.Item("filetable", "!", "k") != nil {
		t.Error("expected nothing written to the file location")
	}
}

func TestConfigFile_Missing(t *testing.T) {
	h := newHarness(t)

	err := h.run("--config", filepath.Join(t.TempDir(), "nope.yaml"), "-l", "data", "scan")
	expectErrorContains(t, err, "read config")
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		arg    string
		asJSON bool
		want   any
	}{
		{"42", false, "42"},
		{"42", true, float64(42)},
		{`[true,null]`, true, []any{true, nil}},
	}
	for _, tt := range tests {
		got, err := parseValue(tt.arg, tt.asJSON)
		if err != nil {
			t.Fatalf("parseValue(%q): %v", tt.arg, err)
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("parseValue(%q, %v): expected %#v, got %#v", tt.arg, tt.asJSON, tt.want, got)
		}
	}
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		in     any
		asJSON bool
		want   string
	}{
		{"plain", false, "plain"},
		{"plain", true, `"plain"`},
		{nil, false, ""},
		{nil, true, "null"},
		{float64(3), false, "3"},
		{map[string]any{"a": true}, false, `{"a":true}`},
	}
	for _, tt := range tests {
		got, err := formatValue(tt.in, tt.asJSON)
		if err != nil {
			t.Fatalf("formatValue(%#v): %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("formatValue(%#v, %v): expected %q, got %q", tt.in, tt.asJSON, tt.want, got)
		}
	}
}
