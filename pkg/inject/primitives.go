package inject

import (
	"context"
	"encoding/base64"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/sstimap/sstimap-go/pkg/channel"
	"github.com/sstimap/sstimap-go/pkg/registry"
	"github.com/sstimap/sstimap-go/pkg/ssmerr"
	"github.com/sstimap/sstimap-go/pkg/ssmlog"
	"github.com/sstimap/sstimap-go/pkg/template"
	"github.com/sstimap/sstimap-go/pkg/timing"
)

// CallOpts carries the per-call overrides the original's **kwargs pattern
// supported: an explicit nil means "fall back to session data", while Blind
// toggles the timing-verdict code path.
type CallOpts struct {
	Prefix  *string
	Suffix  *string
	Wrapper *string
	Blind   bool
}

// RenderOpts extends CallOpts with the framing overrides Render needs.
// A non-nil pointer to an empty string means "skip framing"; a nil pointer
// means "resolve from session data, then the plugin's render action".
type RenderOpts struct {
	CallOpts
	Header      *string
	Trailer     *string
	HeaderRand  *[2]int
	TrailerRand *[2]int
	Render      *string // override for the render action's "render" template
}

// InjectDiagnostic is the per-call diagnostic record the blind detection
// loop reads for its false-positive logging (the original's
// self._inject_verbose).
type InjectDiagnostic struct {
	Result        bool
	Payload       string
	ExpectedDelay time.Duration
	Start, End    int64
}

// Primitives implements the six injection primitives (component C) against
// a single channel/plugin pair.
type Primitives struct {
	Ch     channel.Channel
	Plugin *registry.Plugin
	Timing *timing.Model
	Log    *ssmlog.Logger
}

// New builds a Primitives set. log may be nil.
func New(ch channel.Channel, plugin *registry.Plugin, tm *timing.Model, log *ssmlog.Logger) *Primitives {
	if log == nil {
		log = ssmlog.Nop()
	}
	return &Primitives{Ch: ch, Plugin: plugin, Timing: tm, Log: log}
}

func (p *Primitives) resolveFraming(opts CallOpts) (prefix, suffix, wrapper string) {
	data := p.Ch.Data()
	if opts.Prefix != nil {
		prefix = *opts.Prefix
	} else {
		prefix = data.GetString("prefix", "")
	}
	if opts.Suffix != nil {
		suffix = *opts.Suffix
	} else {
		suffix = data.GetString("suffix", "")
	}
	if opts.Wrapper != nil {
		wrapper = *opts.Wrapper
	} else {
		wrapper = data.GetString("wrapper", "{code}")
	}
	return
}

func ptr(s string) *string { return &s }

// randInt4 returns a random 4-digit integer (1000..9999), matching
// utils.rand.randint_n(10, 4) in the original.
func randInt4() int {
	return 1000 + rand.Intn(9000) //nolint:gosec // probing arithmetic, not a secret
}

// Inject is the raw primitive. Non-blind, it sends the composed injection,
// records the round trip into the timing model, and returns the trimmed
// response body. Blind, it measures whole-second wall-clock delta against
// the timing model's expected delay and returns a boolean verdict — per
// the spec's resolved Open Question, the wall clock is deliberately
// truncated to integer seconds on both sides of the request, which can
// under-count sub-second delays but keeps false positives rare.
func (p *Primitives) Inject(ctx context.Context, code string, opts CallOpts) (text string, blindVerdict bool, diag *InjectDiagnostic, err error) {
	prefix, suffix, wrapper := p.resolveFraming(opts)
	injection := prefix + template.Format(wrapper, template.Fields{"code": code}) + suffix

	if opts.Blind {
		expectedDelay := p.Timing.ExpectedDelay(p.Ch.Data().GetBool("blind_test"))
		start := time.Now().Unix()
		_, reqErr := p.Ch.Req(ctx, injection)
		end := time.Now().Unix()
		if reqErr != nil {
			return "", false, nil, ssmerr.NewChannelError(p.Ch.URL(), reqErr)
		}
		delta := time.Duration(end-start) * time.Second
		result := delta >= expectedDelay
		diag = &InjectDiagnostic{
			Result:        result,
			Payload:       injection,
			ExpectedDelay: expectedDelay,
			Start:         start,
			End:           end,
		}
		return "", result, diag, nil
	}

	start := time.Now()
	body, reqErr := p.Ch.Req(ctx, injection)
	if reqErr != nil {
		return "", false, nil, ssmerr.NewChannelError(p.Ch.URL(), reqErr)
	}
	p.Timing.Append(time.Since(start))
	return strings.TrimSpace(body), false, nil, nil
}

// Render is the framed execution probe (the workhorse primitive). It
// resolves header/trailer templates from opts, session data, then the
// plugin's render action; generates random header/trailer arithmetic
// checks; and either forwards the blind verdict or extracts the substring
// strictly between the expected header and trailer strings.
func (p *Primitives) Render(ctx context.Context, code string, opts RenderOpts) (result string, blindVerdict bool, err error) {
	renderAction := p.actionFor("render")

	headerTemplate, headerSkipped := p.resolveFramingTemplate(opts.Header, "header", renderAction)
	trailerTemplate, trailerSkipped := p.resolveFramingTemplate(opts.Trailer, "trailer", renderAction)

	var headerRand, trailerRand [2]int
	var header, trailer string
	if !headerSkipped && headerTemplate != "" {
		headerRand = resolveRand(opts.HeaderRand)
		header = template.Format(headerTemplate, template.Fields{"header": []int{headerRand[0], headerRand[1]}})
	}
	if !trailerSkipped && trailerTemplate != "" {
		trailerRand = resolveRand(opts.TrailerRand)
		trailer = template.Format(trailerTemplate, template.Fields{"trailer": []int{trailerRand[0], trailerRand[1]}})
	}

	payloadTemplate := ""
	if opts.Render != nil {
		payloadTemplate = *opts.Render
	} else {
		payloadTemplate = p.Ch.Data().GetString("render", "")
		if payloadTemplate == "" {
			payloadTemplate = renderAction.String("render")
		}
	}
	if payloadTemplate == "" {
		return "", false, ssmerr.ErrActionMissing
	}
	payload := template.Format(payloadTemplate, template.Fields{"code": code})

	prefix, suffix, wrapper := p.resolveFraming(opts.CallOpts)
	wrapped := template.Format(wrapper, template.Fields{"code": header}) +
		template.Format(wrapper, template.Fields{"code": payload}) +
		template.Format(wrapper, template.Fields{"code": trailer})

	headerExpected := p.expectedString(headerRand, header)
	trailerExpected := p.expectedString(trailerRand, trailer)

	raw, verdict, _, err := p.Inject(ctx, wrapped, CallOpts{
		Prefix:  &prefix,
		Suffix:  &suffix,
		Wrapper: ptr("{code}"),
		Blind:   opts.Blind,
	})
	if err != nil {
		return "", false, err
	}
	if opts.Blind {
		return "", verdict, nil
	}
	if header == "" && trailer == "" {
		return raw, false, nil
	}
	return extractFramed(raw, header, trailer, headerExpected, trailerExpected), false, nil
}

// expectedString reduces a random pair to the framing check string per the
// plugin's header_type: concatenation for "cat", sum for "add". Returns ""
// when the framing fragment itself is empty (framing skipped).
func (p *Primitives) expectedString(randPair [2]int, fragment string) string {
	if fragment == "" {
		return ""
	}
	switch p.Plugin.HeaderType {
	case "add":
		return strconv.Itoa(randPair[0] + randPair[1])
	case "cat":
		return strconv.Itoa(randPair[0]) + strconv.Itoa(randPair[1])
	default:
		return ""
	}
}

func resolveRand(override *[2]int) [2]int {
	if override != nil {
		return *override
	}
	return [2]int{randInt4(), randInt4()}
}

// resolveFramingTemplate implements "empty string in kwargs means skip
// framing; otherwise session data, then plugin action".
func (p *Primitives) resolveFramingTemplate(override *string, key string, action registry.Action) (tpl string, skipped bool) {
	if override != nil {
		if *override == "" {
			return "", true
		}
		return *override, false
	}
	tpl = p.Ch.Data().GetString(key, "")
	if tpl == "" {
		tpl = action.String(key)
	}
	return tpl, false
}

// extractFramed extracts the substring strictly between headerExpected and
// trailerExpected in raw, mirroring the original's str.partition-based
// extraction: absent framing yields an empty string rather than an error.
func extractFramed(raw, header, trailer, headerExpected, trailerExpected string) string {
	afterHeader := raw
	if header != "" {
		_, afterHeader, _ = strings.Cut(raw, headerExpected)
	}
	result := ""
	if trailer != "" && afterHeader != "" {
		before, _, _ := strings.Cut(afterHeader, trailerExpected)
		result = before
	}
	return strings.TrimSpace(result)
}

func (p *Primitives) actionFor(name string) registry.Action {
	if p.Plugin == nil {
		return registry.Action{}
	}
	return p.Plugin.Actions[name]
}

// codecFields builds the {code, code_b64, code_b64p, lens} field set every
// capability adapter template consumes.
func codecFields(code string, extra template.Fields) template.Fields {
	codeB64 := base64.URLEncoding.EncodeToString([]byte(code))
	codeB64p := base64.StdEncoding.EncodeToString([]byte(code))
	lens := map[string]int{
		"clen":   len(code),
		"clen64": len(codeB64),
		"clen64p": len(codeB64p),
	}
	for _, v := range extra {
		if asLens, ok := v.(map[string]int); ok {
			for lk, lv := range asLens {
				lens[lk] = lv
			}
			continue
		}
	}
	fields := template.Fields{
		"code":     code,
		"code_b64": codeB64,
		"code_b64p": codeB64p,
		"lens":     lens,
	}
	for k, v := range extra {
		if _, ok := v.(map[string]int); ok {
			continue
		}
		fields[k] = v
	}
	return fields
}

// Evaluate is the "evaluate" capability adapter: format the plugin's
// evaluate template with the code's b64/b64p encodings and lengths, then
// dispatch to the action's call primitive (default "render").
func (p *Primitives) Evaluate(ctx context.Context, code string, opts CallOpts) (string, error) {
	action := p.actionFor("evaluate")
	if !action.Has("evaluate") {
		return "", ssmerr.ErrActionMissing
	}
	executionCode := action.Template("evaluate").Execute(codecFields(code, nil))
	text, _, err := p.Dispatch(ctx, callOrDefault(action.Call, "render"), executionCode, opts)
	return text, err
}

// Execute is the "execute" capability adapter; identical to Evaluate except
// literal "\n" sequences in the result are unescaped to real newlines.
func (p *Primitives) Execute(ctx context.Context, code string, opts CallOpts) (string, error) {
	action := p.actionFor("execute")
	if !action.Has("execute") {
		return "", ssmerr.ErrActionMissing
	}
	executionCode := action.Template("execute").Execute(codecFields(code, nil))
	text, _, err := p.Dispatch(ctx, callOrDefault(action.Call, "render"), executionCode, opts)
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(text, `\n`, "\n"), nil
}

// EvaluateBlind formats the plugin's evaluate_blind template (which also
// receives {delay}, the current expected delay) and dispatches blind.
func (p *Primitives) EvaluateBlind(ctx context.Context, code string, opts CallOpts) (bool, error) {
	action := p.actionFor("evaluate_blind")
	if !action.Has("evaluate_blind") {
		return false, ssmerr.ErrActionMissing
	}
	expectedDelay := p.Timing.ExpectedDelay(p.Ch.Data().GetBool("blind_test"))
	delaySeconds := int(expectedDelay.Seconds())
	extra := template.Fields{
		"delay": delaySeconds,
		"lens":  map[string]int{"delay": len(strconv.Itoa(delaySeconds))},
	}
	executionCode := action.Template("evaluate_blind").Execute(codecFields(code, extra))
	opts.Blind = true
	_, verdict, err := p.Dispatch(ctx, callOrDefault(action.Call, "inject"), executionCode, opts)
	return verdict, err
}

// ExecuteBlind mirrors EvaluateBlind for the execute_blind action.
func (p *Primitives) ExecuteBlind(ctx context.Context, code string, opts CallOpts) (bool, error) {
	action := p.actionFor("execute_blind")
	if !action.Has("execute_blind") {
		return false, ssmerr.ErrActionMissing
	}
	expectedDelay := p.Timing.ExpectedDelay(p.Ch.Data().GetBool("blind_test"))
	delaySeconds := int(expectedDelay.Seconds())
	extra := template.Fields{
		"delay": delaySeconds,
		"lens":  map[string]int{"delay": len(strconv.Itoa(delaySeconds))},
	}
	executionCode := action.Template("execute_blind").Execute(codecFields(code, extra))
	opts.Blind = true
	_, verdict, err := p.Dispatch(ctx, callOrDefault(action.Call, "inject"), executionCode, opts)
	return verdict, err
}

func callOrDefault(call, def string) string {
	if call == "" {
		return def
	}
	return call
}

// Dispatch resolves a call name (the closed enum of component C primitives
// per DESIGN NOTES: inject, render, evaluate, execute, evaluate_blind,
// execute_blind) to the matching method and invokes it. An unsupported
// name returns ErrCallUnsupported rather than the original's silent
// getattr-miss; names are checked here at dispatch time, not at load time.
func (p *Primitives) Dispatch(ctx context.Context, callName, code string, opts CallOpts) (text string, blindVerdict bool, err error) {
	switch callName {
	case "inject":
		text, blindVerdict, _, err = p.Inject(ctx, code, opts)
		return text, blindVerdict, err
	case "render":
		text, blindVerdict, err = p.Render(ctx, code, RenderOpts{CallOpts: opts})
		return text, blindVerdict, err
	case "evaluate":
		text, err = p.Evaluate(ctx, code, opts)
		return text, false, err
	case "execute":
		text, err = p.Execute(ctx, code, opts)
		return text, false, err
	case "evaluate_blind":
		blindVerdict, err = p.EvaluateBlind(ctx, code, opts)
		return "", blindVerdict, err
	case "execute_blind":
		blindVerdict, err = p.ExecuteBlind(ctx, code, opts)
		return "", blindVerdict, err
	default:
		return "", false, ssmerr.ErrCallUnsupported
	}
}
