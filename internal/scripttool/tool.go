package scripttool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/flemzord/toolgate/internal/tool"
)

// emptySchema is used for functions that declare no parameters.
var emptySchema = json.RawMessage(`{"type":"object","properties":{}}`)

// scriptTool is one function of a script, exposed as a tool.
type scriptTool struct {
	script string
	spec   ToolSpec
	runner *Runner
}

// limitedScriptTool adds the output_limit hook. It is a separate type so
// tools without a limit keep the pipeline default.
type limitedScriptTool struct {
	*scriptTool
}

// Interface guards.
var (
	_ tool.Tool          = (*scriptTool)(nil)
	_ tool.CacheSkipper  = (*scriptTool)(nil)
	_ tool.ReturnTyper   = (*scriptTool)(nil)
	_ tool.OutputLimiter = limitedScriptTool{}
)

func (t *scriptTool) Name() string        { return t.spec.Name }
func (t *scriptTool) Description() string { return t.spec.Description }

func (t *scriptTool) Schema() json.RawMessage {
	if len(t.spec.Parameters) == 0 {
		return emptySchema
	}
	return t.spec.Parameters
}

func (t *scriptTool) DefaultPermission() tool.Permission {
	if t.spec.Permission == nil {
		return tool.Permission{}
	}
	return t.spec.Permission.Permission
}

func (t *scriptTool) SkipCacheResult() bool      { return t.spec.SkipCache }
func (t *scriptTool) DeclaredReturnType() string { return t.spec.ReturnType }

func (t limitedScriptTool) DefaultOutputLimitChars() int { return t.spec.OutputLimit }

func (t *scriptTool) function() string {
	if t.spec.Function != "" {
		return t.spec.Function
	}
	return t.spec.Name
}

// Execute runs the script function. A response with ok=false is an error;
// is_error marks a soft failure whose data still reaches the model.
func (t *scriptTool) Execute(ctx context.Context, args json.RawMessage) (tool.Output, error) {
	resp, err := t.runner.Call(ctx, t.script, t.function(), args)
	if err != nil {
		return tool.Output{}, err
	}
	if !resp.OK {
		msg := resp.Error
		if msg == "" {
			msg = "script reported failure"
		}
		return tool.Output{}, fmt.Errorf("%s: %w", t.spec.Name, errors.New(msg))
	}
	var data any
	if len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, &data); err != nil {
			return tool.Output{}, fmt.Errorf("%w: %s: decode data: %w", ErrScriptProcess, t.spec.Name, err)
		}
	}
	return tool.Output{Data: data, IsError: resp.IsError}, nil
}

// Tools builds one tool per function of the module.
func (m ParsedModule) Tools(runner *Runner) []tool.Tool {
	tools := make([]tool.Tool, 0, len(m.Sidecar.Tools))
	for _, spec := range m.Sidecar.Tools {
		st := &scriptTool{script: m.Path, spec: spec, runner: runner}
		if spec.OutputLimit > 0 {
			tools = append(tools, limitedScriptTool{st})
			continue
		}
		tools = append(tools, st)
	}
	return tools
}

// Group builds the registry group for the module.
func (m ParsedModule) Group(runner *Runner) tool.Group {
	g := tool.Group{Name: m.GroupName(), Tools: m.Tools(runner)}
	if m.Sidecar.Rules != "" {
		g.Rules = tool.StaticRules(m.Sidecar.Rules)
	}
	return g
}
