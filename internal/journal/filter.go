package journal

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/mishnit/pubsub/internal/events"
)

// Filter is a compiled CEL predicate over journal entries. Available
// variables: seq, kind, order_id, name, tier, from, reason, consumer, value,
// ts_ms and now_ms.
type Filter struct {
	expr string
	prog cel.Program
}

// Compile parses and type-checks expr. An empty expression returns nil,
// which matches everything.
func Compile(expr string) (*Filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("seq", cel.IntType),
		cel.Variable("kind", cel.StringType),
		cel.Variable("order_id", cel.StringType),
		cel.Variable("name", cel.StringType),
		cel.Variable("tier", cel.StringType),
		cel.Variable("from", cel.StringType),
		cel.Variable("reason", cel.StringType),
		cel.Variable("consumer", cel.StringType),
		cel.Variable("value", cel.DoubleType),
		cel.Variable("ts_ms", cel.IntType),
		cel.Variable("now_ms", cel.IntType),
	)
	if err != nil {
		return nil, err
	}
	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("compile filter: %w", iss.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("compile filter: expression must be boolean, got %s", ast.OutputType())
	}
	prog, err := env.Program(ast)
	if err != nil {
		return nil, err
	}
	return &Filter{expr: expr, prog: prog}, nil
}

// String returns the source expression.
func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	return f.expr
}

// Match evaluates the filter against one entry. A nil filter matches.
func (f *Filter) Match(seq uint64, ev events.Event) (bool, error) {
	if f == nil {
		return true, nil
	}
	out, _, err := f.prog.Eval(map[string]any{
		"seq":      int64(seq),
		"kind":     string(ev.Kind),
		"order_id": ev.OrderID,
		"name":     ev.Name,
		"tier":     ev.Tier,
		"from":     ev.From,
		"reason":   ev.Reason,
		"consumer": ev.Consumer,
		"value":    ev.Value,
		"ts_ms":    ev.Time.UnixMilli(),
		"now_ms":   time.Now().UnixMilli(),
	})
	if err != nil {
		return false, fmt.Errorf("eval filter: %w", err)
	}
	b, ok := out.Value().(bool)
	return ok && b, nil
}
