// internal/service/checkout/application/policy.go
package application

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"bazaar/internal/service/checkout/domain"
)

// CheckoutPolicy 用一组 CEL 表达式描述下单策略，
// 例如 "total <= 50000000" 或 "item_count <= 100"。
// 规则在启动时编译，结算时对快照求值；任意一条不为 true 则拒绝下单。
type CheckoutPolicy struct {
	rules    []string
	programs []cel.Program
}

// NewCheckoutPolicy 编译配置中的策略规则。规则为空时策略恒通过。
func NewCheckoutPolicy(rules []string) (*CheckoutPolicy, error) {
	env, err := cel.NewEnv(
		cel.Variable("user_id", cel.StringType),
		cel.Variable("subtotal", cel.IntType),
		cel.Variable("total", cel.IntType),
		cel.Variable("item_count", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cel environment: %w", err)
	}

	p := &CheckoutPolicy{rules: rules}
	for _, rule := range rules {
		ast, iss := env.Compile(rule)
		if iss != nil && iss.Err() != nil {
			return nil, fmt.Errorf("failed to compile policy rule %q: %w", rule, iss.Err())
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("failed to build program for rule %q: %w", rule, err)
		}
		p.programs = append(p.programs, prg)
	}
	return p, nil
}

// Evaluate 对快照求值所有规则。违反的规则以 ErrValidation 报告给调用方。
func (p *CheckoutPolicy) Evaluate(snap *domain.CartSnapshot) error {
	if p == nil || len(p.programs) == 0 {
		return nil
	}

	input := map[string]interface{}{
		"user_id":    snap.UserID,
		"subtotal":   snap.Subtotal,
		"total":      snap.Total,
		"item_count": int64(len(snap.Items)),
	}

	for i, prg := range p.programs {
		out, _, err := prg.Eval(input)
		if err != nil {
			return fmt.Errorf("policy rule %q evaluation failed: %w", p.rules[i], err)
		}
		allowed, ok := out.Value().(bool)
		if !ok {
			return fmt.Errorf("policy rule %q did not evaluate to a boolean", p.rules[i])
		}
		if !allowed {
			return fmt.Errorf("%w: checkout rejected by policy rule %q", domain.ErrValidation, p.rules[i])
		}
	}
	return nil
}
