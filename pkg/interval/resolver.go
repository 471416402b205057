package interval

import (
	"strings"

	"github.com/kasuganosora/partadvisor/pkg/filter"
)

// Resolve 将表达式树归约为 列名（小写） -> 区间
//
// AND/OR 节点只合并左右子树各自最后得到的 (列, 区间)：
// 同列时求交（AND）或并（OR）写入同一槽位，不同列时两者分别写入。
// 同一列在多层嵌套中出现多次时按求值顺序后写覆盖先写，不做全局合并。
func Resolve(expr filter.Expr) (map[string]Interval, error) {
	out := make(map[string]Interval)
	col, iv, err := resolve(expr, out)
	if err != nil {
		return nil, err
	}
	out[col] = iv
	return out, nil
}

func resolve(expr filter.Expr, out map[string]Interval) (string, Interval, error) {
	switch n := expr.(type) {
	case *filter.Comparison:
		return resolveComparison(n)
	case *filter.BinaryExpr:
		lcol, liv, err := resolve(n.Left, out)
		if err != nil {
			return "", Interval{}, err
		}
		rcol, riv, err := resolve(n.Right, out)
		if err != nil {
			return "", Interval{}, err
		}
		if lcol == rcol {
			merged := Intersect(liv, riv)
			if n.Op == filter.OpOr {
				merged = Union(liv, riv)
			}
			out[lcol] = merged
			return lcol, merged, nil
		}
		out[lcol] = liv
		out[rcol] = riv
		return rcol, riv, nil
	case *filter.NotExpr:
		return "", Interval{}, &UnsupportedOperatorError{Operator: "NOT", Expr: n.String()}
	case *filter.InExpr:
		return "", Interval{}, &UnsupportedOperatorError{Operator: "IN", Expr: n.String()}
	case *filter.IsNullExpr:
		op := "IS NULL"
		if n.Not {
			op = "IS NOT NULL"
		}
		return "", Interval{}, &UnsupportedOperatorError{Operator: op, Expr: n.String()}
	case nil:
		return "", Interval{}, &UnsupportedOperatorError{Operator: "<empty>"}
	}
	return "", Interval{}, &UnsupportedOperatorError{Operator: "unknown", Expr: expr.String()}
}

func resolveComparison(c *filter.Comparison) (string, Interval, error) {
	col := strings.ToLower(c.Column)
	v := FromOperand(c.Value)
	switch c.Op {
	case filter.OpEQ:
		return col, Point(v), nil
	case filter.OpLT, filter.OpLE:
		return col, AtMost(v), nil
	case filter.OpGT, filter.OpGE:
		return col, AtLeast(v), nil
	}
	return "", Interval{}, &UnsupportedOperatorError{Operator: string(c.Op), Expr: c.String()}
}
