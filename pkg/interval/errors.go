package interval

import "fmt"

// UnsupportedOperatorError 语法接受但区间推导无法解释的运算
type UnsupportedOperatorError struct {
	Operator string
	Expr     string
}

func (e *UnsupportedOperatorError) Error() string {
	return fmt.Sprintf("unsupported operator %s in %q", e.Operator, e.Expr)
}
