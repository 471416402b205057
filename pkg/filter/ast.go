package filter

import (
	"fmt"
	"strings"
)

// Expr 过滤条件表达式树节点
type Expr interface {
	fmt.Stringer
	exprNode()
}

// LogicOp 布尔组合运算符
type LogicOp int

const (
	OpAnd LogicOp = iota
	OpOr
)

func (op LogicOp) String() string {
	if op == OpOr {
		return "OR"
	}
	return "AND"
}

// CompareOp 比较运算符
type CompareOp string

const (
	OpEQ CompareOp = "="
	OpNE CompareOp = "!="
	OpLT CompareOp = "<"
	OpLE CompareOp = "<="
	OpGT CompareOp = ">"
	OpGE CompareOp = ">="
)

// compareOps 符号与单词形式的运算符
var compareOps = map[string]CompareOp{
	"=":  OpEQ,
	"!=": OpNE,
	"<":  OpLT,
	"<=": OpLE,
	">":  OpGT,
	">=": OpGE,
	"EQ": OpEQ,
	"NE": OpNE,
	"LT": OpLT,
	"LE": OpLE,
	"GT": OpGT,
	"GE": OpGE,
}

// OperandKind 比较右值类型
type OperandKind int

const (
	OperandNumber OperandKind = iota
	OperandString
	OperandColumn
)

// Operand 比较右值；类型转换后缀在解析时丢弃
type Operand struct {
	Kind OperandKind
	Text string
}

func (o Operand) String() string {
	if o.Kind == OperandString {
		return "'" + strings.ReplaceAll(o.Text, "'", "''") + "'"
	}
	return o.Text
}

// BinaryExpr AND / OR 节点
type BinaryExpr struct {
	Op    LogicOp
	Left  Expr
	Right Expr
}

func (*BinaryExpr) exprNode() {}

func (e *BinaryExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", e.Left, e.Op, e.Right)
}

// NotExpr NOT 节点
type NotExpr struct {
	Expr Expr
}

func (*NotExpr) exprNode() {}

func (e *NotExpr) String() string {
	return fmt.Sprintf("(NOT %s)", e.Expr)
}

// Comparison column op value 叶子
type Comparison struct {
	Column string
	Op     CompareOp
	Value  Operand
}

func (*Comparison) exprNode() {}

func (e *Comparison) String() string {
	return fmt.Sprintf("%s %s %s", e.Column, e.Op, e.Value)
}

// InExpr column IN (...) 叶子；Subquery 非空时只保存原文，不求值
type InExpr struct {
	Column   string
	Values   []Operand
	Subquery string
}

func (*InExpr) exprNode() {}

func (e *InExpr) String() string {
	if e.Subquery != "" {
		return fmt.Sprintf("%s IN (%s)", e.Column, e.Subquery)
	}
	vals := make([]string, len(e.Values))
	for i, v := range e.Values {
		vals[i] = v.String()
	}
	return fmt.Sprintf("%s IN (%s)", e.Column, strings.Join(vals, ", "))
}

// IsNullExpr column IS [NOT] NULL 叶子
type IsNullExpr struct {
	Column string
	Not    bool
}

func (*IsNullExpr) exprNode() {}

func (e *IsNullExpr) String() string {
	if e.Not {
		return e.Column + " IS NOT NULL"
	}
	return e.Column + " IS NULL"
}

// Walk 先序遍历表达式树，fn 返回 false 时停止进入子节点
func Walk(e Expr, fn func(Expr) bool) {
	if e == nil || !fn(e) {
		return
	}
	switch n := e.(type) {
	case *BinaryExpr:
		Walk(n.Left, fn)
		Walk(n.Right, fn)
	case *NotExpr:
		Walk(n.Expr, fn)
	}
}

// Columns 返回表达式引用的左侧列名（去重，保持出现顺序）
func Columns(e Expr) []string {
	var cols []string
	seen := make(map[string]bool)
	add := func(c string) {
		if !seen[c] {
			seen[c] = true
			cols = append(cols, c)
		}
	}
	Walk(e, func(n Expr) bool {
		switch leaf := n.(type) {
		case *Comparison:
			add(leaf.Column)
		case *InExpr:
			add(leaf.Column)
		case *IsNullExpr:
			add(leaf.Column)
		}
		return true
	})
	return cols
}
