package interval

import (
	"strings"

	"github.com/cockroachdb/apd/v3"
	"github.com/kasuganosora/partadvisor/pkg/filter"
)

// Kind 区间端点值的类型
type Kind int

const (
	KindNumber Kind = iota
	KindString
	KindColumn
)

func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindColumn:
		return "column"
	}
	return "unknown"
}

// Value 区间端点：数值使用精确十进制，其余保留原文
type Value struct {
	Kind Kind
	Text string
	dec  *apd.Decimal
}

// NumberValue 由数值字面量构造端点，解析失败返回错误
func NumberValue(text string) (Value, error) {
	d, _, err := apd.NewFromString(strings.TrimSpace(text))
	if err != nil {
		return Value{}, err
	}
	return Value{Kind: KindNumber, Text: text, dec: d}, nil
}

// StringValue 由字符串构造端点
func StringValue(text string) Value {
	return Value{Kind: KindString, Text: text}
}

// FromOperand 将解析得到的右值转为端点
// 数值字面量在词法阶段已校验，无法解析时退化为字符串
func FromOperand(op filter.Operand) Value {
	switch op.Kind {
	case filter.OperandNumber:
		if v, err := NumberValue(op.Text); err == nil {
			return v
		}
		return StringValue(op.Text)
	case filter.OperandColumn:
		return Value{Kind: KindColumn, Text: op.Text}
	}
	return StringValue(op.Text)
}

// Decimal 返回数值端点的十进制表示，调用方不得修改
func (v Value) Decimal() (*apd.Decimal, bool) {
	if v.Kind != KindNumber || v.dec == nil {
		return nil, false
	}
	return v.dec, true
}

// Equal 同类型且比较结果为 0
func (v Value) Equal(other Value) bool {
	return Compare(v, other) == 0
}

func (v Value) String() string {
	if v.Kind == KindString {
		return "'" + v.Text + "'"
	}
	return v.Text
}

// Compare 端点全序：
// 两个数值按大小比较，数值相等时按原文比较（"5" 与 "5.0" 仍可区分）；
// 其余情况先按类型（number < string < column），再按原文字典序。
func Compare(a, b Value) int {
	if a.Kind == KindNumber && b.Kind == KindNumber && a.dec != nil && b.dec != nil {
		if c := a.dec.Cmp(b.dec); c != 0 {
			return c
		}
		return strings.Compare(a.Text, b.Text)
	}
	if a.Kind != b.Kind {
		if a.Kind < b.Kind {
			return -1
		}
		return 1
	}
	return strings.Compare(a.Text, b.Text)
}
