package domain

import (
	"fmt"
	"strings"
)

// 估算会话领域错误

// StateError 会话已结束后仍被使用
type StateError struct {
	Operation string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cost evaluation is completed and cannot be reused: %s", e.Operation)
}

// InvariantError 结束会话时仍存在模拟分区
type InvariantError struct {
	Outstanding []string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("simulated partitions still present after completion: %s", strings.Join(e.Outstanding, ", "))
}

// ErrInvalidPartition 分区边界描述无效
type ErrInvalidPartition struct {
	Partition string
	Reason    string
}

func (e *ErrInvalidPartition) Error() string {
	if e.Partition == "" {
		return fmt.Sprintf("invalid partition: %s", e.Reason)
	}
	return fmt.Sprintf("invalid partition %s: %s", e.Partition, e.Reason)
}

// ErrUnsupportedOperation 协作方不支持的操作
type ErrUnsupportedOperation struct {
	Connector string
	Operation string
}

func (e *ErrUnsupportedOperation) Error() string {
	return fmt.Sprintf("operation %s is not supported by %s connector", e.Operation, e.Connector)
}
