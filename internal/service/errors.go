package service

import "errors"

// 业务层通用错误，handler 和 ws hub 可根据错误类型决定如何回应发送者。
var (
	ErrEmptyMessage = errors.New("empty message")
	ErrFileNotFound = errors.New("file not found")
)
