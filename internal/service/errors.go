package service

import (
	"errors"
)

const (
	BadRequest          = 400
	Unauthorized        = 401
	Forbidden           = 403
	NotFound            = 404
	InternalServerError = 500
)

var (
	ErrParamInvalid        = errors.New("参数错误")
	ErrUserNotFound        = errors.New("用户不存在")
	ErrClassNotFound       = errors.New("班级不存在")
	ErrConversationMissing = errors.New("会话不存在")
	ErrNotAMember          = errors.New("不是会话成员")
	ErrInvalidParticipants = errors.New("会话成员不合法")
	ErrMessageEmpty        = errors.New("消息内容为空")
	ErrContentTooLong      = errors.New("消息内容超长")
	ErrNotificationMissing = errors.New("通知不存在")
	ErrFanOutFailed        = errors.New("通知下发失败")
	UnauthorizedError      = errors.New("权限不足")
	UnExpectedError        = errors.New("系统异常，请稍后重试")
)

var ErrorMap = map[error]int{
	ErrParamInvalid:        BadRequest,
	ErrUserNotFound:        NotFound,
	ErrClassNotFound:       NotFound,
	ErrConversationMissing: NotFound,
	ErrNotAMember:          Forbidden,
	ErrInvalidParticipants: BadRequest,
	ErrMessageEmpty:        BadRequest,
	ErrContentTooLong:      BadRequest,
	ErrNotificationMissing: NotFound,
	ErrFanOutFailed:        InternalServerError,
	UnauthorizedError:      Unauthorized,
	UnExpectedError:        InternalServerError,
}
