package consts

// 会话类型
const (
	ConvTypeDirect = 1 // 单聊
	ConvTypeGroup  = 2 // 群聊
	ConvTypeClass  = 3 // 班级会话
)

// 用户角色
const (
	RoleAdmin   = "ADMIN"
	RoleTeacher = "TEACHER"
	RoleStudent = "STUDENT"
)

// 通知类型
const (
	NotifyGeneral             = "general"
	NotifyAssignmentCreated   = "assignment_created"
	NotifyAssignmentGraded    = "assignment_graded"
	NotifyAssignmentSubmitted = "assignment_submitted"
	NotifyAssignmentPending   = "assignment_pending"
	NotifyCommentCreated      = "comment_created"
	NotifyDocumentUploaded    = "document_uploaded"
)

// 推送事件类型
const (
	PushNewMessage        = "new_message"
	PushNotification      = "notification"
	PushReadReceipt       = "read_receipt"
	PushUserTyping        = "user_typing"
	PushUserStoppedTyping = "user_stopped_typing"
)
