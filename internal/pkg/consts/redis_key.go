package consts

const (
	IMUserKey         = "im:user:"         // 用户个人频道，接收 new_message / notification / read_receipt
	IMConversationKey = "im:conversation:" // 会话房间频道，接收 new_message / typing 事件
)
