package service

import (
	"Classboard/internal/api/dto"
	"Classboard/internal/pkg/consts"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newNotificationTestEnv() (*fakeNotificationRepo, *fakeDirectoryRepo, *fakePusher, NotificationService) {
	notificationRepo := newFakeNotificationRepo()
	directoryRepo := newFakeDirectoryRepo()
	pusher := &fakePusher{}
	svc := NewNotificationService(notificationRepo, directoryRepo, pusher)
	return notificationRepo, directoryRepo, pusher, svc
}

func TestFanOut_OneRecordPerRecipient(t *testing.T) {
	notificationRepo, _, pusher, svc := newNotificationTestEnv()
	ctx := context.Background()

	err := svc.FanOut(ctx, &dto.FanOutReq{
		EventID:      "evt-1",
		Type:         consts.NotifyAssignmentCreated,
		Title:        "新作业",
		Content:      "第三章课后题",
		SenderID:     7,
		RecipientIDs: []uint64{1, 2, 3},
	})
	require.NoError(t, err)

	records := notificationRepo.recordsOf("evt-1")
	require.Len(t, records, 3)
	for _, n := range records {
		assert.False(t, n.IsRead)
		assert.Equal(t, uint64(7), n.SenderID)
	}

	// 每个收件人的个人频道各推一次
	for _, uid := range []uint64{1, 2, 3} {
		assert.Len(t, pusher.userEventsOf(uid, consts.PushNotification), 1)
	}
}

func TestFanOut_ResolvesClassRoster(t *testing.T) {
	notificationRepo, directoryRepo, _, svc := newNotificationTestEnv()
	directoryRepo.classMembers[10] = []uint64{1, 2, 3, 4}

	err := svc.FanOut(context.Background(), &dto.FanOutReq{
		EventID: "evt-roster",
		Type:    consts.NotifyDocumentUploaded,
		Title:   "新课件",
		ClassID: 10,
	})
	require.NoError(t, err)
	assert.Len(t, notificationRepo.recordsOf("evt-roster"), 4)
}

func TestFanOut_Validation(t *testing.T) {
	_, _, _, svc := newNotificationTestEnv()
	ctx := context.Background()

	err := svc.FanOut(ctx, &dto.FanOutReq{Title: "缺类型", RecipientIDs: []uint64{1}})
	assert.ErrorIs(t, err, ErrParamInvalid)

	err = svc.FanOut(ctx, &dto.FanOutReq{Type: consts.NotifyGeneral, RecipientIDs: []uint64{1}})
	assert.ErrorIs(t, err, ErrParamInvalid)

	// 既无收件人也无班级，无从解析
	err = svc.FanOut(ctx, &dto.FanOutReq{Type: consts.NotifyGeneral, Title: "无人接收"})
	assert.ErrorIs(t, err, ErrParamInvalid)
}

func TestFanOut_RetrySucceedsWithoutDuplicates(t *testing.T) {
	notificationRepo, _, _, svc := newNotificationTestEnv()
	notificationRepo.failures = 2

	err := svc.FanOut(context.Background(), &dto.FanOutReq{
		EventID:      "evt-flaky",
		Type:         consts.NotifyGeneral,
		Title:        "抖动恢复",
		RecipientIDs: []uint64{1, 2},
	})
	require.NoError(t, err)
	assert.Len(t, notificationRepo.recordsOf("evt-flaky"), 2)
}

func TestFanOut_SameEventReplayedIsIdempotent(t *testing.T) {
	notificationRepo, _, _, svc := newNotificationTestEnv()
	ctx := context.Background()
	req := &dto.FanOutReq{
		EventID:      "evt-replay",
		Type:         consts.NotifyAssignmentGraded,
		Title:        "成绩已出",
		RecipientIDs: []uint64{1, 2, 3},
	}

	// 消费者重平衡后同一事件可能再投递一次
	require.NoError(t, svc.FanOut(ctx, req))
	require.NoError(t, svc.FanOut(ctx, req))
	assert.Len(t, notificationRepo.recordsOf("evt-replay"), 3)
}

func TestFanOut_RetriesExhausted(t *testing.T) {
	notificationRepo, _, pusher, svc := newNotificationTestEnv()
	notificationRepo.failures = 3

	err := svc.FanOut(context.Background(), &dto.FanOutReq{
		EventID:      "evt-dead",
		Type:         consts.NotifyGeneral,
		Title:        "写入失败",
		RecipientIDs: []uint64{1},
	})
	assert.ErrorIs(t, err, ErrFanOutFailed)
	assert.Empty(t, notificationRepo.recordsOf("evt-dead"))
	assert.Empty(t, pusher.userEventsOf(1, consts.PushNotification))
}

func TestGetNotificationList_FillsSenderNames(t *testing.T) {
	_, directoryRepo, _, svc := newNotificationTestEnv()
	ctx := context.Background()
	directoryRepo.addUser(7, consts.RoleTeacher, "王老师")

	require.NoError(t, svc.FanOut(ctx, &dto.FanOutReq{
		EventID: "evt-a", Type: consts.NotifyGeneral, Title: "人发的", SenderID: 7, RecipientIDs: []uint64{1},
	}))
	require.NoError(t, svc.FanOut(ctx, &dto.FanOutReq{
		EventID: "evt-b", Type: consts.NotifyGeneral, Title: "系统发的", RecipientIDs: []uint64{1},
	}))

	list, err := svc.GetNotificationList(ctx, 1, 1, 20)
	require.NoError(t, err)
	require.Len(t, list, 2)

	names := map[string]string{}
	for _, d := range list {
		names[d.Title] = d.SenderName
	}
	assert.Equal(t, "王老师", names["人发的"])
	assert.Equal(t, "系统通知", names["系统发的"])
}

func TestMarkRead_OwnershipAndIdempotency(t *testing.T) {
	notificationRepo, _, _, svc := newNotificationTestEnv()
	ctx := context.Background()

	require.NoError(t, svc.FanOut(ctx, &dto.FanOutReq{
		EventID: "evt-read", Type: consts.NotifyGeneral, Title: "待读", RecipientIDs: []uint64{1},
	}))
	records := notificationRepo.recordsOf("evt-read")
	require.Len(t, records, 1)
	msgID := records[0].ID.Hex()

	assert.ErrorIs(t, svc.MarkRead(ctx, 1, "not-a-hex"), ErrParamInvalid)
	assert.ErrorIs(t, svc.MarkRead(ctx, 1, "656f00000000000000000000"), ErrNotificationMissing)

	// 不是收件人不能替别人已读
	assert.ErrorIs(t, svc.MarkRead(ctx, 2, msgID), UnauthorizedError)

	require.NoError(t, svc.MarkRead(ctx, 1, msgID))
	unread, err := svc.GetUnreadCount(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), unread.UnreadCount)

	// 重复标记不算错误
	require.NoError(t, svc.MarkRead(ctx, 1, msgID))
}

func TestMarkAllRead_ReturnsFlippedCount(t *testing.T) {
	_, _, _, svc := newNotificationTestEnv()
	ctx := context.Background()

	for _, eventID := range []string{"evt-1", "evt-2", "evt-3"} {
		require.NoError(t, svc.FanOut(ctx, &dto.FanOutReq{
			EventID: eventID, Type: consts.NotifyGeneral, Title: "批量", RecipientIDs: []uint64{1},
		}))
	}

	unread, err := svc.GetUnreadCount(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), unread.UnreadCount)

	res, err := svc.MarkAllRead(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Count)

	// 再来一次没有可置位的记录
	res, err = svc.MarkAllRead(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.Count)
}
