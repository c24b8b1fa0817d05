package service

import (
	"Classboard/internal/api/dto"
	"Classboard/internal/pkg/consts"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTyping_StartBroadcastsOnce(t *testing.T) {
	pusher := &fakePusher{}
	svc := NewTypingService(pusher, 5*time.Second)
	t.Cleanup(svc.Close)
	ctx := context.Background()

	svc.StartTyping(ctx, 100, 1, "小明")
	// 客户端持续敲字会反复上报，只有首次进入输入态才广播
	svc.StartTyping(ctx, 100, 1, "小明")
	svc.StartTyping(ctx, 100, 1, "小明")

	events := pusher.convEventsOf(100, consts.PushUserTyping)
	require.Len(t, events, 1)
	d := events[0].Data.(*dto.TypingDTO)
	assert.Equal(t, uint64(1), d.UserID)
	assert.Equal(t, "小明", d.Username)

	assert.Equal(t, []uint64{1}, svc.ActiveTypists(100))
}

func TestTyping_StopBroadcastsOnlyWhenActive(t *testing.T) {
	pusher := &fakePusher{}
	svc := NewTypingService(pusher, 5*time.Second)
	t.Cleanup(svc.Close)
	ctx := context.Background()

	// 没在输入却发 stop，不广播
	svc.StopTyping(ctx, 100, 1)
	assert.Empty(t, pusher.convEventsOf(100, consts.PushUserStoppedTyping))

	svc.StartTyping(ctx, 100, 1, "小明")
	svc.StopTyping(ctx, 100, 1)
	assert.Len(t, pusher.convEventsOf(100, consts.PushUserStoppedTyping), 1)
	assert.Empty(t, svc.ActiveTypists(100))

	// 重复 stop 不再广播
	svc.StopTyping(ctx, 100, 1)
	assert.Len(t, pusher.convEventsOf(100, consts.PushUserStoppedTyping), 1)
}

func TestTyping_ExpiryEmitsStop(t *testing.T) {
	pusher := &fakePusher{}
	svc := NewTypingService(pusher, 200*time.Millisecond)
	t.Cleanup(svc.Close)

	// 客户端崩溃丢失 typing_stop 帧，清扫器兜底补发
	svc.StartTyping(context.Background(), 100, 1, "小明")

	require.Eventually(t, func() bool {
		return len(pusher.convEventsOf(100, consts.PushUserStoppedTyping)) == 1
	}, 3*time.Second, 50*time.Millisecond)
	assert.Empty(t, svc.ActiveTypists(100))
}

func TestTyping_RefreshExtendsTTL(t *testing.T) {
	pusher := &fakePusher{}
	svc := NewTypingService(pusher, time.Second)
	t.Cleanup(svc.Close)
	ctx := context.Background()

	svc.StartTyping(ctx, 100, 1, "小明")
	time.Sleep(600 * time.Millisecond)
	svc.StartTyping(ctx, 100, 1, "小明")
	time.Sleep(600 * time.Millisecond)

	// 续期后尚未过期，也没有重复的 start 广播
	assert.Equal(t, []uint64{1}, svc.ActiveTypists(100))
	assert.Len(t, pusher.convEventsOf(100, consts.PushUserTyping), 1)
	assert.Empty(t, pusher.convEventsOf(100, consts.PushUserStoppedTyping))
}

func TestTyping_ActiveTypistsExcludesExpired(t *testing.T) {
	pusher := &fakePusher{}
	svc := NewTypingService(pusher, 100*time.Millisecond)
	t.Cleanup(svc.Close)
	ctx := context.Background()

	svc.StartTyping(ctx, 100, 1, "小明")
	svc.StartTyping(ctx, 100, 2, "小红")
	assert.Len(t, svc.ActiveTypists(100), 2)

	// 即便清扫器还没跑到，读取路径也要立刻剔除过期项
	time.Sleep(150 * time.Millisecond)
	assert.Empty(t, svc.ActiveTypists(100))
}

func TestTyping_ConversationsAreIsolated(t *testing.T) {
	pusher := &fakePusher{}
	svc := NewTypingService(pusher, 5*time.Second)
	t.Cleanup(svc.Close)
	ctx := context.Background()

	svc.StartTyping(ctx, 100, 1, "小明")
	svc.StartTyping(ctx, 200, 1, "小明")

	svc.StopTyping(ctx, 100, 1)
	assert.Empty(t, svc.ActiveTypists(100))
	assert.Equal(t, []uint64{1}, svc.ActiveTypists(200))
	assert.Len(t, pusher.convEventsOf(100, consts.PushUserStoppedTyping), 1)
	assert.Empty(t, pusher.convEventsOf(200, consts.PushUserStoppedTyping))
}
