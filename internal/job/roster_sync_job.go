package job

import (
	"Classboard/internal/pkg/logger"
	"Classboard/internal/pkg/redis"
	"Classboard/internal/repository"
	"context"
	log "log/slog"
	"time"

	"github.com/google/uuid"
)

const rosterSyncLockKey = "job:roster:sync:lock"

// RosterSyncJob 班级会话成员对账
// 花名册（选课/调班）由教务系统改动，这里定期把班级会话成员拉齐
type RosterSyncJob struct {
	convRepo      repository.ConversationRepo
	directoryRepo repository.DirectoryRepo
}

func NewRosterSyncJob(convRepo repository.ConversationRepo, directoryRepo repository.DirectoryRepo) *RosterSyncJob {
	return &RosterSyncJob{
		convRepo:      convRepo,
		directoryRepo: directoryRepo,
	}
}

func (s *RosterSyncJob) Run() {
	traceID := "job-roster-" + uuid.NewString()
	ctx := context.WithValue(context.Background(), logger.TraceIDKey, traceID)

	// 多实例部署时只允许一个实例执行对账
	locked, err := redis.TryLock(ctx, rosterSyncLockKey, traceID, 10*time.Minute, 1)
	if err != nil || !locked {
		return
	}
	defer redis.UnLock(ctx, rosterSyncLockKey, traceID)

	convs, err := s.convRepo.ListClassConversations(ctx)
	if err != nil {
		log.ErrorContext(ctx, "list class conversations error", "err", err)
		return
	}

	log.InfoContext(ctx, "RosterSyncJob processing", "class_count", len(convs))

	for _, conv := range convs {
		if conv.ClassID == nil {
			continue
		}

		rosterIDs, err := s.directoryRepo.GetClassMemberIDs(ctx, *conv.ClassID)
		if err != nil {
			log.ErrorContext(ctx, "fetch class roster error", "classID", *conv.ClassID, "err", err)
			continue
		}
		memberIDs, err := s.convRepo.GetMemberIDs(ctx, conv.ID)
		if err != nil {
			log.ErrorContext(ctx, "fetch conversation members error", "convID", conv.ID, "err", err)
			continue
		}

		toAdd, toRemove := diffMembers(rosterIDs, memberIDs)
		if len(toAdd) == 0 && len(toRemove) == 0 {
			continue
		}

		if err := s.convRepo.AddMembers(ctx, conv.ID, toAdd); err != nil {
			log.ErrorContext(ctx, "add members error", "convID", conv.ID, "err", err)
		}
		if err := s.convRepo.RemoveMembers(ctx, conv.ID, toRemove); err != nil {
			log.ErrorContext(ctx, "remove members error", "convID", conv.ID, "err", err)
		}

		log.InfoContext(ctx, "class conversation reconciled",
			"convID", conv.ID, "added", len(toAdd), "removed", len(toRemove))
	}
}

// diffMembers 求花名册与会话成员的差集
func diffMembers(roster, members []uint64) (toAdd, toRemove []uint64) {
	rosterSet := make(map[uint64]struct{}, len(roster))
	for _, id := range roster {
		rosterSet[id] = struct{}{}
	}
	memberSet := make(map[uint64]struct{}, len(members))
	for _, id := range members {
		memberSet[id] = struct{}{}
	}

	for _, id := range roster {
		if _, ok := memberSet[id]; !ok {
			toAdd = append(toAdd, id)
		}
	}
	for _, id := range members {
		if _, ok := rosterSet[id]; !ok {
			toRemove = append(toRemove, id)
		}
	}
	return toAdd, toRemove
}
