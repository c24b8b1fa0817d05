package wire

import (
	"Classboard/internal/api"
	"Classboard/internal/api/config"
	"Classboard/internal/api/handler"
	"Classboard/internal/job"
	"Classboard/internal/pkg/cron"
	"Classboard/internal/pkg/kafka"
	pkgMongo "Classboard/internal/pkg/mongo"
	"Classboard/internal/repository"
	"Classboard/internal/service"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"
)

// ApplicationContainer 封装了应用运行所需的所有顶级组件
type ApplicationContainer struct {
	Router        *gin.Engine
	DB            *gorm.DB
	KafkaManager  *kafka.ConsumerManager
	CronMgr       *cron.Manager
	IMService     service.IMService
	TypingService service.TypingService
}

func BuildApplication(db *gorm.DB, mongoDB *mongo.Database, cfg *config.Config) (*ApplicationContainer, error) {
	convRepo := repository.NewConversationRepo(db)
	directoryRepo := repository.NewDirectoryRepo(db)
	messageRepo := pkgMongo.NewMessageRepo(mongoDB)
	notificationRepo := pkgMongo.NewNotificationRepo(mongoDB)

	// 实时推送可整体关闭，关闭后所有推送静默丢弃，接口行为不变
	var pusher service.Pusher
	if cfg.Realtime.Enabled {
		pusher = service.NewRedisPusher()
	} else {
		pusher = service.NewNoopPusher()
	}

	imService := service.NewIMService(convRepo, directoryRepo, messageRepo, pusher, cfg.IM)
	notificationService := service.NewNotificationService(notificationRepo, directoryRepo, pusher)
	typingService := service.NewTypingService(pusher, time.Duration(cfg.IM.TypingTTLSeconds)*time.Second)

	handlers := &api.HandlersGroup{
		IMHandler:           handler.NewIMHandler(imService),
		NotificationHandler: handler.NewNotificationHandler(notificationService),
		WSHandler:           handler.NewWsHandler(imService, typingService, directoryRepo),
	}

	router := api.SetupRouter(handlers, cfg)

	kafkaMgr, err := kafka.NewConsumerManager(cfg, notificationService)
	if err != nil {
		return nil, err
	}

	rosterSyncJob := job.NewRosterSyncJob(convRepo, directoryRepo)
	cronMgr := cron.NewCronManager(rosterSyncJob)

	return &ApplicationContainer{
		Router:        router,
		DB:            db,
		KafkaManager:  kafkaMgr,
		CronMgr:       cronMgr,
		IMService:     imService,
		TypingService: typingService,
	}, nil
}
