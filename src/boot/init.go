package boot

import (
	"context"
	"homejobs/src/config"
	"homejobs/src/db"
	"homejobs/src/engine"
	"homejobs/src/events"
	"homejobs/src/lib"
	"homejobs/src/models"
	"log"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"github.com/go-co-op/gocron/v2"
	"gorm.io/gorm"
)

const (
	dispatchBuffer  = 1024
	dispatchTimeout = 5 * time.Second
	kafkaFlushMs    = 5000
)

func InitDb() *gorm.DB {
	db := db.GetDb()
	if err := Migrate(db); err != nil {
		log.Fatalf("error migration: %s", err.Error())
	}
	return db
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(models.All()...)
}

// InitPublisher fans events out to every bus that is configured. The result
// publishes asynchronously; stop flushes and closes it.
func InitPublisher(ctx context.Context, cfg *config.Config) (pub events.Publisher, stop func()) {
	var sinks events.Multi
	var producer *kafka.Producer

	if cfg.KafkaBroker != "" {
		p, err := lib.NewKafkaProducer(cfg.KafkaBroker, "homejobs-api")
		if err != nil {
			log.Printf("[boot] Kafka disabled: %s\n", err.Error())
		} else {
			producer = p
			go func() {
				if _, err := lib.KafkaCreateTopics(ctx, cfg.KafkaBroker, cfg.KafkaTopic); err != nil {
					log.Printf("[boot] Error creating topics: %s\n", err.Error())
				}
			}()
			sinks = append(sinks, events.NewKafkaPublisher(p, cfg.KafkaTopic))
		}
	}
	if rdb := lib.GetRedisClient(); rdb != nil {
		sinks = append(sinks, events.NewRedisPublisher(rdb))
	}
	if cfg.SNSTopicARN != "" {
		client, err := lib.AWSGetSNSClient(ctx, cfg.AWSIAMRoleARN)
		if err != nil {
			log.Printf("[boot] SNS disabled: %s\n", err.Error())
		} else {
			sinks = append(sinks, events.NewSNSPublisher(client, cfg.SNSTopicARN))
		}
	}

	log.Printf("[boot] Publishing events to %d sink(s)\n", len(sinks))
	if len(sinks) == 0 {
		return events.Noop{}, func() {}
	}
	d := events.NewDispatcher(sinks, dispatchBuffer, dispatchTimeout)
	return d, func() {
		d.Close()
		if producer != nil {
			producer.Flush(kafkaFlushMs)
			producer.Close()
		}
	}
}

func InitGateway(cfg *config.Config) engine.PaymentGateway {
	if cfg.StripeSecretKey == "" {
		log.Println("[boot] STRIPE_SECRET_KEY not set, payments are not charged")
		return engine.NoopGateway{}
	}
	return lib.NewStripeGateway(lib.GetStripeClient())
}

func Policy(cfg *config.Config) engine.Policy {
	p := engine.DefaultPolicy
	p.BidDefaultWindow = cfg.BidDefaultWindow
	p.BidMaxWindow = cfg.BidMaxWindow
	return p
}

func InitEngine(db *gorm.DB, cfg *config.Config, pub events.Publisher) *engine.Service {
	return engine.New(db,
		engine.WithPublisher(pub),
		engine.WithGateway(InitGateway(cfg)),
		engine.WithPolicy(Policy(cfg)),
	)
}

// InitScheduler starts the bid expiry sweep. With Redis configured only one
// instance runs each tick.
func InitScheduler(svc *engine.Service, cfg *config.Config) (gocron.Scheduler, error) {
	var opts []gocron.SchedulerOption
	if rdb := lib.GetRedisClient(); rdb != nil {
		opts = append(opts, gocron.WithDistributedLocker(lib.NewRedisLocker(rdb, cfg.BidSweepInterval)))
	}
	sched, err := lib.GetScheduler(opts...)
	if err != nil {
		return nil, err
	}
	if _, err := lib.ScheduleBidSweep(sched, cfg.BidSweepInterval, svc.SweepExpiredBids); err != nil {
		return nil, err
	}
	sched.Start()
	log.Printf("[boot] Jobs in queue: %d\n", len(sched.Jobs()))
	return sched, nil
}

func StopScheduler(sched gocron.Scheduler) {
	if sched == nil {
		return
	}
	if err := sched.Shutdown(); err != nil {
		log.Printf("[boot] Error stopping scheduler: %s\n", err.Error())
	}
}
