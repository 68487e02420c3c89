package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"ncc/internal/blobstore"
	blobmemory "ncc/internal/blobstore/memory"
	blobs3 "ncc/internal/blobstore/s3"
	"ncc/internal/docstore"
	docmemory "ncc/internal/docstore/memory"
	docmongo "ncc/internal/docstore/mongo"
	"ncc/internal/events"
	eventsamqp "ncc/internal/events/amqp"
	eventskafka "ncc/internal/events/kafka"
	identityservice "ncc/internal/identity/service"
	"ncc/internal/identity/store/account"
	"ncc/internal/identity/store/revocation"
	"ncc/internal/notify"
	"ncc/internal/platform/config"
	platformmongo "ncc/internal/platform/mongo"
	"ncc/internal/platform/postgres"
	platformredis "ncc/internal/platform/redis"
	"ncc/internal/registration/models"
	"ncc/internal/registration/store/session"
	"ncc/internal/registration/workflow"
	httptransport "ncc/internal/transport/http"
	"ncc/pkg/platform/audit"
	auditmemory "ncc/pkg/platform/audit/store/memory"
	auditpostgres "ncc/pkg/platform/audit/store/postgres"
	"ncc/pkg/platform/circuit"
)

const (
	kafkaPartitions = 3
	kafkaReplicas   = 1
)

// resources collects what must be released on shutdown and the health
// checks of connected backends.
type resources struct {
	closers []namedCloser
	health  map[string]httptransport.HealthCheck
}

type namedCloser struct {
	name  string
	close func() error
}

func (r *resources) add(name string, close func() error) {
	r.closers = append(r.closers, namedCloser{name: name, close: close})
}

func (r *resources) check(name string, check httptransport.HealthCheck) {
	if r.health == nil {
		r.health = make(map[string]httptransport.HealthCheck)
	}
	r.health[name] = check
}

// close releases resources in reverse order of acquisition.
func (r *resources) close(log *slog.Logger) {
	for i := len(r.closers) - 1; i >= 0; i-- {
		c := r.closers[i]
		if err := c.close(); err != nil {
			log.Warn("failed to close resource", "resource", c.name, "error", err)
		}
	}
}

type documents struct {
	profiles      docstore.Collection[models.Profile]
	registrations docstore.Collection[models.Registration]
}

func openDocuments(ctx context.Context, cfg config.Server, res *resources, log *slog.Logger) (documents, error) {
	client, db, err := platformmongo.Connect(ctx, cfg.Mongo)
	if err != nil {
		return documents{}, err
	}
	if db == nil {
		log.Warn("MONGO_URI not set, using in-memory document store")
		return documents{
			profiles:      docmemory.New[models.Profile](),
			registrations: docmemory.New[models.Registration](docmemory.WithUnique(models.FieldUserID, models.FieldRegistrationID)),
		}, nil
	}
	res.add("mongo", func() error { return client.Disconnect(context.Background()) })
	res.check("mongo", func(ctx context.Context) error { return client.Ping(ctx, nil) })

	if err := platformmongo.EnsureIndexes(ctx, db); err != nil {
		return documents{}, err
	}
	return documents{
		profiles:      docmongo.New[models.Profile](db.Collection(platformmongo.CollectionUsers)),
		registrations: docmongo.New[models.Registration](db.Collection(platformmongo.CollectionRegistrations)),
	}, nil
}

func openBlobs(ctx context.Context, cfg config.Server, log *slog.Logger) (blobstore.Store, error) {
	if cfg.Blob.Region == "" {
		log.Warn("S3_REGION not set, serving uploads from memory")
		return blobmemory.New(localBaseURL(cfg.Addr) + "/files"), nil
	}
	return blobs3.New(ctx, cfg.Blob)
}

func localBaseURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "http://localhost" + addr
	}
	return "http://" + addr
}

func openSessions(ctx context.Context, cfg config.Server, res *resources, log *slog.Logger) (workflow.SessionStore, identityservice.RevocationList, error) {
	client, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	if client == nil {
		log.Warn("REDIS_URL not set, using in-memory sessions and revocation list")
		return session.NewInMemory(cfg.Registration.SessionTTL), revocation.NewInMemoryTRL(), nil
	}
	res.add("redis", client.Close)
	res.check("redis", client.Health)
	return session.NewRedis(client.Client, cfg.Registration.SessionTTL), revocation.NewRedisTRL(client.Client), nil
}

func openPostgres(ctx context.Context, cfg config.Server, res *resources, log *slog.Logger) (identityservice.AccountStore, audit.Store, error) {
	if cfg.Postgres.URL == "" {
		log.Warn("DATABASE_URL not set, using in-memory accounts and audit log")
		return account.NewInMemory(), auditmemory.NewInMemoryStore(), nil
	}

	db, err := postgres.OpenDB(ctx, cfg.Postgres.URL)
	if err != nil {
		return nil, nil, err
	}
	res.add("postgres", db.Close)
	res.check("postgres", db.PingContext)
	if err := postgres.Migrate(ctx, db); err != nil {
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}

	pool, err := postgres.OpenPool(ctx, cfg.Postgres.URL)
	if err != nil {
		return nil, nil, err
	}
	res.add("pgxpool", func() error {
		pool.Close()
		return nil
	})
	return account.NewPostgres(pool), auditpostgres.New(db), nil
}

func newMailer(cfg config.Server, log *slog.Logger) notify.Mailer {
	if cfg.SMTP.Host == "" {
		log.Warn("SMTP_HOST not set, decision emails are logged only")
		return notify.NewLogMailer(log)
	}
	return notify.NewSMTPMailer(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.From)
}

type runner interface {
	Run(ctx context.Context) error
}

type eventBus struct {
	publisher events.Publisher
	consumers []runner
}

// openEvents builds the decision event publisher and the consumers that turn
// events into emails. Broker publishers fall back to inline delivery while
// their circuit is open.
func openEvents(ctx context.Context, cfg config.Server, notifier *notify.Handler, log *slog.Logger) (*eventBus, error) {
	inline := events.NewLogPublisher(log, notifier)
	ec := cfg.Events

	switch ec.Driver {
	case "kafka":
		if err := eventskafka.EnsureTopic(ctx, ec.KafkaBrokers, ec.KafkaTopic, kafkaPartitions, kafkaReplicas); err != nil {
			log.WarnContext(ctx, "could not ensure kafka topic", "topic", ec.KafkaTopic, "error", err)
		}
		producer, err := eventskafka.NewPublisher(ec.KafkaBrokers, ec.KafkaTopic)
		if err != nil {
			return nil, err
		}
		consumer, err := eventskafka.NewConsumer(ec.KafkaBrokers, ec.KafkaTopic, ec.KafkaGroup, notifier, log)
		if err != nil {
			_ = producer.Close()
			return nil, err
		}
		pub := events.NewFallbackPublisher(producer, inline, circuit.New("kafka"), log)
		return &eventBus{publisher: closeAlso(pub, consumer.Close), consumers: []runner{consumer}}, nil

	case "amqp":
		consumer, err := eventsamqp.NewConsumer(ec.AMQPURL, ec.AMQPQueue, notifier, log)
		if err != nil {
			return nil, err
		}
		pub := events.NewFallbackPublisher(eventsamqp.NewPublisher(ec.AMQPURL, ec.AMQPQueue), inline, circuit.New("amqp"), log)
		return &eventBus{publisher: pub, consumers: []runner{consumer}}, nil

	case "log":
		return &eventBus{publisher: inline}, nil
	}
	return nil, errors.New("unknown events driver " + ec.Driver)
}

// closingPublisher closes extra resources along with the publisher.
type closingPublisher struct {
	events.Publisher
	extra func()
}

func closeAlso(p events.Publisher, extra func()) events.Publisher {
	return &closingPublisher{Publisher: p, extra: extra}
}

func (p *closingPublisher) Close() error {
	err := p.Publisher.Close()
	p.extra()
	return err
}
