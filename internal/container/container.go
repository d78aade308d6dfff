package container

import (
	"sync"

	"cloud.google.com/go/storage"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/go-membership-affiliate/config"
	"github.com/oksasatya/go-membership-affiliate/pkg/helpers"
)

// Process-wide singletons built in cmd/main and read by the router when it
// wires modules. Optional infrastructure (GCS, RabbitMQ, Elasticsearch) stays
// nil when it is not configured or failed to start.
var (
	cfg         *config.Config
	logger      *logrus.Logger
	pgPool      *pgxpool.Pool
	redisClient *redis.Client
	gcsClient   *storage.Client
	jwtManager  *helpers.JWTManager
	mailPub     *helpers.RabbitPublisher
	esClient    *elasticsearch.Client

	mu      sync.Mutex
	closers []closer
)

type closer struct {
	name string
	fn   func() error
}

func SetConfig(c *config.Config) { cfg = c }
func GetConfig() *config.Config {
	if cfg == nil {
		cfg = config.Load()
	}
	return cfg
}

func SetLogger(l *logrus.Logger) { logger = l }
func GetLogger() *logrus.Logger {
	if logger == nil {
		return helpers.NewDiscardLogger()
	}
	return logger
}

func SetPGPool(p *pgxpool.Pool) { pgPool = p }
func GetPGPool() *pgxpool.Pool  { return pgPool }
func SetRedis(r *redis.Client)  { redisClient = r }
func GetRedis() *redis.Client   { return redisClient }
func SetGCS(s *storage.Client)  { gcsClient = s }
func GetGCS() *storage.Client   { return gcsClient }

func SetJWT(m *helpers.JWTManager) { jwtManager = m }
func GetJWT() *helpers.JWTManager {
	if jwtManager != nil {
		return jwtManager
	}
	return helpers.DefaultJWT()
}

func SetMailPublisher(p *helpers.RabbitPublisher) { mailPub = p }
func GetMailPublisher() *helpers.RabbitPublisher  { return mailPub }
func SetES(c *elasticsearch.Client)               { esClient = c }
func GetES() *elasticsearch.Client                { return esClient }

// OnClose registers fn to run during Shutdown. Closers run in reverse
// registration order so dependents go down before what they depend on.
func OnClose(name string, fn func() error) {
	mu.Lock()
	defer mu.Unlock()
	closers = append(closers, closer{name: name, fn: fn})
}

// Shutdown runs the registered closers once and logs any failures. It returns
// the names that failed.
func Shutdown() []string {
	mu.Lock()
	list := closers
	closers = nil
	mu.Unlock()

	var failed []string
	for i := len(list) - 1; i >= 0; i-- {
		if err := list[i].fn(); err != nil {
			GetLogger().WithError(err).WithField("component", list[i].name).Warn("close failed")
			failed = append(failed, list[i].name)
		}
	}
	return failed
}
