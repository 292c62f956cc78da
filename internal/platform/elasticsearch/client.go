package elasticsearch

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/elastic/elastic-transport-go/v8/elastictransport"
	"github.com/elastic/go-elasticsearch/v8"
	"go.uber.org/zap"

	"onboarding_backend/internal/config"
)

// ESClientWrapper wraps the elasticsearch.Client.
type ESClientWrapper struct {
	*elasticsearch.Client
}

// ZapLogger is an adapter from zap.Logger to elastictransport.Logger.
type ZapLogger struct {
	logger *zap.Logger
}

var _ elastictransport.Logger = (*ZapLogger)(nil)

// LogRoundTrip prints the request-response metrics.
func (l *ZapLogger) LogRoundTrip(req *http.Request, res *http.Response, err error, start time.Time, dur time.Duration) error {
	var statusCode int
	if res != nil {
		statusCode = res.StatusCode
	}
	l.logger.Debug("Elasticsearch RoundTrip",
		zap.String("method", req.Method),
		zap.String("url", req.URL.String()),
		zap.Int("status_code", statusCode),
		zap.Duration("duration", dur),
		zap.Error(err),
	)
	return nil
}

func (l *ZapLogger) RequestBodyEnabled() bool  { return false }
func (l *ZapLogger) ResponseBodyEnabled() bool { return false }

// NewClient connects to ELASTICSEARCH_URL and checks the cluster answers.
func NewClient(cfg *config.Config, logger *zap.Logger) (*ESClientWrapper, error) {
	if cfg.ElasticsearchURL == "" {
		return nil, fmt.Errorf("ElasticsearchURL is not configured in application config")
	}

	esClient, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:     []string{cfg.ElasticsearchURL},
		Logger:        &ZapLogger{logger: logger.Named("elasticsearch_client")},
		RetryOnStatus: []int{502, 503, 504, 429},
		RetryBackoff: func(i int) time.Duration {
			return time.Duration(i) * 100 * time.Millisecond
		},
		MaxRetries: 5,
	})
	if err != nil {
		logger.Error("Error creating Elasticsearch client", zap.Error(err))
		return nil, fmt.Errorf("elasticsearch.NewClient: %w", err)
	}

	res, err := esClient.Info()
	if err != nil {
		logger.Error("Error pinging Elasticsearch", zap.Error(err))
		return nil, fmt.Errorf("esClient.Info: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		var e map[string]interface{}
		if err := json.NewDecoder(res.Body).Decode(&e); err != nil {
			return nil, fmt.Errorf("error decoding Elasticsearch error response: %s", res.Status())
		}
		logger.Error("Elasticsearch client initialization error", zap.String("status", res.Status()), zap.Any("error_details", e))
		return nil, fmt.Errorf("elasticsearch client initialization error: %s", res.Status())
	}

	logger.Info("Elasticsearch client initialized and connected successfully",
		zap.String("url", cfg.ElasticsearchURL), zap.String("es_version", elasticsearch.Version))
	return &ESClientWrapper{Client: esClient}, nil
}
