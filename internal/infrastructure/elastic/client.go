package elastic

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
)

type Config struct {
	Host string
	// Transport is optional; tests point it at a fake cluster.
	Transport http.RoundTripper
}

func NewClient(cfg Config) (*elasticsearch.Client, error) {
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		return nil, fmt.Errorf("elasticsearch host is empty")
	}
	if !strings.Contains(host, "://") {
		host = "http://" + host
	}

	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:     []string{host},
		Transport:     cfg.Transport,
		MaxRetries:    2,
		RetryBackoff:  func(attempt int) time.Duration { return time.Duration(attempt) * 100 * time.Millisecond },
		EnableMetrics: false,
	})
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}

	return es, nil
}
