package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"go.uber.org/zap"

	"review-metrics-service/internal/config"
)

// NewElasticsearch creates an Elasticsearch client from the configuration.
func NewElasticsearch(cfg *config.Config) (*elasticsearch.Client, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.ESAddresses,
		Username:  cfg.ESUsername,
		Password:  cfg.ESPassword,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}
	return es, nil
}

// EnsureElasticsearchIndex installs the index template mapping the event
// fields of every index named after index.
func EnsureElasticsearchIndex(ctx context.Context, es *elasticsearch.Client, index string, logger *zap.Logger) error {
	req := esapi.IndicesPutIndexTemplateRequest{
		Name: index + "-events",
		Body: strings.NewReader(fmt.Sprintf(eventsTemplate, index)),
	}
	res, err := req.Do(ctx, es)
	if err != nil {
		return fmt.Errorf("failed to create index template %s: %w", req.Name, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("error creating index template %s: %s", req.Name, res.String())
	}
	logger.Info("created index template", zap.String("template", req.Name))
	return nil
}

var eventsTemplate = `{
	"index_patterns": ["%s*"],
	"template": {
		"mappings": {
			"properties": {
				"type":                           {"type": "keyword"},
				"repository_fullname":            {"type": "keyword"},
				"repository_fullname_and_number": {"type": "keyword"},
				"author":                         {"type": "keyword"},
				"on_author":                      {"type": "keyword"},
				"created_at":                     {"type": "date", "format": "date_time_no_millis||date_optional_time||epoch_millis"},
				"on_created_at":                  {"type": "date", "format": "date_time_no_millis||date_optional_time||epoch_millis"},
				"approval":                       {"type": "keyword"},
				"state":                          {"type": "keyword"},
				"duration":                       {"type": "long"}
			}
		}
	}
}`
