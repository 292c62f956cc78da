package elasticsearch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8/esapi"
	"go.uber.org/zap"
)

const CustomersIndexName = "customers"

func keywordText() map[string]interface{} {
	return map[string]interface{}{
		"type": "text",
		"fields": map[string]interface{}{
			"keyword": map[string]interface{}{"type": "keyword", "ignore_above": 256},
		},
	}
}

// CustomersMapping is the mapping of the customers index.
func CustomersMapping() (string, error) {
	mapping := map[string]interface{}{
		"mappings": map[string]interface{}{
			"properties": map[string]interface{}{
				"name":           keywordText(),
				"handle":         map[string]interface{}{"type": "keyword"},
				"company":        keywordText(),
				"phone":          map[string]interface{}{"type": "keyword"},
				"email":          keywordText(),
				"country":        keywordText(),
				"status":         map[string]interface{}{"type": "keyword"},
				"last_active_at": map[string]interface{}{"type": "date"},
				"created_at":     map[string]interface{}{"type": "date"},
			},
		},
	}
	b, err := json.Marshal(mapping)
	if err != nil {
		return "", fmt.Errorf("error marshalling customers mapping to JSON: %w", err)
	}
	return string(b), nil
}

// CreateIndexIfNotExists creates index with mappingJSON unless it already exists.
func CreateIndexIfNotExists(ctx context.Context, client *ESClientWrapper, index, mappingJSON string, logger *zap.Logger) error {
	log := logger.Named("elasticsearch_index_setup").With(zap.String("index_name", index))

	res, err := esapi.IndicesExistsRequest{Index: []string{index}}.Do(ctx, client.Client)
	if err != nil {
		log.Error("Error checking if index exists", zap.Error(err))
		return fmt.Errorf("error checking if index %s exists: %w", index, err)
	}
	res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
		log.Info("Index already exists")
		return nil
	case http.StatusNotFound:
	default:
		log.Error("Unexpected status checking index", zap.String("status", res.Status()))
		return fmt.Errorf("error checking if index %s exists: status %s", index, res.Status())
	}

	createRes, err := esapi.IndicesCreateRequest{
		Index: index,
		Body:  strings.NewReader(mappingJSON),
	}.Do(ctx, client.Client)
	if err != nil {
		log.Error("Error creating index", zap.Error(err))
		return fmt.Errorf("error creating index %s: %w", index, err)
	}
	defer createRes.Body.Close()

	if createRes.IsError() {
		var errorBody map[string]interface{}
		if err := json.NewDecoder(createRes.Body).Decode(&errorBody); err == nil {
			log.Error("Failed to create index", zap.String("status", createRes.Status()), zap.Any("error_details", errorBody))
		}
		return fmt.Errorf("failed to create index %s: status %s", index, createRes.Status())
	}

	log.Info("Index created successfully")
	return nil
}
