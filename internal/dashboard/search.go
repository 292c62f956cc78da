package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/google/uuid"
	"go.uber.org/zap"

	es "onboarding_backend/internal/platform/elasticsearch"
)

// Searcher runs full-text customer search outside the database.
type Searcher interface {
	Search(ctx context.Context, query CustomerQuery) ([]uuid.UUID, int64, error)
	Index(ctx context.Context, customer *Customer) error
	BulkIndex(ctx context.Context, customers []Customer) (int, error)
}

type esSearcher struct {
	client *es.ESClientWrapper
	index  string
	logger *zap.Logger
}

// NewElasticsearchSearcher searches the customers index.
func NewElasticsearchSearcher(client *es.ESClientWrapper, logger *zap.Logger) Searcher {
	return &esSearcher{client: client, index: es.CustomersIndexName, logger: logger.Named("customer_search")}
}

type customerDoc struct {
	Name         string `json:"name"`
	Handle       string `json:"handle"`
	Company      string `json:"company"`
	Phone        string `json:"phone"`
	Email        string `json:"email"`
	Country      string `json:"country"`
	Status       string `json:"status"`
	LastActiveAt string `json:"last_active_at"`
	CreatedAt    string `json:"created_at"`
}

func toDoc(c *Customer) customerDoc {
	const layout = "2006-01-02T15:04:05.000Z07:00"
	return customerDoc{
		Name:         c.Name,
		Handle:       c.Handle,
		Company:      c.Company,
		Phone:        c.Phone,
		Email:        c.Email,
		Country:      c.Country,
		Status:       string(c.Status),
		LastActiveAt: c.LastActiveAt.UTC().Format(layout),
		CreatedAt:    c.CreatedAt.UTC().Format(layout),
	}
}

func searchSort(sort SortOrder) []map[string]string {
	switch sort {
	case SortOldest:
		return []map[string]string{{"created_at": "asc"}}
	case SortName:
		return []map[string]string{{"name.keyword": "asc"}}
	default:
		return []map[string]string{{"created_at": "desc"}}
	}
}

func (s *esSearcher) Search(ctx context.Context, query CustomerQuery) ([]uuid.UUID, int64, error) {
	body := map[string]interface{}{
		"from":    query.Offset(),
		"size":    query.Limit(),
		"_source": false,
		"sort":    searchSort(query.Sort),
		"query": map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":     strings.TrimSpace(query.Text),
				"fields":    []string{"name^2", "company", "email", "country"},
				"fuzziness": "AUTO",
			},
		},
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, 0, fmt.Errorf("marshal customer search: %w", err)
	}

	res, err := esapi.SearchRequest{
		Index: []string{s.index},
		Body:  bytes.NewReader(raw),
	}.Do(ctx, s.client.Client)
	if err != nil {
		return nil, 0, fmt.Errorf("customer search: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, 0, fmt.Errorf("customer search: status %s", res.Status())
	}

	var parsed struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				ID string `json:"_id"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, 0, fmt.Errorf("decode customer search: %w", err)
	}

	ids := make([]uuid.UUID, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		id, err := uuid.Parse(hit.ID)
		if err != nil {
			s.logger.Warn("Skipping search hit with a foreign id", zap.String("id", hit.ID))
			continue
		}
		ids = append(ids, id)
	}
	return ids, parsed.Hits.Total.Value, nil
}

func (s *esSearcher) Index(ctx context.Context, customer *Customer) error {
	raw, err := json.Marshal(toDoc(customer))
	if err != nil {
		return fmt.Errorf("marshal customer: %w", err)
	}
	res, err := esapi.IndexRequest{
		Index:      s.index,
		DocumentID: customer.ID.String(),
		Body:       bytes.NewReader(raw),
	}.Do(ctx, s.client.Client)
	if err != nil {
		return fmt.Errorf("index customer: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("index customer %s: status %s", customer.ID, res.Status())
	}
	return nil
}

// BulkIndex indexes customers in one request and returns how many succeeded.
func (s *esSearcher) BulkIndex(ctx context.Context, customers []Customer) (int, error) {
	if len(customers) == 0 {
		return 0, nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range customers {
		meta := map[string]map[string]string{"index": {"_index": s.index, "_id": customers[i].ID.String()}}
		if err := enc.Encode(meta); err != nil {
			return 0, err
		}
		if err := enc.Encode(toDoc(&customers[i])); err != nil {
			return 0, err
		}
	}

	res, err := esapi.BulkRequest{Body: &buf}.Do(ctx, s.client.Client)
	if err != nil {
		return 0, fmt.Errorf("bulk index customers: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return 0, fmt.Errorf("bulk index customers: status %s", res.Status())
	}

	var parsed struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			Status int `json:"status"`
		} `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return 0, fmt.Errorf("decode bulk response: %w", err)
	}
	indexed := 0
	for _, item := range parsed.Items {
		for _, result := range item {
			if result.Status >= 200 && result.Status < 300 {
				indexed++
			}
		}
	}
	if parsed.Errors {
		s.logger.Warn("Some customers failed to index", zap.Int("indexed", indexed), zap.Int("total", len(customers)))
	}
	return indexed, nil
}
