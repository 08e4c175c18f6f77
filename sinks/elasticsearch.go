package sinks

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/rs/zerolog"
	"github.com/tarungka/couchstream/stream"
)

// ElasticSink replicates documents into Elasticsearch; the routed
// collection name is used as the index.
type ElasticSink struct {
	client *elasticsearch.Client
	logger zerolog.Logger
}

func NewElasticSink(c ElasticConfig, logger zerolog.Logger) (*ElasticSink, error) {
	if len(c.Addresses) == 0 && c.CloudID == "" {
		return nil, stream.Errorf(stream.KindConfig, "elasticsearch", "elasticsearch.addresses or elasticsearch.cloud_id is required")
	}
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: c.Addresses,
		Username:  c.Username,
		Password:  c.Password,
		APIKey:    c.APIKey,
		CloudID:   c.CloudID,
	})
	if err != nil {
		return nil, stream.Wrap(stream.KindConfig, "elasticsearch client", err)
	}
	return newElasticSink(client, logger), nil
}

func newElasticSink(client *elasticsearch.Client, logger zerolog.Logger) *ElasticSink {
	return &ElasticSink{
		client: client,
		logger: logger.With().Str("service", "elasticsearch").Logger(),
	}
}

func (e *ElasticSink) Delete(ctx context.Context, index, id string) error {
	res, err := esapi.DeleteRequest{Index: index, DocumentID: id}.Do(ctx, e.client)
	if err != nil {
		return stream.Wrap(stream.KindConnection, "elasticsearch delete", err)
	}
	defer res.Body.Close()

	// already gone
	if res.StatusCode == http.StatusNotFound {
		return nil
	}
	if res.IsError() {
		return elasticError("elasticsearch delete", res)
	}
	return nil
}

func (e *ElasticSink) Upsert(ctx context.Context, index, id string, doc map[string]interface{}) (bool, error) {
	body := make(map[string]interface{}, len(doc))
	for k, v := range doc {
		// _id is index metadata and may not appear in the source
		if k == "_id" {
			continue
		}
		body[k] = v
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return false, stream.Wrap(stream.KindStructural, "elasticsearch encode document", err)
	}

	res, err := esapi.IndexRequest{
		Index:      index,
		DocumentID: id,
		Body:       bytes.NewReader(payload),
	}.Do(ctx, e.client)
	if err != nil {
		return false, stream.Wrap(stream.KindConnection, "elasticsearch index", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return false, elasticError("elasticsearch index", res)
	}

	var r struct {
		Result string `json:"result"`
	}
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		e.logger.Warn().Err(err).Str("id", id).Msg("Error parsing the response body")
		return false, nil
	}
	return r.Result == "created", nil
}

func (e *ElasticSink) Close(_ context.Context) error {
	e.logger.Info().Msg("Closing Elasticsearch connection")
	return nil
}

func elasticError(op string, res *esapi.Response) error {
	kind := stream.KindApply
	if res.StatusCode == http.StatusTooManyRequests || res.StatusCode >= http.StatusInternalServerError {
		kind = stream.KindConnection
	}
	return stream.Errorf(kind, op, "%s", res.String())
}
