// Package elastic implements a log sink storing the records in
// Elasticsearch.
package elastic

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/olivere/elastic/v7"

	"github.com/passeplat/passeplat/logsink"
)

// DefaultTermSuffix selects the keyword sub-field that the dynamic
// mapping of Elasticsearch creates for the string fields.
const DefaultTermSuffix = ".keyword"

type Options struct {
	URLs     []string
	Username string
	Password string

	// TermSuffix is appended to the fields of the term queries.
	// Defaults to DefaultTermSuffix. Set to "-" to disable it.
	TermSuffix string

	// Sniff enables the discovery of the cluster nodes.
	Sniff bool

	// HTTPClient is used when set.
	HTTPClient *http.Client
}

type Sink struct {
	client     *elastic.Client
	termSuffix string
}

func New(o Options) (*Sink, error) {
	opts := []elastic.ClientOptionFunc{
		elastic.SetURL(o.URLs...),
		elastic.SetSniff(o.Sniff),
		elastic.SetHealthcheck(false),
	}

	if o.Username != "" {
		opts = append(opts, elastic.SetBasicAuth(o.Username, o.Password))
	}

	if o.HTTPClient != nil {
		opts = append(opts, elastic.SetHttpClient(o.HTTPClient))
	}

	c, err := elastic.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}

	switch o.TermSuffix {
	case "":
		o.TermSuffix = DefaultTermSuffix
	case "-":
		o.TermSuffix = ""
	}

	return &Sink{client: c, termSuffix: o.TermSuffix}, nil
}

func (s *Sink) LogItem(ctx context.Context, index string, r logsink.Record) (logsink.ItemResult, error) {
	res, err := s.client.Index().Index(index).BodyJson(r).Do(ctx)
	if err != nil {
		return logsink.ItemResult{}, err
	}

	return logsink.ItemResult{ID: res.Id, Result: res.Result}, nil
}

func (s *Sink) LogBulk(ctx context.Context, index string, r []logsink.Record) error {
	if len(r) == 0 {
		return nil
	}

	bulk := s.client.Bulk().Index(index)
	for _, ri := range r {
		bulk.Add(elastic.NewBulkIndexRequest().Doc(ri))
	}

	res, err := bulk.Do(ctx)
	if err != nil {
		return err
	}

	if failed := res.Failed(); len(failed) > 0 {
		reason := "unknown"
		if failed[0].Error != nil {
			reason = failed[0].Error.Reason
		}

		return fmt.Errorf("failed to store %d of %d records: %s", len(failed), len(r), reason)
	}

	return nil
}

func (s *Sink) query(q logsink.Query) elastic.Query {
	bq := elastic.NewBoolQuery()
	for k, v := range q.Terms {
		bq.Filter(elastic.NewTermQuery(k+s.termSuffix, v))
	}

	for _, k := range q.Exclude {
		bq.MustNot(elastic.NewTermQuery(k, true))
	}

	if q.StatusFrom != 0 || q.StatusTo != 0 {
		rq := elastic.NewRangeQuery(logsink.StatusField)
		if q.StatusFrom != 0 {
			rq.Gte(q.StatusFrom)
		}

		if q.StatusTo != 0 {
			rq.Lte(q.StatusTo)
		}

		bq.Filter(rq)
	}

	if !q.Since.IsZero() {
		bq.Filter(elastic.NewRangeQuery(logsink.TimeField).Gte(q.Since.UTC().Format("2006-01-02T15:04:05.000000Z")))
	}

	return bq
}

// Search returns no hits when the index doesn't exist.
func (s *Sink) Search(ctx context.Context, index string, q logsink.Query) ([]logsink.Hit, error) {
	res, err := s.client.Search().
		Index(index).
		Query(s.query(q)).
		Sort(logsink.TimeField, false).
		Size(q.Limit()).
		Do(ctx)
	if elastic.IsNotFound(err) {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	if res.Hits == nil {
		return nil, nil
	}

	hits := make([]logsink.Hit, 0, len(res.Hits.Hits))
	for _, h := range res.Hits.Hits {
		var r logsink.Record
		if err := json.Unmarshal(h.Source, &r); err != nil {
			return nil, fmt.Errorf("invalid record %s: %w", h.Id, err)
		}

		hits = append(hits, logsink.Hit{ID: h.Id, Record: r})
	}

	return hits, nil
}

func (s *Sink) Close() error {
	s.client.Stop()
	return nil
}
