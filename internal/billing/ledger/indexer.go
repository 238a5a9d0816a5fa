// internal/billing/ledger/indexer.go
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"courtside-billing/internal/common/logger"
)

// Indexer mirrors ledger entries into Elasticsearch so operators can search
// billing history across workspaces. Postgres remains the source of truth;
// indexing is best-effort and never fails a reconciliation.
type Indexer struct {
	client *elasticsearch.Client
	index  string
	log    logger.Logger
}

func NewIndexer(client *elasticsearch.Client, index string, log logger.Logger) *Indexer {
	return &Indexer{client: client, index: index, log: log}
}

// Index writes a single entry document keyed by the entry ID. Errors are
// logged and swallowed.
func (ix *Indexer) Index(ctx context.Context, e *Entry) {
	body, err := json.Marshal(e)
	if err != nil {
		ix.log.WithError(err).Error("failed to marshal ledger entry for indexing", map[string]interface{}{
			"entry_id": e.ID,
		})
		return
	}

	req := esapi.IndexRequest{
		Index:      ix.index,
		DocumentID: e.ID,
		Body:       bytes.NewReader(body),
	}
	res, err := req.Do(ctx, ix.client)
	if err != nil {
		ix.log.WithError(err).Warn("ledger entry indexing failed", map[string]interface{}{
			"entry_id":     e.ID,
			"workspace_id": e.WorkspaceID,
		})
		return
	}
	defer res.Body.Close()

	if res.IsError() {
		ix.log.WithError(fmt.Errorf("elasticsearch: %s", res.String())).Warn("ledger entry indexing rejected", map[string]interface{}{
			"entry_id": e.ID,
		})
	}
}
