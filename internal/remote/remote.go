// Package remote implements records.Store against the Podio item API.
package remote

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/agentstation/recordsync/internal/transport"
	"github.com/agentstation/recordsync/pkg/errors"
	"github.com/agentstation/recordsync/pkg/records"
)

// createdOnLayout is the timestamp format of item creation times (UTC).
const createdOnLayout = "2006-01-02 15:04:05"

// Store is a records.Store backed by one Podio app.
type Store struct {
	client *transport.Client
	appID  string
}

var _ records.Store = (*Store)(nil)

// New creates a Store for appID.
func New(client *transport.Client, appID string) (*Store, error) {
	if appID == "" {
		return nil, errors.NewConfigError("remote", "app_id is required", nil)
	}
	return &Store{client: client, appID: appID}, nil
}

type item struct {
	ItemID    int64       `json:"item_id"`
	CreatedOn string      `json:"created_on"`
	Revision  int         `json:"revision"`
	Fields    []itemField `json:"fields"`
}

type itemField struct {
	FieldID int64 `json:"field_id"`
	Values  []any `json:"values"`
}

type fieldsBody struct {
	Fields records.Payload `json:"fields"`
}

type filterBody struct {
	Filters  records.Filter `json:"filters,omitempty"`
	Limit    int            `json:"limit"`
	Offset   int            `json:"offset"`
	Remember bool           `json:"remember"`
}

type filterResponse struct {
	Total    int    `json:"total"`
	Filtered int    `json:"filtered"`
	Items    []item `json:"items"`
}

// Create implements records.Store.
func (s *Store) Create(ctx context.Context, payload records.Payload) (*records.Remote, error) {
	var created item
	err := s.client.Do(ctx, transport.Request{
		Op:     "create",
		Method: http.MethodPost,
		Path:   fmt.Sprintf("item/app/%s/", s.appID),
		Body:   fieldsBody{Fields: payload},
	}, &created)
	if err != nil {
		return nil, err
	}
	if created.ItemID == 0 {
		return nil, &errors.APIError{Operation: "create", Message: "response has no item_id"}
	}

	rec := toRemote(created)
	if len(rec.Fields) == 0 {
		rec.Fields = make(map[records.FieldID][]any, len(payload))
		for id, v := range payload {
			rec.Fields[id] = records.NormalizeValues(v)
		}
	}
	return &rec, nil
}

// Query implements records.Store.
func (s *Store) Query(ctx context.Context, filter records.Filter, limit, offset int) ([]records.Remote, error) {
	var resp filterResponse
	err := s.client.Do(ctx, transport.Request{
		Op:     "query",
		Method: http.MethodPost,
		Path:   fmt.Sprintf("item/app/%s/filter/", s.appID),
		Body:   filterBody{Filters: filter, Limit: limit, Offset: offset},
	}, &resp)
	if err != nil {
		return nil, err
	}

	out := make([]records.Remote, len(resp.Items))
	for i, it := range resp.Items {
		out[i] = toRemote(it)
	}
	return out, nil
}

// Update implements records.Store.
func (s *Store) Update(ctx context.Context, id records.ID, payload records.Payload) (*records.Remote, error) {
	var resp struct {
		Revision int `json:"revision"`
	}
	err := s.client.Do(ctx, transport.Request{
		Op:     "update",
		Method: http.MethodPut,
		Path:   "item/" + id.String(),
		Body:   fieldsBody{Fields: payload},
	}, &resp)
	if err != nil {
		return nil, err
	}

	rec := records.Remote{ID: id, Revision: resp.Revision, Fields: make(map[records.FieldID][]any, len(payload))}
	for field, v := range payload {
		rec.Fields[field] = records.NormalizeValues(v)
	}
	return &rec, nil
}

// Delete implements records.Store.
func (s *Store) Delete(ctx context.Context, id records.ID) error {
	return s.client.Do(ctx, transport.Request{
		Op:     "delete",
		Method: http.MethodDelete,
		Path:   "item/" + id.String(),
	}, nil)
}

func toRemote(it item) records.Remote {
	rec := records.Remote{
		ID:       records.ID(strconv.FormatInt(it.ItemID, 10)),
		Revision: it.Revision,
	}
	if t, err := time.ParseInLocation(createdOnLayout, it.CreatedOn, time.UTC); err == nil {
		rec.CreatedOn = t
	}
	if len(it.Fields) > 0 {
		rec.Fields = make(map[records.FieldID][]any, len(it.Fields))
		for _, f := range it.Fields {
			rec.Fields[records.FieldID(f.FieldID)] = f.Values
		}
	}
	return rec
}
