package remote

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/recordsync/internal/remote/podiotest"
	"github.com/agentstation/recordsync/internal/transport"
	pkgerrors "github.com/agentstation/recordsync/pkg/errors"
	"github.com/agentstation/recordsync/pkg/records"
	"github.com/agentstation/recordsync/pkg/records/memory"
)

const (
	appID                        = "42"
	addressField records.FieldID = 267139876
	phoneField   records.FieldID = 267139901
)

func newStore(t *testing.T, srv *podiotest.Server) *Store {
	t.Helper()
	auth := transport.NewAppAuth(transport.AppCredentials{
		ClientID: "c", ClientSecret: "s", AppID: appID, AppToken: "t",
	}, srv.URL+"/oauth/token", srv.Client())
	require.NoError(t, auth.Authenticate(context.Background()))

	client, err := transport.New(srv.URL, auth, transport.WithRateLimit(0), transport.WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	store, err := New(client, appID)
	require.NoError(t, err)
	return store
}

func TestCreateAndQuery(t *testing.T) {
	srv := podiotest.New(appID)
	defer srv.Close()
	store := newStore(t, srv)
	ctx := context.Background()

	created, err := store.Create(ctx, records.Payload{
		addressField: "123 Main St",
		phoneField:   []map[string]any{{"type": "mobile", "value": "555"}},
	})
	require.NoError(t, err)
	assert.Equal(t, records.ID("1"), created.ID)
	assert.Equal(t, "123 Main St", created.Text(addressField))

	found, err := store.Query(ctx, records.Filter{addressField: "123 Main St"}, 30, 0)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, created.ID, found[0].ID)
	assert.Equal(t, "123 Main St", found[0].Text(addressField))
	assert.Equal(t, "555", found[0].Text(phoneField))
	assert.False(t, found[0].CreatedOn.IsZero())
}

func TestQueryDecodesItems(t *testing.T) {
	created := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)
	srv := podiotest.New(appID, memory.WithRecords(records.Remote{
		ID:        "900",
		CreatedOn: created,
		Revision:  5,
		Fields:    map[records.FieldID][]any{addressField: {"9 Elm"}},
	}))
	defer srv.Close()

	found, err := newStore(t, srv).Query(context.Background(), nil, 100, 0)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, records.ID("900"), found[0].ID)
	assert.Equal(t, 5, found[0].Revision)
	assert.True(t, created.Equal(found[0].CreatedOn))
	assert.Equal(t, "9 Elm", found[0].Text(addressField))
}

func TestQueryPaging(t *testing.T) {
	var seed []records.Remote
	for _, id := range []records.ID{"1", "2", "3"} {
		seed = append(seed, records.Remote{ID: id, Fields: map[records.FieldID][]any{addressField: {"K"}}})
	}
	srv := podiotest.New(appID, memory.WithRecords(seed...))
	defer srv.Close()
	store := newStore(t, srv)

	page, err := store.Query(context.Background(), nil, 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, records.ID("3"), page[0].ID)

	page, err = store.Query(context.Background(), nil, 2, 3)
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestUpdateAndDelete(t *testing.T) {
	srv := podiotest.New(appID, memory.WithRecords(records.Remote{
		ID:     "7",
		Fields: map[records.FieldID][]any{addressField: {"1 Oak"}},
	}))
	defer srv.Close()
	store := newStore(t, srv)
	ctx := context.Background()

	updated, err := store.Update(ctx, "7", records.Payload{phoneField: []map[string]any{{"type": "mobile", "value": "555"}}})
	require.NoError(t, err)
	assert.Equal(t, 1, updated.Revision)

	rec, ok := srv.Store.Get("7")
	require.True(t, ok)
	assert.Equal(t, "555", rec.Text(phoneField))
	assert.Equal(t, "1 Oak", rec.Text(addressField))

	require.NoError(t, store.Delete(ctx, "7"))
	assert.Equal(t, 0, srv.Store.Len())

	err = store.Delete(ctx, "7")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsNotFound(err))
	assert.True(t, pkgerrors.IsRemoteUnavailable(err))
}

func TestServerErrorsAreRemoteUnavailable(t *testing.T) {
	srv := podiotest.New(appID)
	defer srv.Close()
	store := newStore(t, srv)

	srv.FailNext(http.MethodPost, "/item/app/42/", 1)
	_, err := store.Create(context.Background(), records.Payload{addressField: "x"})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsRemoteUnavailable(err))

	var apiErr *pkgerrors.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Equal(t, "create", apiErr.Operation)

	_, err = store.Create(context.Background(), records.Payload{addressField: "x"})
	assert.NoError(t, err, "failures are not sticky")
}

func TestNewRequiresAppID(t *testing.T) {
	_, err := New(nil, "")
	assert.Error(t, err)
}
