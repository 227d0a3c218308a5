package taskboard_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/billing-engine/billing"
	"github.com/warp/billing-engine/taskboard"
)

func TestMoveTask_SendsListAndCredentials(t *testing.T) {
	var gotMethod, gotPath, gotList, gotKey, gotToken string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotList = r.URL.Query().Get("idList")
		gotKey = r.URL.Query().Get("key")
		gotToken = r.URL.Query().Get("token")
		fmt.Fprintf(w, `{"id":"card-1","name":"WO-1","idList":%q}`, gotList)
	}))
	defer srv.Close()

	c := taskboard.New("k", "t", taskboard.WithBaseURL(srv.URL))
	err := c.MoveTask(context.Background(), "card-1", "list-done")
	require.NoError(t, err)

	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "/cards/card-1", gotPath)
	assert.Equal(t, "list-done", gotList)
	assert.Equal(t, "k", gotKey)
	assert.Equal(t, "t", gotToken)
}

func TestMoveTask_MapsCredentialErrors(t *testing.T) {
	tests := []struct {
		body string
		want error
	}{
		{"invalid key", taskboard.ErrInvalidKey},
		{"invalid app token", taskboard.ErrInvalidToken},
	}
	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			c := taskboard.New("k", "t", taskboard.WithBaseURL(srv.URL))
			err := c.MoveTask(context.Background(), "card-1", "list-1")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestMoveTask_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, "boom")
	}))
	defer srv.Close()

	c := taskboard.New("k", "t", taskboard.WithBaseURL(srv.URL))
	err := c.MoveTask(context.Background(), "card-1", "list-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestMoveTask_RequiresIDs(t *testing.T) {
	c := taskboard.New("k", "t", taskboard.WithBaseURL("http://127.0.0.1:1"))
	assert.ErrorIs(t, c.MoveTask(context.Background(), "", "list-1"), taskboard.ErrNotLinked)
	assert.ErrorIs(t, c.MoveTask(context.Background(), "card-1", ""), taskboard.ErrNotLinked)
}

func TestGetCard(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		fmt.Fprint(w, `{"id":"card-1","name":"WO-1","idList":"list-a"}`)
	}))
	defer srv.Close()

	c := taskboard.New("k", "t", taskboard.WithBaseURL(srv.URL))
	card, err := c.GetCard(context.Background(), "card-1")
	require.NoError(t, err)
	assert.Equal(t, "list-a", card.IDList)
}

func TestLocate_MapsListToStatus(t *testing.T) {
	// GIVEN: Cards sitting in each configured list and one outside them
	// WHEN: Locating them
	// THEN: The list maps back to the billing status it routes to

	lists := billing.TaskLists{Delivered: "L-del", Aggregating: "L-agg", Completed: "L-done", Archived: "L-arch"}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		list := r.URL.Path[len("/cards/"):]
		fmt.Fprintf(w, `{"id":"c","name":"WO-1","idList":%q}`, list)
	}))
	defer srv.Close()
	c := taskboard.New("k", "t", taskboard.WithBaseURL(srv.URL))

	tests := []struct {
		list   string
		status billing.Status
		ok     bool
	}{
		{"L-del", billing.StatusDelivered, true},
		{"L-agg", billing.StatusAggregating, true},
		{"L-done", billing.StatusAggregated, true},
		{"L-arch", "", false},
		{"elsewhere", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.list, func(t *testing.T) {
			card, status, ok, err := c.Locate(context.Background(), tt.list, lists)
			require.NoError(t, err)
			assert.Equal(t, tt.list, card.IDList)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.ok, ok)
		})
	}

	_, _, _, err := c.Locate(context.Background(), "", lists)
	assert.ErrorIs(t, err, taskboard.ErrNotLinked)
}
