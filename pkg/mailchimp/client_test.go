package mailchimp

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dukex/flows/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(server *httptest.Server) *Client {
	return NewClient(slog.Default(),
		WithBaseURL(func(string) string { return server.URL + "/3.0" }),
		WithTimeout(time.Second),
		WithRateLimit(1000),
	)
}

func testAccount() *models.ProviderAccount {
	return &models.ProviderAccount{
		WorkspaceID: "ws-1",
		Provider:    models.ProviderMailchimp,
		AccessToken: "token-123",
		Server:      "us21",
	}
}

func TestSubscriberHash(t *testing.T) {
	assert.Equal(t, "62eeb292278cc15f5817cb78f7790b08", SubscriberHash("Urist.McVankab@freddiesjokes.com"))
	assert.Equal(t, SubscriberHash("ana@example.com"), SubscriberHash(" ANA@example.com "))
}

func TestAddListMember_UpsertsMember(t *testing.T) {
	var got Member

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/3.0/lists/list-1/members/"+SubscriberHash("ana@example.com"), r.URL.Path)
		assert.Equal(t, "Bearer token-123", r.Header.Get("Authorization"))

		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	err := newTestClient(server).AddListMember(context.Background(), testAccount(), "list-1", Member{EmailAddress: "ana@example.com"})
	require.NoError(t, err)

	assert.Equal(t, "ana@example.com", got.EmailAddress)
	assert.Equal(t, StatusSubscribed, got.StatusIfNew)
}

func TestAddListMember_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)

			return
		}

		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	err := newTestClient(server).AddListMember(context.Background(), testAccount(), "list-1", Member{EmailAddress: "ana@example.com"})
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestAddListMember_ClientErrorIsPermanent(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/problem+json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"status":400,"title":"Invalid Resource","detail":"looks fake or invalid"}`))
	}))
	defer server.Close()

	err := newTestClient(server).AddListMember(context.Background(), testAccount(), "list-1", Member{EmailAddress: "ana@example.com"})
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "Invalid Resource", apiErr.Title)
	assert.Equal(t, int32(1), calls.Load())
}

func TestAddListMember_MissingServer(t *testing.T) {
	account := testAccount()
	account.Server = ""

	err := NewClient(slog.Default()).AddListMember(context.Background(), account, "list-1", Member{EmailAddress: "ana@example.com"})
	assert.ErrorIs(t, err, ErrMissingServer)
}

func TestAddListMember_InvalidServer(t *testing.T) {
	servers := []string{"evil.com/x?", "us21.attacker.com#", "US21", "us", "21", "us-21"}

	for _, server := range servers {
		t.Run(server, func(t *testing.T) {
			client := NewClient(slog.Default(), WithTransport(roundTripFunc(func(r *http.Request) (*http.Response, error) {
				t.Fatalf("unexpected request to %s", r.URL)

				return nil, nil
			})))

			account := testAccount()
			account.Server = server

			err := client.AddListMember(context.Background(), account, "list-1", Member{EmailAddress: "ana@example.com"})
			assert.ErrorIs(t, err, ErrInvalidServer)
		})
	}
}

func TestAddListMember_EscapesListID(t *testing.T) {
	var escaped string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		escaped = r.URL.EscapedPath()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	err := newTestClient(server).AddListMember(context.Background(), testAccount(), "list/../other", Member{EmailAddress: "ana@example.com"})
	require.NoError(t, err)

	assert.Equal(t, "/3.0/lists/list%2F..%2Fother/members/"+SubscriberHash("ana@example.com"), escaped)
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestAddListMember_DefaultBaseURLUsesAccountServer(t *testing.T) {
	var requested string

	client := NewClient(slog.Default(), WithTransport(roundTripFunc(func(r *http.Request) (*http.Response, error) {
		requested = r.URL.String()

		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       http.NoBody,
			Header:     http.Header{},
			Request:    r,
		}, nil
	})))

	err := client.AddListMember(context.Background(), testAccount(), "list-1", Member{EmailAddress: "ana@example.com"})
	require.NoError(t, err)

	assert.Equal(t, "https://us21.api.mailchimp.com/3.0/lists/list-1/members/"+SubscriberHash("ana@example.com"), requested)
}
