package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type engagementCall struct {
	messageID string
	at        time.Time
}

type fakeEngagementStore struct {
	opened  []engagementCall
	clicked []engagementCall
	err     error
}

func (f *fakeEngagementStore) MarkOpened(ctx context.Context, providerMessageID string, at time.Time) error {
	if f.err != nil {
		return f.err
	}
	f.opened = append(f.opened, engagementCall{messageID: providerMessageID, at: at})
	return nil
}

func (f *fakeEngagementStore) MarkClicked(ctx context.Context, providerMessageID string, at time.Time) error {
	if f.err != nil {
		return f.err
	}
	f.clicked = append(f.clicked, engagementCall{messageID: providerMessageID, at: at})
	return nil
}

func postEvents(t *testing.T, h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/email/events", strings.NewReader(body))
	h.ServeHTTP(rec, req)
	return rec
}

func TestEmailEventsRecordsOpensAndClicks(t *testing.T) {
	store := &fakeEngagementStore{}
	h := NewEmailEventsHandler(store, slog.New(slog.DiscardHandler))

	rec := postEvents(t, h, `[
		{"event":"open","sg_message_id":"sg-1","timestamp":1773140400},
		{"event":"click","sg_message_id":"sg-2","timestamp":1773140460},
		{"event":"delivered","sg_message_id":"sg-3","timestamp":1773140520}
	]`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":{"applied":2}}`, rec.Body.String())

	require.Len(t, store.opened, 1)
	assert.Equal(t, "sg-1", store.opened[0].messageID)
	assert.Equal(t, time.Unix(1773140400, 0).UTC(), store.opened[0].at)
	require.Len(t, store.clicked, 1)
	assert.Equal(t, "sg-2", store.clicked[0].messageID)
}

func TestEmailEventsMalformedPayload(t *testing.T) {
	store := &fakeEngagementStore{}
	h := NewEmailEventsHandler(store, slog.New(slog.DiscardHandler))

	rec := postEvents(t, h, `{"not":"an array"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, store.opened)
}

func TestEmailEventsStoreFailureStill200(t *testing.T) {
	store := &fakeEngagementStore{err: errors.New("db down")}
	h := NewEmailEventsHandler(store, slog.New(slog.DiscardHandler))

	// A non-2xx would make the provider redeliver the whole batch.
	rec := postEvents(t, h, `[{"event":"open","sg_message_id":"sg-1","timestamp":1773140400}]`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":{"applied":0}}`, rec.Body.String())
}
