package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"indexcover/internal/attestation"
	"indexcover/internal/policy/models"
)

type recordingEngine struct {
	rounds []uint64
	reject map[uint64]bool
}

func (e *recordingEngine) UpdateData(_ context.Context, proof attestation.Proof) (*models.IndicatorUpdateResult, error) {
	if e.reject[proof.Data.VotingRound] {
		return nil, errors.New("proof rejected")
	}
	e.rounds = append(e.rounds, proof.Data.VotingRound)
	return &models.IndicatorUpdateResult{Indicator: "CPI"}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func serveProofs(t *testing.T, status int, body any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
		if body != nil {
			require.NoError(t, json.NewEncoder(w).Encode(body))
		}
	}))
}

func TestPoll(t *testing.T) {
	t.Run("submits every proof in the batch", func(t *testing.T) {
		batch := feedEnvelope{Proofs: []attestation.Proof{
			{Data: attestation.Response{VotingRound: 10}},
			{Data: attestation.Response{VotingRound: 11}},
		}}
		srv := serveProofs(t, http.StatusOK, batch)
		defer srv.Close()

		engine := &recordingEngine{}
		poller := NewPoller(engine, srv.URL, "@every 5m", discardLogger())

		require.NoError(t, poller.Poll(context.Background()))
		assert.Equal(t, []uint64{10, 11}, engine.rounds)
	})

	t.Run("a rejected proof does not stop the batch", func(t *testing.T) {
		batch := feedEnvelope{Proofs: []attestation.Proof{
			{Data: attestation.Response{VotingRound: 20}},
			{Data: attestation.Response{VotingRound: 21}},
			{Data: attestation.Response{VotingRound: 22}},
		}}
		srv := serveProofs(t, http.StatusOK, batch)
		defer srv.Close()

		engine := &recordingEngine{reject: map[uint64]bool{21: true}}
		poller := NewPoller(engine, srv.URL, "@every 5m", discardLogger())

		require.NoError(t, poller.Poll(context.Background()))
		assert.Equal(t, []uint64{20, 22}, engine.rounds)
	})

	t.Run("non-200 feed response is an error", func(t *testing.T) {
		srv := serveProofs(t, http.StatusBadGateway, nil)
		defer srv.Close()

		poller := NewPoller(&recordingEngine{}, srv.URL, "@every 5m", discardLogger())
		assert.Error(t, poller.Poll(context.Background()))
	})

	t.Run("undecodable feed body is an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("not json"))
		}))
		defer srv.Close()

		poller := NewPoller(&recordingEngine{}, srv.URL, "@every 5m", discardLogger())
		assert.Error(t, poller.Poll(context.Background()))
	})

	t.Run("empty batch is a no-op", func(t *testing.T) {
		srv := serveProofs(t, http.StatusOK, feedEnvelope{})
		defer srv.Close()

		engine := &recordingEngine{}
		poller := NewPoller(engine, srv.URL, "@every 5m", discardLogger())

		require.NoError(t, poller.Poll(context.Background()))
		assert.Empty(t, engine.rounds)
	})
}

func TestStartRejectsBadSchedule(t *testing.T) {
	poller := NewPoller(&recordingEngine{}, "http://localhost:0", "not a schedule", discardLogger())
	assert.Error(t, poller.Start())
}
