// Package oracle pulls finished attestation proofs from the feed endpoint
// on a schedule and submits them to the settlement engine. The poller is an
// alternative ingress to the HTTP oracle endpoint; both feed the same
// update pipeline.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"

	"indexcover/internal/attestation"
	"indexcover/internal/policy/models"
)

// Engine is the update pipeline the poller feeds.
type Engine interface {
	UpdateData(ctx context.Context, proof attestation.Proof) (*models.IndicatorUpdateResult, error)
}

// feedEnvelope is the response shape of the proof feed: the finished proofs
// of the rounds since the last poll.
type feedEnvelope struct {
	Proofs []attestation.Proof `json:"proofs"`
}

// Poller fetches proof batches on a cron schedule.
type Poller struct {
	engine   Engine
	client   *http.Client
	url      string
	schedule string
	logger   *slog.Logger
	cron     *cron.Cron
}

func NewPoller(engine Engine, url, schedule string, logger *slog.Logger) *Poller {
	return &Poller{
		engine:   engine,
		client:   &http.Client{Timeout: 30 * time.Second},
		url:      url,
		schedule: schedule,
		logger:   logger,
		cron:     cron.New(),
	}
}

// Start registers the polling job and starts the scheduler.
func (p *Poller) Start() error {
	if _, err := p.cron.AddFunc(p.schedule, func() {
		if err := p.Poll(context.Background()); err != nil {
			p.logger.Error("proof feed poll failed", "url", p.url, "error", err)
		}
	}); err != nil {
		return fmt.Errorf("register feed poll: %w", err)
	}
	p.cron.Start()
	p.logger.Info("proof feed poller started", "url", p.url, "schedule", p.schedule)
	return nil
}

// Stop stops the scheduler and waits for a running poll to finish.
func (p *Poller) Stop() {
	<-p.cron.Stop().Done()
	p.logger.Info("proof feed poller stopped")
}

// Poll fetches one proof batch and submits every proof in it. A proof the
// engine rejects is logged and skipped; it does not stop the batch, since
// later proofs may belong to different rounds.
func (p *Poller) Poll(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return fmt.Errorf("build feed request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch proof feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("proof feed returned status %d", resp.StatusCode)
	}

	var envelope feedEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decode proof feed: %w", err)
	}

	for _, proof := range envelope.Proofs {
		result, err := p.engine.UpdateData(ctx, proof)
		if err != nil {
			p.logger.Warn("feed proof rejected",
				"voting_round", proof.Data.VotingRound,
				"error", err,
			)
			continue
		}
		p.logger.Info("feed proof applied",
			"indicator", result.Indicator,
			"value", result.Value,
			"triggered", len(result.Triggered),
		)
	}
	return nil
}
