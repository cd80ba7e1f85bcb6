package outreach

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gazette_outreach/internal/contact"
	"gazette_outreach/internal/model"
	"gazette_outreach/internal/qualify"
	"gazette_outreach/internal/scoring"
	"gazette_outreach/internal/storage"
)

// IngestResult counts what one ingest run did.
type IngestResult struct {
	Fetched int
	Known   int
	// Retried counts stored notices evaluated again after a cap or
	// cooldown rejection. They are also counted as queued or rejected.
	Retried  int
	Queued   int
	Rejected int
	Failed   int
}

func (r IngestResult) String() string {
	s := fmt.Sprintf("fetched %d, already known %d, queued %d, rejected %d, failed %d",
		r.Fetched, r.Known, r.Queued, r.Rejected, r.Failed)
	if r.Retried > 0 {
		s += fmt.Sprintf(", retried %d", r.Retried)
	}
	return s
}

// Ingest fetches notices published since the given date, enriches and
// scores the new ones and queues those that qualify. Stored notices last
// rejected by a cap or the cooldown are evaluated again from their stored
// enrichment. A notice that fails is logged and left for the next run.
func (e *Engine) Ingest(ctx context.Context, since time.Time) (IngestResult, error) {
	var res IngestResult
	if e.source == nil || e.enricher == nil {
		return res, errors.New("ingest: no notice source configured")
	}

	notices, err := e.source.FetchNotices(ctx, since)
	if err != nil {
		return res, fmt.Errorf("fetch notices: %w", err)
	}
	res.Fetched = len(notices)

	for _, n := range notices {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}

		known, err := e.store.NoticeExists(ctx, n.ID)
		if err != nil {
			res.Failed++
			e.log.Error("check notice", "notice_id", n.ID, "error", err)
			continue
		}

		var enriched model.EnrichedNotice
		if known {
			stored, err := e.retryable(ctx, n.ID)
			if err != nil {
				res.Failed++
				e.log.Error("load stored notice", "notice_id", n.ID, "error", err)
				continue
			}
			if stored == nil {
				res.Known++
				continue
			}
			res.Retried++
			enriched = *stored
		} else {
			enriched, err = e.enricher.Enrich(ctx, n)
			if err != nil {
				res.Failed++
				e.log.Error("enrich notice", "notice_id", n.ID, "company", n.CompanyName, "error", err)
				continue
			}
		}

		d, err := e.Qualify(ctx, enriched)
		if err != nil {
			res.Failed++
			e.log.Error("qualify notice", "notice_id", n.ID, "error", err)
			continue
		}
		if d.Accepted {
			res.Queued++
		} else {
			res.Rejected++
		}
	}

	e.log.Info("ingest finished", "result", res.String())
	return res, nil
}

// retryable returns the stored notice when its latest decision was a
// rejection that may pass now, and nil otherwise.
func (e *Engine) retryable(ctx context.Context, id string) (*model.EnrichedNotice, error) {
	d, err := e.store.LatestDecision(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if d.Accepted || !qualify.Gate(d.Gate).Retryable() {
		return nil, nil
	}
	return e.store.GetNotice(ctx, id)
}

// Qualify scores an enriched notice, runs the qualification gates on its
// primary contact and queues the contact when it passes. The notice, the
// decision and the new contact are written in one transaction with the
// gate reads, so concurrent runs cannot both queue the same contact or
// exceed a cap.
func (e *Engine) Qualify(ctx context.Context, n model.EnrichedNotice) (qualify.Decision, error) {
	now := e.clock()
	score := scoring.Score(n)
	primary, _ := contact.SelectPrimary(n.Practitioners)

	cand := qualify.Candidate{
		NoticeID:       n.ID,
		Score:          score.Score,
		Email:          primary.Email,
		Firm:           primary.Firm,
		RegistryStatus: n.Registry.Status,
	}

	var d qualify.Decision
	err := e.store.InTx(ctx, func(tx storage.Tx) error {
		if err := tx.SaveNotice(ctx, n, score, now); err != nil {
			return err
		}

		var err error
		d, err = qualify.Evaluate(ctx, cand, tx, e.limits(now), now)
		if err != nil {
			return err
		}

		rec := d.Record(now)
		if err := tx.RecordDecision(ctx, &rec); err != nil {
			return err
		}
		if !d.Accepted {
			return nil
		}

		c := &model.OutreachContact{
			NoticeID:         n.ID,
			CompanyName:      n.CompanyName,
			CompanyNumber:    n.CompanyNumber,
			NoticeCategory:   n.Category,
			Score:            score.Score,
			PractitionerName: primary.Name,
			Role:             primary.Role,
			Firm:             primary.Firm,
			Email:            d.Candidate.Email,
			Status:           model.StatusQueued,
			CreatedAt:        now,
			QueuedAt:         &now,
		}
		return tx.CreateContact(ctx, c)
	})
	if err != nil {
		return qualify.Decision{}, fmt.Errorf("qualify notice %s: %w", n.ID, err)
	}

	if d.Accepted {
		e.log.Info("contact queued",
			"notice_id", n.ID, "email", d.Candidate.Email, "score", score.Score, "category", score.Category)
	} else {
		e.log.Info("contact rejected",
			"notice_id", n.ID,
			"email", d.Candidate.Email,
			"gate", d.Rejection.Gate,
			"observed", d.Rejection.Observed,
			"threshold", d.Rejection.Threshold,
			"reason", d.Rejection.String(),
		)
	}
	return d, nil
}
