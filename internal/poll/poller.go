// Package poll ties the fetch, detect, transition and notify layers into
// the single end-to-end check the scheduler drives per item (§4.1-§4.8).
package poll

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"stockwatch/internal/clock"
	"stockwatch/internal/config"
	"stockwatch/internal/detect"
	"stockwatch/internal/fetch"
	"stockwatch/internal/logger"
	"stockwatch/internal/model"
	"stockwatch/internal/notify"
	"stockwatch/internal/pubsub"
	"stockwatch/internal/store"
	"stockwatch/internal/transition"
)

// statusError carries a pre-classified ErrorKind for a check that failed
// without a Go transport error (an HTTP 403/429/503/5xx response body).
// RetryPolicy's classify callback unwraps it before falling back to
// fetch.ClassifyError.
type statusError struct {
	kind       model.ErrorKind
	statusCode int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("poll: http status %d classified as %s", e.statusCode, e.kind)
}

// ClassifyPollError extracts the ErrorKind a poll error represents, for
// RetryPolicy's classify callback.
func ClassifyPollError(err error) model.ErrorKind {
	if se, ok := err.(*statusError); ok {
		return se.kind
	}
	return fetch.ClassifyError(err, 0)
}

// Poller implements schedule.Poller: one fetch+detect+fuse+evaluate+record
// cycle per item.
type Poller struct {
	httpClient *fetch.HTTPClient
	browsers   *fetch.BrowserPool // nil when rendering is disabled
	store      *store.Store
	evaluator  *transition.Evaluator
	notifier   *notify.Manager
	events     pubsub.PubSub // nil disables published ItemEvent/TransitionEvent
	clock      clock.Clock
	cfg        config.Config
}

func New(httpClient *fetch.HTTPClient, browsers *fetch.BrowserPool, s *store.Store, evaluator *transition.Evaluator, notifier *notify.Manager, events pubsub.PubSub, clk clock.Clock, cfg config.Config) *Poller {
	return &Poller{
		httpClient: httpClient,
		browsers:   browsers,
		store:      s,
		evaluator:  evaluator,
		notifier:   notifier,
		events:     events,
		clock:      clk,
		cfg:        cfg,
	}
}

// publishItemEvent announces a completed check on the item's topic.
// Best-effort: a publish failure never fails the poll itself.
func (p *Poller) publishItemEvent(ctx context.Context, itemID string, verdict model.Status, confidence float64, errKind model.ErrorKind, at time.Time) {
	if p.events == nil {
		return
	}
	evt := pubsub.ItemEvent{
		ItemID:     itemID,
		Verdict:    string(verdict),
		Confidence: confidence,
		Timestamp:  at,
	}
	if errKind != model.ErrorKindNone {
		evt.ErrorKind = string(errKind)
	}
	if err := pubsub.PublishItemEvent(ctx, p.events, evt); err != nil {
		logger.GetLogger(ctx).Warn("poll: publish item event failed", zap.Error(err))
	}
}

// publishTransitionEvent announces a committed status transition on the
// item's transition topic and its owner's org-wide topic.
func (p *Poller) publishTransitionEvent(ctx context.Context, item model.Item, decision transition.Decision, confidence float64, at time.Time) {
	if p.events == nil {
		return
	}
	evt := pubsub.TransitionEvent{
		ItemID:     item.ItemID.String(),
		FromStatus: string(decision.FromStatus),
		ToStatus:   string(decision.ToStatus),
		Confidence: confidence,
		Timestamp:  at,
	}
	if err := pubsub.PublishTransitionEvent(ctx, p.events, evt, item.OwnerID); err != nil {
		logger.GetLogger(ctx).Warn("poll: publish transition event failed", zap.Error(err))
	}
}

// Poll runs one check for item (§4.1). It always records a check_history
// row, even on a classified failure, so the error-threshold rule in §4.7
// has an accurate consecutive_error_count to evaluate against.
func (p *Poller) Poll(ctx context.Context, item model.Item) error {
	log := logger.GetLogger(ctx)
	checkTime := p.clock.Now().UTC()

	result, pollErr := p.httpClient.Fetch(ctx, item.URL)
	if pollErr == nil && isBlockedOrServerError(result.StatusCode) {
		pollErr = &statusError{kind: fetch.ClassifyError(nil, result.StatusCode), statusCode: result.StatusCode}
	}

	if pollErr != nil {
		kind := ClassifyPollError(pollErr)
		if err := p.recordError(ctx, item, checkTime, kind, pollErr); err != nil {
			log.Error("poll: failed to record error check", zap.Error(err), zap.String("item_id", item.ItemID.String()))
		}
		return pollErr
	}

	rendered := []byte(nil)
	if p.cfg.EnableRender && p.browsers != nil && fetch.EligibleForRender(item.LastStatus, item.ConsecutiveErrorCount) {
		renderResult, err := p.browsers.Render(ctx, item.URL)
		if err != nil {
			log.Warn("poll: render fallback skipped", zap.Error(err), zap.String("item_id", item.ItemID.String()))
		} else {
			rendered = renderResult.Body
		}
	}

	endpoint := item.APIProbeEndpoint
	if endpoint == "" {
		endpoint = detect.DiscoverEndpoint(result.Body)
		if endpoint != "" {
			if err := p.store.SetItemAPIProbeEndpoint(ctx, item.ItemID, endpoint); err != nil {
				log.Warn("poll: failed to memoise api probe endpoint", zap.Error(err))
			}
		}
	}

	in := detect.Input{
		URL:                 item.URL,
		RawBody:             result.Body,
		RenderedBody:        rendered,
		PreviousFingerprint: item.FingerprintHash,
		APIProbeEndpoint:    endpoint,
		HTTPDo: func(ctx context.Context, method, endpoint string) (int, []byte, error) {
			return p.probeDo(ctx, item.URL, endpoint)
		},
	}

	results := detect.RunAll(ctx, in, p.cfg.DetectorTimeout)
	weights := detect.Weights{
		Keyword:     p.cfg.DetectorWeights.Keyword,
		Dom:         p.cfg.DetectorWeights.Dom,
		APIProbe:    p.cfg.DetectorWeights.APIProbe,
		Fingerprint: p.cfg.DetectorWeights.Fingerprint,
	}
	fused := detect.Fuse(results, weights, p.cfg.ConfidenceThreshold)
	fingerprintHash := detect.ComputeFingerprint(result.Body, rendered)

	rec := model.CheckRecord{
		CheckID:            uuid.New(),
		ItemID:             item.ItemID,
		CheckTime:          checkTime,
		Verdict:            fused.Verdict,
		Confidence:         fused.Confidence,
		PerDetectorResults: results,
		HTTPStatus:         result.StatusCode,
		LatencyMS:          result.LatencyMS,
		ErrorKind:          model.ErrorKindNone,
		FingerprintHash:    fingerprintHash,
	}
	if err := p.store.RecordCheck(ctx, rec); err != nil {
		return fmt.Errorf("poll: record check: %w", err)
	}
	p.publishItemEvent(ctx, item.ItemID.String(), fused.Verdict, fused.Confidence, model.ErrorKindNone, checkTime)

	decision := p.evaluator.Evaluate(item.ItemID, item.LastStatus, 0, fused.Verdict, fused.Confidence)
	if decision.Transitioned {
		if err := p.store.UpdateItemAfterCheck(ctx, item.ItemID, checkTime, decision.ToStatus, fused.Confidence, 0, fingerprintHash); err != nil {
			return fmt.Errorf("poll: commit transition: %w", err)
		}
		p.publishTransitionEvent(ctx, item, decision, fused.Confidence, checkTime)
		p.notifier.Enqueue(model.PendingEvent{
			ItemID:     item.ItemID,
			DetectedAt: checkTime,
			FromStatus: decision.FromStatus,
			ToStatus:   decision.ToStatus,
			Confidence: fused.Confidence,
			Kind:       decision.Kind,
		})
		if decision.Kind == model.KindAdminHealth {
			if err := p.notifier.NotifyAdminHealth(ctx, item, item.ConsecutiveErrorCount); err != nil {
				log.Warn("poll: admin health notification failed", zap.Error(err))
			}
		}
	}

	log.Info("poll: check completed",
		zap.String("item_id", item.ItemID.String()),
		zap.String("verdict", string(fused.Verdict)),
		zap.Float64("confidence", fused.Confidence))
	return nil
}

// recordError persists a failed check (no detector run), and escalates to
// admin_health once the item's consecutive error streak clears the
// configured threshold (§4.6, §4.7).
func (p *Poller) recordError(ctx context.Context, item model.Item, checkTime time.Time, kind model.ErrorKind, pollErr error) error {
	rec := model.CheckRecord{
		CheckID:      uuid.New(),
		ItemID:       item.ItemID,
		CheckTime:    checkTime,
		Verdict:      model.StatusError,
		ErrorKind:    kind,
		ErrorMessage: pollErr.Error(),
	}
	if err := p.store.RecordCheck(ctx, rec); err != nil {
		return err
	}
	p.publishItemEvent(ctx, item.ItemID.String(), model.StatusError, 0, kind, checkTime)

	consecutiveErrors := item.ConsecutiveErrorCount + 1
	decision := p.evaluator.Evaluate(item.ItemID, item.LastStatus, consecutiveErrors, model.StatusError, 0)
	if decision.Transitioned && decision.Kind == model.KindAdminHealth {
		if err := p.store.UpdateItemAfterCheck(ctx, item.ItemID, checkTime, decision.ToStatus, 0, consecutiveErrors, item.FingerprintHash); err != nil {
			return fmt.Errorf("poll: commit transition: %w", err)
		}
		p.publishTransitionEvent(ctx, item, decision, 0, checkTime)
		if err := p.notifier.NotifyAdminHealth(ctx, item, consecutiveErrors); err != nil {
			return fmt.Errorf("poll: admin health notification: %w", err)
		}
	}
	return nil
}

// probeDo backs the HTTPDo callback detect.Input needs for the D3 probe: a
// GET against a memoised or newly-discovered endpoint, resolved against the
// item's origin.
func (p *Poller) probeDo(ctx context.Context, origin, endpoint string) (int, []byte, error) {
	target := endpoint
	if base, err := url.Parse(origin); err == nil {
		if ref, err := url.Parse(endpoint); err == nil {
			target = base.ResolveReference(ref).String()
		}
	}
	result, err := p.httpClient.Fetch(ctx, target)
	if err != nil {
		return 0, nil, err
	}
	return result.StatusCode, result.Body, nil
}

func isBlockedOrServerError(statusCode int) bool {
	return statusCode == http.StatusForbidden || statusCode == http.StatusTooManyRequests ||
		statusCode == http.StatusServiceUnavailable || statusCode >= 500
}
