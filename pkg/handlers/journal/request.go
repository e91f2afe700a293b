package journal

import (
	"context"
	"errors"

	"github.com/arqut/janus-plugin-go/pkg/jansson"
	"github.com/arqut/janus-plugin-go/pkg/janus/eventhandler"
	"github.com/arqut/janus-plugin-go/pkg/models"
	"github.com/arqut/janus-plugin-go/pkg/providers"
	"github.com/arqut/janus-plugin-go/pkg/storage/repositories"
)

// Error codes of handle_request replies
const (
	ErrorInvalidJSON    = 411
	ErrorUnknownRequest = 412
	ErrorInvalidElement = 413
	ErrorUnavailable    = 414
	ErrorUnknown        = 499
)

const defaultRecent = 10

var errNotRunning = errors.New("journal is not running")

type request struct {
	Request   string `json:"request"`
	Limit     int    `json:"limit"`
	Type      string `json:"type"`
	SessionID uint64 `json:"session_id"`
	Events    string `json:"events"`
}

type errorReply struct {
	ErrorCode int    `json:"error_code"`
	Error     string `json:"error"`
}

type statsReply struct {
	Result    string            `json:"result"`
	Instance  string            `json:"instance"`
	Events    string            `json:"events"`
	Services  []string          `json:"services"`
	Received  uint64            `json:"received"`
	Filtered  uint64            `json:"filtered"`
	Invalid   uint64            `json:"invalid"`
	Dropped   uint64            `json:"dropped"`
	Processed uint64            `json:"processed"`
	Failed    uint64            `json:"failed"`
	Queued    int               `json:"queued"`
	Counts    map[string]uint64 `json:"counts"`
	Stored    *int64            `json:"stored,omitempty"`
	Collector *collectorStats   `json:"collector,omitempty"`
}

type collectorStats struct {
	Connected bool   `json:"connected"`
	Forwarded uint64 `json:"forwarded"`
	Dropped   uint64 `json:"dropped"`
}

type recentReply struct {
	Result string          `json:"result"`
	Events []*models.Event `json:"events"`
}

type maskReply struct {
	Result string `json:"result"`
	Events string `json:"events"`
}

// HandleRequest answers Admin API requests: "stats" reports the counters,
// "recent" lists stored events and "mask" changes the subscribed types.
func (h *Handler) HandleRequest(v *jansson.Value) *jansson.Value {
	j := h.current.Load()
	if j == nil {
		return h.reply(errorReply{ErrorUnknown, errNotRunning.Error()})
	}

	var req request
	if err := v.Decode(&req); err != nil {
		return h.reply(errorReply{ErrorInvalidJSON, err.Error()})
	}

	ctx := context.Background()
	switch req.Request {
	case "stats":
		reply, err := j.stats(ctx)
		if err != nil {
			return h.reply(errorReply{ErrorUnknown, err.Error()})
		}
		return h.reply(reply)
	case "recent":
		return h.reply(j.recent(ctx, req))
	case "mask":
		mask, err := eventhandler.ParseMask(req.Events)
		if err != nil {
			return h.reply(errorReply{ErrorInvalidElement, err.Error()})
		}
		eventhandler.SetMask(mask)
		h.log.Info("Events mask changed to %s", mask)
		return h.reply(maskReply{"ok", mask.String()})
	case "":
		return h.reply(errorReply{ErrorInvalidElement, "missing request"})
	}
	return h.reply(errorReply{ErrorUnknownRequest, "unknown request " + req.Request})
}

func (j *journal) stats(ctx context.Context) (*statsReply, error) {
	reply := &statsReply{
		Result:    "ok",
		Instance:  j.cfg.InstanceID,
		Events:    eventhandler.CurrentMask().String(),
		Services:  j.registry.Names(),
		Received:  j.received.Load(),
		Filtered:  j.filtered.Load(),
		Invalid:   j.invalid.Load(),
		Dropped:   j.dropped.Load(),
		Processed: j.processed.Load(),
		Failed:    j.failed.Load(),
		Queued:    len(j.events),
	}

	stats, err := j.registry.GetAnalytics()
	if err != nil {
		return nil, err
	}
	metrics, err := stats.GetMetrics(ctx, providers.MetricsQuery{})
	if err != nil {
		return nil, err
	}
	reply.Counts = metrics.Data

	if querier, err := j.registry.GetQuerier(); err == nil {
		stored, err := querier.Count(ctx, models.EventFilter{})
		if err != nil {
			return nil, err
		}
		reply.Stored = &stored
	}
	if fwd, err := j.registry.GetIntegration(); err == nil {
		reply.Collector = &collectorStats{
			Connected: fwd.Connected(),
			Forwarded: fwd.Forwarded(),
			Dropped:   fwd.Dropped(),
		}
	}
	return reply, nil
}

func (j *journal) recent(ctx context.Context, req request) any {
	querier, err := j.registry.GetQuerier()
	if err != nil {
		return errorReply{ErrorUnavailable, "events are not stored"}
	}

	filter := models.EventFilter{SessionID: req.SessionID, Limit: defaultRecent}
	if req.Limit > 0 {
		filter.Limit = min(req.Limit, repositories.MaxListLimit)
	}
	if req.Type != "" {
		m, err := eventhandler.ParseType(req.Type)
		if err != nil {
			return errorReply{ErrorInvalidElement, err.Error()}
		}
		filter.Type = uint32(m)
	}

	events, err := querier.List(ctx, filter)
	if err != nil {
		return errorReply{ErrorUnknown, err.Error()}
	}
	if events == nil {
		events = []*models.Event{}
	}
	return recentReply{"ok", events}
}

func (h *Handler) reply(body any) *jansson.Value {
	v, err := jansson.FromGo(body)
	if err != nil {
		h.log.Err("handle_request: %v", err)
		return nil
	}
	return v
}
