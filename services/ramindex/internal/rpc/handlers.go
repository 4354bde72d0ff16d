package rpc

import (
	"math"
	"net/http"

	"github.com/greymass/ramindex/libraries/chain"
	"github.com/greymass/ramindex/libraries/encoding"
	"github.com/greymass/ramindex/libraries/querytrace"
	"github.com/greymass/ramindex/libraries/server"
	"github.com/greymass/ramindex/services/ramindex/internal/apierr"
	"github.com/greymass/ramindex/services/ramindex/internal/ledger"
	"github.com/greymass/ramindex/services/ramindex/internal/query"
)

const defaultSnapshotLimit = 100

func requestParams(r *http.Request) (map[string]any, error) {
	params, err := server.GetRequestParams(r)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindBadRequest, err, "invalid request body")
	}
	return params, nil
}

// int32Param returns nil when key is absent.
func int32Param(params map[string]any, key string) (*int32, error) {
	raw, ok := params[key]
	if !ok || raw == nil {
		return nil, nil
	}
	v, ok := encoding.MaybeGetInt64(raw)
	if !ok || v < math.MinInt32 || v > math.MaxInt32 {
		return nil, apierr.New(apierr.KindBadRequest, "%s must be a 32-bit integer", key)
	}
	n := int32(v)
	return &n, nil
}

func boolParam(params map[string]any, key string) bool {
	switch v := params[key].(type) {
	case bool:
		return v
	case string:
		return v == "true" || v == "1"
	}
	return false
}

// rangeParams reads the optional pos and offset parameters.
func rangeParams(params map[string]any) (pos, offset *int32, err error) {
	if pos, err = int32Param(params, "pos"); err != nil {
		return nil, nil, err
	}
	if offset, err = int32Param(params, "offset"); err != nil {
		return nil, nil, err
	}
	return pos, offset, nil
}

func (s *Server) tracer(params map[string]any, name string, r *http.Request) (*querytrace.Tracer, bool) {
	clientTrace := boolParam(params, "trace") && querytrace.IsClientTraceAllowed()
	if s.cfg.QueryTrace || clientTrace {
		return querytrace.New(name, r.URL.RawQuery), clientTrace
	}
	return &querytrace.Tracer{}, false
}

func (s *Server) writeHistory(w http.ResponseWriter, result query.GetActionsResult, tracer *querytrace.Tracer, clientTrace bool) {
	tracer.Log()
	v := result.ToVariant()
	if clientTrace {
		v["query_trace"] = tracer.Output()
	}
	writeJSON(w, v)
}

func (s *Server) handleGetActions(w http.ResponseWriter, r *http.Request) {
	params, err := requestParams(r)
	if err != nil {
		writeError(w, err)
		return
	}
	pos, offset, err := rangeParams(params)
	if err != nil {
		writeError(w, err)
		return
	}

	tracer, clientTrace := s.tracer(params, "get_actions", r)
	result, err := s.history.GetActions(r.Context(), pos, offset, tracer)
	if err != nil {
		writeError(w, err)
		return
	}
	s.writeHistory(w, result, tracer, clientTrace)
}

func (s *Server) handleGetAccountActions(w http.ResponseWriter, r *http.Request) {
	params, err := requestParams(r)
	if err != nil {
		writeError(w, err)
		return
	}
	raw, ok := encoding.MaybeGetString(params["account"])
	if !ok || raw == "" {
		writeError(w, apierr.New(apierr.KindBadRequest, "account is required"))
		return
	}
	account, err := chain.ParseName(raw)
	if err != nil {
		writeError(w, apierr.Wrap(apierr.KindBadRequest, err, "invalid account %q", raw))
		return
	}
	pos, offset, err := rangeParams(params)
	if err != nil {
		writeError(w, err)
		return
	}

	tracer, clientTrace := s.tracer(params, "get_account_actions", r)
	result, err := s.history.GetAccountActions(r.Context(), account, pos, offset, tracer)
	if err != nil {
		writeError(w, err)
		return
	}
	s.writeHistory(w, result, tracer, clientTrace)
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	params, err := requestParams(r)
	if err != nil {
		writeError(w, err)
		return
	}
	raw, ok := encoding.MaybeGetString(params["from"])
	if !ok || raw == "" {
		writeError(w, apierr.New(apierr.KindBadRequest, "from is required, e.g. \"200.0000 ENU\""))
		return
	}
	from, err := chain.ParseAsset(raw)
	if err != nil {
		writeError(w, apierr.Wrap(apierr.KindBadRequest, err, "invalid asset %q", raw))
		return
	}

	result, err := s.evaluator.Evaluate(r.Context(), from)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, result.ToVariant())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	props := s.ledger.Properties()
	v := map[string]any{
		"status":      "ok",
		"ledger_size": props.Size,
		"last_block":  props.LastBlock,
	}
	if s.feed != nil {
		v["feed"] = s.feed.Status()
	}
	writeJSON(w, v)
}

func (s *Server) handleDebugSnapshot(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	snapshots := []map[string]any{}

	if account := q.Get("account"); account != "" {
		name, err := chain.ParseName(account)
		if err != nil {
			writeError(w, apierr.Wrap(apierr.KindBadRequest, err, "invalid account"))
			return
		}
		snap, ok, err := s.ledger.Snapshot(name)
		if err != nil {
			writeError(w, err)
			return
		}
		if ok {
			snapshots = append(snapshots, snap.ToVariant())
		}
		writeJSON(w, map[string]any{"snapshots": snapshots})
		return
	}

	limit := defaultSnapshotLimit
	if raw := q.Get("limit"); raw != "" {
		n, ok := encoding.MaybeGetInt64(raw)
		if !ok || n < 1 {
			writeError(w, apierr.New(apierr.KindBadRequest, "limit must be a positive integer"))
			return
		}
		limit = int(n)
	}
	err := s.ledger.Snapshots(func(snap ledger.Snapshot) bool {
		snapshots = append(snapshots, snap.ToVariant())
		return len(snapshots) < limit
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"snapshots": snapshots})
}

func (s *Server) handleDebugProperties(w http.ResponseWriter, r *http.Request) {
	props := s.ledger.Properties()
	writeJSON(w, map[string]any{
		"size":       props.Size,
		"feed_seq":   props.FeedSeq,
		"last_block": props.LastBlock,
	})
}
