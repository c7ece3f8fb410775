// Ledger API Handlers
//
// HTTP endpoints for event ingest, report generation, and proof-bundle
// assembly, following the same plain http.ServeMux + manual path-segment
// parsing the teacher's batch/proof handlers use (no router dependency).

package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/trackrecord/ledger/pkg/bundle"
	"github.com/trackrecord/ledger/pkg/chain"
	"github.com/trackrecord/ledger/pkg/database"
	"github.com/trackrecord/ledger/pkg/event"
	"github.com/trackrecord/ledger/pkg/logging"
	"github.com/trackrecord/ledger/pkg/manifest"
	"github.com/trackrecord/ledger/pkg/report"
	"github.com/trackrecord/ledger/pkg/state"
)

// LedgerHandlers provides HTTP handlers for event ingest, report
// generation, and proof-bundle assembly.
type LedgerHandlers struct {
	ingest         *state.Service
	repos          *database.Repositories
	db             *database.Client
	signer         *manifest.ManifestSigner
	trustedKeys    *manifest.TrustedKeyRegistry
	instanceTokens map[string]string // instanceId -> bearer token required on ingest
	logger         *logging.Logger
	metrics        *PrometheusMetrics
}

// SetMetrics attaches a PrometheusMetrics instance for ingest accounting. A
// handler with no metrics attached skips recording (nil-safe).
func (h *LedgerHandlers) SetMetrics(m *PrometheusMetrics) {
	h.metrics = m
}

// NewLedgerHandlers creates ledger API handlers. instanceTokens may be
// nil or empty, in which case the ingest endpoint performs no bearer
// check (useful for local/dev deployments).
func NewLedgerHandlers(ingest *state.Service, repos *database.Repositories, db *database.Client, signer *manifest.ManifestSigner, trustedKeys *manifest.TrustedKeyRegistry, instanceTokens map[string]string, logger *logging.Logger) *LedgerHandlers {
	return &LedgerHandlers{
		ingest:         ingest,
		repos:          repos,
		db:             db,
		signer:         signer,
		trustedKeys:    trustedKeys,
		instanceTokens: instanceTokens,
		logger:         logger,
	}
}

// ingestRequest is the wire shape of §6's ingest endpoint body.
type ingestRequest struct {
	EventType event.Type      `json:"eventType"`
	SeqNo     uint64          `json:"seqNo"`
	PrevHash  string          `json:"prevHash"`
	EventHash string          `json:"eventHash"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// HandleIngest handles POST /api/instances/{instanceId}/events, per §6's
// status-code table: 201 on append, 200 on idempotent replay, 409 on a
// chain/conflict error, 400 on a schema error, 401 on a bearer mismatch.
func (h *LedgerHandlers) HandleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeLedgerError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	instanceID, ok := pathSegment(r.URL.Path, "/api/instances/", "/events")
	if !ok {
		writeLedgerError(w, http.StatusBadRequest, "instance id required")
		return
	}

	if !h.authorized(r, instanceID) {
		writeLedgerError(w, http.StatusUnauthorized, "bearer credential does not match instance")
		return
	}

	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeLedgerError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	e := event.Event{
		InstanceID: instanceID,
		SeqNo:      req.SeqNo,
		EventType:  req.EventType,
		PrevHash:   req.PrevHash,
		EventHash:  req.EventHash,
		Timestamp:  req.Timestamp,
		Payload:    req.Payload,
	}

	outcome, err := h.ingest.Ingest(r.Context(), h.db, instanceID, e)
	if err != nil {
		h.logger.WithComponent("ingest").WithInstance(instanceID).WithError(err).Warn("ingest rejected")
		if h.metrics != nil {
			h.metrics.ObserveIngest(instanceID, string(req.EventType), false)
		}
		writeLedgerError(w, ingestErrorStatus(err), err.Error())
		return
	}
	if h.metrics != nil {
		h.metrics.ObserveIngest(instanceID, string(req.EventType), true)
	}

	status := http.StatusCreated
	if outcome == state.IdempotentReplay {
		status = http.StatusOK
	}
	writeLedgerJSON(w, status, map[string]interface{}{"seqNo": e.SeqNo, "eventHash": e.EventHash})
}

// ingestErrorStatus maps an Ingest error to §6's response code table.
func ingestErrorStatus(err error) int {
	switch {
	case errors.Is(err, database.ErrSeqGap),
		errors.Is(err, database.ErrPrevHashMismatch),
		errors.Is(err, chain.ErrSeqGap),
		errors.Is(err, chain.ErrPrevHashMismatch),
		errors.Is(err, chain.ErrEventHashMismatch),
		errors.Is(err, database.ErrConflictingEvent):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

// HandleReport handles GET /api/report?instance=&from=&to=, returning the
// InvestorReport of §4.J.
func (h *LedgerHandlers) HandleReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeLedgerError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	instanceID, from, to, err := parseRangeQuery(r)
	if err != nil {
		writeLedgerError(w, http.StatusBadRequest, err.Error())
		return
	}

	events, err := h.repos.Events.ListEvents(r.Context(), instanceID, from, to)
	if err != nil {
		writeLedgerError(w, http.StatusInternalServerError, "failed to load events: "+err.Error())
		return
	}

	rpt, genErr := report.Generate(events, instanceID, h.signer, nowUnix())
	if genErr != nil {
		writeLedgerError(w, http.StatusInternalServerError, "failed to generate report: "+genErr.Error())
		return
	}
	writeLedgerJSON(w, http.StatusOK, rpt)
}

// HandleBundle handles GET /api/bundle?instance=&from=&to=, returning the
// ProofBundle of §4.K with its own verification embedded.
func (h *LedgerHandlers) HandleBundle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeLedgerError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	instanceID, from, to, err := parseRangeQuery(r)
	if err != nil {
		writeLedgerError(w, http.StatusBadRequest, err.Error())
		return
	}

	events, err := h.repos.Events.ListEvents(r.Context(), instanceID, from, to)
	if err != nil {
		writeLedgerError(w, http.StatusInternalServerError, "failed to load events: "+err.Error())
		return
	}

	toSeqNo := to
	if toSeqNo == 0 && len(events) > 0 {
		toSeqNo = events[len(events)-1].SeqNo
	}
	dbCheckpoints, err := h.repos.Checkpoints.ListCheckpoints(r.Context(), instanceID)
	if err != nil {
		writeLedgerError(w, http.StatusInternalServerError, "failed to load checkpoints: "+err.Error())
		return
	}
	checkpoints := make([]bundle.Checkpoint, 0, len(dbCheckpoints))
	for _, cp := range dbCheckpoints {
		if cp.SeqNo < from || (toSeqNo > 0 && cp.SeqNo > toSeqNo) {
			continue
		}
		checkpoints = append(checkpoints, bundle.Checkpoint{
			SeqNo: cp.SeqNo, Balance: cp.Balance, Equity: cp.Equity, HighWaterMark: cp.HighWaterMark,
		})
	}

	commitments, err := h.repos.Commitments.ListCommitments(r.Context(), instanceID)
	if err != nil {
		writeLedgerError(w, http.StatusInternalServerError, "failed to load commitments: "+err.Error())
		return
	}
	filteredCommitments := commitments[:0:0]
	for _, c := range commitments {
		if c.SeqNo < from || (toSeqNo > 0 && c.SeqNo > toSeqNo) {
			continue
		}
		filteredCommitments = append(filteredCommitments, c)
	}

	b, err := bundle.Assemble(bundle.Input{
		InstanceID:  instanceID,
		Events:      events,
		Checkpoints: checkpoints,
		Commitments: filteredCommitments,
		Signer:      h.signer,
		TrustedKeys: h.trustedKeys,
		GeneratedAt: nowUnix(),
	})
	if err != nil {
		writeLedgerError(w, http.StatusInternalServerError, "failed to assemble bundle: "+err.Error())
		return
	}
	writeLedgerJSON(w, http.StatusOK, b)
}

// authorized reports whether r carries the bearer token configured for
// instanceID. A handler with no configured tokens map allows all
// requests (dev/local mode).
func (h *LedgerHandlers) authorized(r *http.Request, instanceID string) bool {
	if len(h.instanceTokens) == 0 {
		return true
	}
	want, ok := h.instanceTokens[instanceID]
	if !ok {
		return false
	}
	got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	return got != "" && got == want
}

func parseRangeQuery(r *http.Request) (instanceID string, from, to uint64, err error) {
	instanceID = r.URL.Query().Get("instance")
	if instanceID == "" {
		return "", 0, 0, errors.New("instance query parameter required")
	}
	if fromParam := r.URL.Query().Get("from"); fromParam != "" {
		from, err = strconv.ParseUint(fromParam, 10, 64)
		if err != nil {
			return "", 0, 0, errors.New("invalid from parameter")
		}
	}
	if toParam := r.URL.Query().Get("to"); toParam != "" {
		to, err = strconv.ParseUint(toParam, 10, 64)
		if err != nil {
			return "", 0, 0, errors.New("invalid to parameter")
		}
	}
	return instanceID, from, to, nil
}

// pathSegment extracts the id between prefix and suffix in path, e.g.
// pathSegment("/api/instances/abc/events", "/api/instances/", "/events")
// returns ("abc", true).
func pathSegment(path, prefix, suffix string) (string, bool) {
	if !strings.HasPrefix(path, prefix) {
		return "", false
	}
	rest := strings.TrimPrefix(path, prefix)
	id := strings.TrimSuffix(rest, suffix)
	if id == "" || id == rest && suffix != "" {
		return "", false
	}
	return id, true
}

func writeLedgerJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeLedgerError(w http.ResponseWriter, status int, message string) {
	writeLedgerJSON(w, status, map[string]string{"error": message})
}

func nowUnix() int64 {
	return time.Now().Unix()
}
