package web

import (
	"fmt"
	"net/http"
	"runtime"
	"strconv"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/joint/internal/joint"
	"github.com/elys-network/joint/internal/types"
	"github.com/elys-network/joint/internal/utils"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
)

// displayPlaces is the number of decimals used for human-readable amounts.
const displayPlaces = 6

// instanceView is an instance with its lifecycle state.
type instanceView struct {
	ID       string               `json:"id"`
	Name     string               `json:"name"`
	State    types.LifecycleState `json:"state"`
	Cycle    uint64               `json:"cycle"`
	Instance types.Instance       `json:"instance"`
}

// amountView is an integer amount next to its token-unit rendering.
type amountView struct {
	Raw    sdkmath.Int     `json:"raw"`
	Amount decimal.Decimal `json:"amount"`
	Symbol string          `json:"symbol"`
}

func newAmountView(raw sdkmath.Int, leg types.Leg) amountView {
	v := amountView{Raw: raw, Symbol: leg.Symbol}
	if d, err := utils.ToDecimal(raw, int(leg.Decimals)); err == nil {
		v.Amount = d.Round(displayPlaces)
	}
	return v
}

// handleHealth reports process and store health
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	dbHealthy := true
	if err := ws.store.Ping(r.Context()); err != nil {
		webLogger.Warn().Err(err).Msg("Store ping failed")
		dbHealthy = false
	}

	overallStatus := "OK"
	statusCode := http.StatusOK
	if !dbHealthy {
		overallStatus = "DEGRADED"
		statusCode = http.StatusServiceUnavailable
	}

	ws.mu.RLock()
	instances := len(ws.joints)
	ws.mu.RUnlock()

	response := map[string]interface{}{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"system": map[string]interface{}{
			"version":          runtime.Version(),
			"goroutines_count": runtime.NumGoroutine(),
			"alloc_bytes":      memStats.Alloc,
			"gc_cycles":        memStats.NumGC,
		},
		"joint_status": map[string]interface{}{
			"database_healthy": dbHealthy,
			"instances":        instances,
		},
	}
	ws.writeJSONResponse(w, statusCode, response)
}

func (ws *WebServer) view(r *http.Request, j *joint.Joint) (instanceView, error) {
	ledger, err := j.Ledger(r.Context())
	if err != nil {
		return instanceView{}, err
	}
	return instanceView{
		ID:       j.ID(),
		Name:     j.Name(),
		State:    ledger.State(),
		Cycle:    ledger.Cycle,
		Instance: j.Instance(),
	}, nil
}

func (ws *WebServer) handleListInstances(w http.ResponseWriter, r *http.Request) {
	joints := ws.sortedJoints()
	views := make([]instanceView, 0, len(joints))
	for _, j := range joints {
		v, err := ws.view(r, j)
		if err != nil {
			ws.writeError(w, err)
			return
		}
		views = append(views, v)
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"instances": views,
		"count":     len(views),
	})
}

func (ws *WebServer) handleGetInstance(w http.ResponseWriter, r *http.Request) {
	j, _, err := ws.lookup(mux.Vars(r)["id"])
	if err != nil {
		ws.writeError(w, err)
		return
	}
	v, err := ws.view(r, j)
	if err != nil {
		ws.writeError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, v)
}

func (ws *WebServer) handleGetLedger(w http.ResponseWriter, r *http.Request) {
	j, _, err := ws.lookup(mux.Vars(r)["id"])
	if err != nil {
		ws.writeError(w, err)
		return
	}
	ledger, err := j.Ledger(r.Context())
	if err != nil {
		ws.writeError(w, err)
		return
	}
	inst := j.Instance()
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"ledger":        ledger,
		"state":         ledger.State(),
		"contributed_a": newAmountView(ledger.ContributedA, inst.LegA),
		"contributed_b": newAmountView(ledger.ContributedB, inst.LegB),
	})
}

// handleGetProjection returns what a harvest returning funds would pay now. With ?token=
// the total is also expressed in that leg.
func (ws *WebServer) handleGetProjection(w http.ResponseWriter, r *http.Request) {
	j, projector, err := ws.lookup(mux.Vars(r)["id"])
	if err != nil {
		ws.writeError(w, err)
		return
	}
	proj, err := projector.ProjectedAssets(r.Context())
	if err != nil {
		ws.writeError(w, err)
		return
	}
	inst := j.Instance()
	response := map[string]interface{}{
		"projection": proj,
		"amount_a":   newAmountView(proj.AmountA, inst.LegA),
		"amount_b":   newAmountView(proj.AmountB, inst.LegB),
	}

	if raw := r.URL.Query().Get("token"); raw != "" {
		if !common.IsHexAddress(raw) {
			ws.writeError(w, fmt.Errorf("%w: token %q is not an address", ErrBadRequestBody, raw))
			return
		}
		token := common.HexToAddress(raw)
		total, err := projector.ProjectedAssetsInToken(r.Context(), token)
		if err != nil {
			ws.writeError(w, err)
			return
		}
		leg, _ := inst.Leg(inst.SideOf(token))
		response["total"] = newAmountView(total, leg)
	}
	ws.writeJSONResponse(w, http.StatusOK, response)
}

func (ws *WebServer) handleGetReports(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, _, err := ws.lookup(id); err != nil {
		ws.writeError(w, err)
		return
	}
	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 && parsedLimit <= 100 {
			limit = parsedLimit
		}
	}

	reports, err := ws.store.RecentReports(r.Context(), id, limit)
	if err != nil {
		ws.writeError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"reports": reports,
		"count":   len(reports),
		"limit":   limit,
	})
}

func (ws *WebServer) handleGetSummary(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, _, err := ws.lookup(id); err != nil {
		ws.writeError(w, err)
		return
	}
	summary, err := ws.store.Summary(r.Context(), id)
	if err != nil {
		ws.writeError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, summary)
}
