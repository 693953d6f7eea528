package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/joint/internal/factory"
	"github.com/elys-network/joint/internal/joint"
	"github.com/elys-network/joint/internal/types"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
)

// maxBodyBytes bounds operation request bodies.
const maxBodyBytes = 1 << 16

type operationFunc func(ctx context.Context, j *joint.Joint, caller common.Address) (types.OperationReport, error)

// runOperation resolves the instance and caller, runs op and writes its report.
func (ws *WebServer) runOperation(w http.ResponseWriter, r *http.Request, op operationFunc) {
	j, _, err := ws.lookup(mux.Vars(r)["id"])
	if err != nil {
		ws.writeError(w, err)
		return
	}
	report, err := op(r.Context(), j, callerFrom(r))
	if err != nil {
		ws.writeError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, report)
}

// decodeBody decodes an optional JSON body into dst. An empty body leaves dst untouched.
func decodeBody(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %w", ErrBadRequestBody, err)
	}
	return nil
}

func parseAddress(field, raw string) (common.Address, error) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("%w: %s %q is not an address", ErrBadRequestBody, field, raw)
	}
	return common.HexToAddress(raw), nil
}

func parseOptionalAddress(field, raw string) (common.Address, error) {
	if raw == "" {
		return common.Address{}, nil
	}
	return parseAddress(field, raw)
}

func parseAmount(raw string) (sdkmath.Int, error) {
	amount, ok := sdkmath.NewIntFromString(raw)
	if !ok || !amount.IsPositive() {
		return sdkmath.Int{}, fmt.Errorf("%w: amount %q must be a positive integer", ErrBadRequestBody, raw)
	}
	return amount, nil
}

func (ws *WebServer) handleInvest(w http.ResponseWriter, r *http.Request) {
	ws.runOperation(w, r, func(ctx context.Context, j *joint.Joint, caller common.Address) (types.OperationReport, error) {
		return j.Invest(ctx, caller)
	})
}

type harvestRequest struct {
	ReturnFunds bool `json:"return_funds"`
}

func (ws *WebServer) handleHarvest(w http.ResponseWriter, r *http.Request) {
	var req harvestRequest
	if err := decodeBody(r, &req); err != nil {
		ws.writeError(w, err)
		return
	}
	ws.runOperation(w, r, func(ctx context.Context, j *joint.Joint, caller common.Address) (types.OperationReport, error) {
		return j.Harvest(ctx, caller, req.ReturnFunds)
	})
}

func (ws *WebServer) handleLiquidate(w http.ResponseWriter, r *http.Request) {
	ws.runOperation(w, r, func(ctx context.Context, j *joint.Joint, caller common.Address) (types.OperationReport, error) {
		return j.Liquidate(ctx, caller)
	})
}

func (ws *WebServer) handleReturnLoose(w http.ResponseWriter, r *http.Request) {
	ws.runOperation(w, r, func(ctx context.Context, j *joint.Joint, caller common.Address) (types.OperationReport, error) {
		return j.ReturnLooseToProviders(ctx, caller)
	})
}

// parametersRequest overrides the current parameters field by field.
type parametersRequest struct {
	HedgeBudgetBps    *uint32 `json:"hedge_budget_bps"`
	HedgeMoneynessBps *uint32 `json:"hedge_moneyness_bps"`
	HedgePeriod       string  `json:"hedge_period"`
	MinTimeToMaturity string  `json:"min_time_to_maturity"`
}

// overrides parses the request into a function applying it to a parameter set.
func (p parametersRequest) overrides() (func(*types.Parameters), error) {
	var period, minTTM time.Duration
	var err error
	if p.HedgePeriod != "" {
		if period, err = time.ParseDuration(p.HedgePeriod); err != nil {
			return nil, fmt.Errorf("%w: hedge_period: %w", ErrBadRequestBody, err)
		}
	}
	if p.MinTimeToMaturity != "" {
		if minTTM, err = time.ParseDuration(p.MinTimeToMaturity); err != nil {
			return nil, fmt.Errorf("%w: min_time_to_maturity: %w", ErrBadRequestBody, err)
		}
	}
	return func(params *types.Parameters) {
		if p.HedgeBudgetBps != nil {
			params.HedgeBudgetBps = *p.HedgeBudgetBps
		}
		if p.HedgeMoneynessBps != nil {
			params.HedgeMoneynessBps = *p.HedgeMoneynessBps
		}
		if p.HedgePeriod != "" {
			params.HedgePeriod = period
		}
		if p.MinTimeToMaturity != "" {
			params.MinTimeToMaturity = minTTM
		}
	}, nil
}

func (ws *WebServer) handleSetParameters(w http.ResponseWriter, r *http.Request) {
	var req parametersRequest
	if err := decodeBody(r, &req); err != nil {
		ws.writeError(w, err)
		return
	}
	mutate, err := req.overrides()
	if err != nil {
		ws.writeError(w, err)
		return
	}
	ws.runOperation(w, r, func(ctx context.Context, j *joint.Joint, caller common.Address) (types.OperationReport, error) {
		return j.UpdateParameters(ctx, caller, mutate)
	})
}

type providerRequest struct {
	Side     types.Side `json:"side"`
	Provider string     `json:"provider"`
}

func (ws *WebServer) handleSetProvider(w http.ResponseWriter, r *http.Request) {
	var req providerRequest
	if err := decodeBody(r, &req); err != nil {
		ws.writeError(w, err)
		return
	}
	provider, err := parseAddress("provider", req.Provider)
	if err != nil {
		ws.writeError(w, err)
		return
	}
	ws.runOperation(w, r, func(ctx context.Context, j *joint.Joint, caller common.Address) (types.OperationReport, error) {
		return j.SetProvider(ctx, caller, req.Side, provider)
	})
}

type sweepRequest struct {
	Token string `json:"token"`
}

func (ws *WebServer) handleSweep(w http.ResponseWriter, r *http.Request) {
	var req sweepRequest
	if err := decodeBody(r, &req); err != nil {
		ws.writeError(w, err)
		return
	}
	token, err := parseAddress("token", req.Token)
	if err != nil {
		ws.writeError(w, err)
		return
	}
	ws.runOperation(w, r, func(ctx context.Context, j *joint.Joint, caller common.Address) (types.OperationReport, error) {
		return j.Sweep(ctx, caller, token)
	})
}

type swapRequest struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

func (ws *WebServer) handleSwap(w http.ResponseWriter, r *http.Request) {
	var req swapRequest
	if err := decodeBody(r, &req); err != nil {
		ws.writeError(w, err)
		return
	}
	from, err := parseAddress("from", req.From)
	if err != nil {
		ws.writeError(w, err)
		return
	}
	to, err := parseAddress("to", req.To)
	if err != nil {
		ws.writeError(w, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		ws.writeError(w, err)
		return
	}
	ws.runOperation(w, r, func(ctx context.Context, j *joint.Joint, caller common.Address) (types.OperationReport, error) {
		return j.SwapTokenForToken(ctx, caller, from, to, amount)
	})
}

func (ws *WebServer) handleManualClaim(w http.ResponseWriter, r *http.Request) {
	ws.runOperation(w, r, func(ctx context.Context, j *joint.Joint, caller common.Address) (types.OperationReport, error) {
		return j.ClaimRewardsManually(ctx, caller)
	})
}

type amountRequest struct {
	Amount string `json:"amount"`
}

func (ws *WebServer) handleManualWithdraw(w http.ResponseWriter, r *http.Request) {
	ws.withAmount(w, r, func(ctx context.Context, j *joint.Joint, caller common.Address, amount sdkmath.Int) (types.OperationReport, error) {
		return j.WithdrawStakedManually(ctx, caller, amount)
	})
}

func (ws *WebServer) handleManualRemove(w http.ResponseWriter, r *http.Request) {
	ws.withAmount(w, r, func(ctx context.Context, j *joint.Joint, caller common.Address, amount sdkmath.Int) (types.OperationReport, error) {
		return j.RemoveLiquidityManually(ctx, caller, amount)
	})
}

func (ws *WebServer) withAmount(w http.ResponseWriter, r *http.Request, op func(context.Context, *joint.Joint, common.Address, sdkmath.Int) (types.OperationReport, error)) {
	var req amountRequest
	if err := decodeBody(r, &req); err != nil {
		ws.writeError(w, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		ws.writeError(w, err)
		return
	}
	ws.runOperation(w, r, func(ctx context.Context, j *joint.Joint, caller common.Address) (types.OperationReport, error) {
		return op(ctx, j, caller, amount)
	})
}

func (ws *WebServer) handleManualCloseHedge(w http.ResponseWriter, r *http.Request) {
	ws.runOperation(w, r, func(ctx context.Context, j *joint.Joint, caller common.Address) (types.OperationReport, error) {
		return j.CloseHedgeManually(ctx, caller)
	})
}

// cloneRequest derives a new instance from the one in the path. Empty addresses are inherited.
type cloneRequest struct {
	ID         string            `json:"id"`
	ProviderA  string            `json:"provider_a"`
	ProviderB  string            `json:"provider_b"`
	Pair       string            `json:"pair"`
	Router     string            `json:"router"`
	MasterChef string            `json:"masterchef"`
	PoolID     *uint64           `json:"pool_id"`
	Reward     string            `json:"reward"`
	Hedger     string            `json:"hedger"`
	Self       string            `json:"self"`
	Params     parametersRequest `json:"params"`
}

func (c cloneRequest) spec() (factory.Spec, error) {
	spec := factory.Spec{ID: c.ID, PoolID: c.PoolID}
	fields := []struct {
		name   string
		raw    string
		target *common.Address
	}{
		{"provider_a", c.ProviderA, &spec.ProviderA},
		{"provider_b", c.ProviderB, &spec.ProviderB},
		{"pair", c.Pair, &spec.Pair},
		{"router", c.Router, &spec.Router},
		{"masterchef", c.MasterChef, &spec.MasterChef},
		{"reward", c.Reward, &spec.Reward},
		{"hedger", c.Hedger, &spec.Hedger},
		{"self", c.Self, &spec.Self},
	}
	for _, f := range fields {
		addr, err := parseOptionalAddress(f.name, f.raw)
		if err != nil {
			return factory.Spec{}, err
		}
		*f.target = addr
	}
	return spec, nil
}

// handleClone clones the instance in the path and initializes the clone with the
// prototype's parameters, overridden by the request.
func (ws *WebServer) handleClone(w http.ResponseWriter, r *http.Request) {
	if ws.factory == nil {
		ws.writeErrorResponse(w, http.StatusNotImplemented, "cloning is not enabled")
		return
	}
	prototype, _, err := ws.lookup(mux.Vars(r)["id"])
	if err != nil {
		ws.writeError(w, err)
		return
	}
	var req cloneRequest
	if err := decodeBody(r, &req); err != nil {
		ws.writeError(w, err)
		return
	}
	spec, err := req.spec()
	if err != nil {
		ws.writeError(w, err)
		return
	}

	ctx := r.Context()
	if err := prototype.Access().OnlyAuthorized(ctx, callerFrom(r)); err != nil {
		ws.writeError(w, err)
		return
	}
	ledger, err := prototype.Ledger(ctx)
	if err != nil {
		ws.writeError(w, err)
		return
	}
	mutate, err := req.Params.overrides()
	if err != nil {
		ws.writeError(w, err)
		return
	}
	params := ledger.Params
	mutate(&params)
	inst, err := ws.factory.Clone(ctx, prototype.Instance(), spec)
	if err != nil {
		ws.writeError(w, err)
		return
	}
	clone, err := ws.factory.Initialize(ctx, inst, params)
	if err != nil {
		ws.writeError(w, err)
		return
	}
	ws.Register(clone)
	if ws.onClone != nil {
		if err := ws.onClone(clone); err != nil {
			webLogger.Warn().Err(err).Str("clone", clone.ID()).Msg("Clone hook failed")
		}
	}

	webLogger.Info().
		Str("prototype", prototype.ID()).
		Str("clone", clone.ID()).
		Str("caller", callerFrom(r).Hex()).
		Msg("Instance cloned")

	v, err := ws.view(r, clone)
	if err != nil {
		ws.writeError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusCreated, v)
}
