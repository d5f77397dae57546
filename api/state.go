package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/algorank/algorank-node/registry"
	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
)

// appState handles GET /apps/{appId}/state.
func (a *API) appState(w http.ResponseWriter, r *http.Request) {
	kv, err := a.registry.GlobalKeyValues()
	if err != nil {
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, &AppStateResponse{AppID: a.registry.AppID(), GlobalState: kv})
}

// accounts handles GET /apps/{appId}/accounts?next=<cursor>&limit=<n>.
func (a *API) accounts(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get(LimitQueryParam); s != "" {
		var err error
		if limit, err = strconv.Atoi(s); err != nil || limit < 0 {
			ErrMalformedParam.Withf("invalid limit %q", s).Write(w)
			return
		}
	}
	voters, next, err := a.registry.ListVoters(r.URL.Query().Get(NextQueryParam), limit)
	if errors.Is(err, registry.ErrInvalidCursor) {
		ErrMalformedParam.WithErr(err).Write(w)
		return
	} else if err != nil {
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	if voters == nil {
		voters = []common.Address{}
	}
	httpWriteJSON(w, &AccountsResponse{Accounts: voters, NextToken: next})
}

// account handles GET /apps/{appId}/accounts/{address}.
func (a *API) account(w http.ResponseWriter, r *http.Request) {
	addrStr := chi.URLParam(r, AddressURLParam)
	if !common.IsHexAddress(addrStr) {
		ErrMalformedAddress.With(addrStr).Write(w)
		return
	}
	addr := common.HexToAddress(addrStr)
	kv, registered, err := a.registry.LocalState(addr)
	if err != nil {
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, &AccountResponse{Address: addr, Registered: registered, LocalState: kv})
}
