package api

import (
	"github.com/algorank/algorank-node/types"
	"github.com/ethereum/go-ethereum/common"
)

// AccountsResponse is a page of registered accounts. NextToken is empty on
// the last page.
type AccountsResponse struct {
	Accounts  []common.Address `json:"accounts"`
	NextToken string           `json:"nextToken,omitempty"`
}

// AccountResponse is the local key-value state of an account.
type AccountResponse struct {
	Address    common.Address  `json:"address"`
	Registered bool            `json:"registered"`
	LocalState types.KeyValues `json:"localState"`
}

// AppStateResponse is the global key-value state of the application.
type AppStateResponse struct {
	AppID       uint64          `json:"appId"`
	GlobalState types.KeyValues `json:"globalState"`
}
