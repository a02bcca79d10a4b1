package state

import (
	"time"

	"github.com/evanofslack/dns-ip-sync/internal/reconcile"
)

// State is the ledger of the last completed cycle.
type State struct {
	Address   string                 `json:"address"`
	UpdatedAt int64                  `json:"updatedAt"`
	Records   map[string]RecordState `json:"records"`
}

type RecordState struct {
	Status    string `json:"status"`
	Zone      string `json:"zone,omitempty"`
	Label     string `json:"label,omitempty"`
	Data      string `json:"data,omitempty"`
	TTL       int    `json:"ttl,omitempty"`
	Error     string `json:"error,omitempty"`
	UpdatedAt int64  `json:"updatedAt"`
}

type addressState struct {
	Address   string `json:"address"`
	UpdatedAt int64  `json:"updatedAt"`
}

// FromResults records the outcome of a cycle. The data and ttl kept for
// each record are those it holds after the cycle.
func FromResults(addr string, results reconcile.Results, now time.Time) State {
	s := State{
		Address:   addr,
		UpdatedAt: now.Unix(),
		Records:   make(map[string]RecordState, len(results.Outcomes)),
	}
	for _, o := range results.Outcomes {
		rs := RecordState{
			Status:    string(o.Status),
			Zone:      o.Zone,
			Label:     o.Label,
			UpdatedAt: now.Unix(),
		}
		switch {
		case o.Status == reconcile.StatusUpdated && !o.DryRun:
			rs.Data, rs.TTL = o.NewData, o.NewTTL
		default:
			rs.Data, rs.TTL = o.OldData, o.OldTTL
		}
		if o.Err != nil {
			rs.Error = o.Err.Error()
		}
		s.Records[o.Name] = rs
	}
	return s
}
