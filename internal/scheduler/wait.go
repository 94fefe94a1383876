package scheduler

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/biocore-hpc/seqjob/internal/constants"
	"github.com/biocore-hpc/seqjob/internal/events"
	"github.com/biocore-hpc/seqjob/internal/logging"
)

// StateMachine polls a Querier until every tracked job is terminal.
type StateMachine struct {
	querier Querier
	clock   Clock
	logger  *logging.Logger
}

// NewStateMachine creates a StateMachine. A nil clock means the wall clock.
func NewStateMachine(querier Querier, clock Clock, logger *logging.Logger) *StateMachine {
	if clock == nil {
		clock = RealClock{}
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &StateMachine{
		querier: querier,
		clock:   clock,
		logger:  logger.Named("wait"),
	}
}

// Wait polls ids every pollInterval and returns the first state map in
// which every reported state is terminal and every id is accounted for.
//
// An id is accounted for when it appears as a key or when at least one of
// its array elements ("{id}_{index}") does. onStatus is called for every
// key whose state differs from the previous poll. There is no timeout;
// only ctx cancellation ends a wait early.
func (m *StateMachine) Wait(ctx context.Context, ids []string, pollInterval time.Duration, onStatus events.StatusFunc) (map[string]State, error) {
	if pollInterval <= 0 {
		pollInterval = constants.DefaultPollInterval
	}

	previous := map[string]State{}
	for poll := 1; ; poll++ {
		states, err := m.querier.Query(ctx, ids)
		if err != nil {
			return nil, err
		}

		notifyChanges(previous, states, onStatus)
		previous = states

		if Done(ids, states) {
			m.logger.Debug().Strs("ids", ids).Int("polls", poll).Msg("All jobs terminal")
			return states, nil
		}

		m.logger.Debug().Strs("ids", ids).Int("poll", poll).
			Int("pending", countPending(states)).Msg("Jobs still active")

		if err := m.clock.Sleep(ctx, pollInterval); err != nil {
			return nil, err
		}
	}
}

// Done reports whether states is a final answer for ids.
func Done(ids []string, states map[string]State) bool {
	if len(states) == 0 {
		return false
	}
	for _, s := range states {
		if !s.IsTerminal() {
			return false
		}
	}
	for _, id := range ids {
		if !resolved(id, states) {
			return false
		}
	}
	return true
}

func resolved(id string, states map[string]State) bool {
	if _, ok := states[id]; ok {
		return true
	}
	prefix := id + "_"
	for key := range states {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}

func countPending(states map[string]State) int {
	n := 0
	for _, s := range states {
		if !s.IsTerminal() {
			n++
		}
	}
	return n
}

func notifyChanges(previous, current map[string]State, onStatus events.StatusFunc) {
	if onStatus == nil {
		return
	}
	keys := make([]string, 0, len(current))
	for k, s := range current {
		if previous[k] != s {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		onStatus(k, string(current[k]))
	}
}
