// Package finalizer implements the settlement finalization core: collecting
// switch reference data, validating an uploaded finalization report against
// it, computing balance adjustments, and driving the settlement through its
// lifecycle to SETTLED.
package finalizer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/switchdesk-settlements-console/internal/domain/currency"
	"github.com/switchdesk-settlements-console/internal/domain/finalize"
	"github.com/switchdesk-settlements-console/internal/domain/report"
	"github.com/switchdesk-settlements-console/internal/domain/settlement"
)

// NetDebitCapLimitType is the limit type the finalizer reconciles.
const NetDebitCapLimitType = "NET_DEBIT_CAP"

// Collector gathers and indexes the switch reference data one finalization
// attempt needs. It never mutates external state; any failed retrieval aborts
// the whole collection.
type Collector struct {
	ledger LedgerAPI
	pool   *ants.Pool
	logger *slog.Logger
}

// NewCollector builds a collector. The ants pool bounds how many
// per-participant fetches run at once; a nil pool makes the fetches
// sequential.
func NewCollector(logger *slog.Logger, ledgerAPI LedgerAPI, pool *ants.Pool) *Collector {
	return &Collector{
		ledger: ledgerAPI,
		pool:   pool,
		logger: logger,
	}
}

// Collect builds the indexed FinalizeData for one report/settlement pair. The
// participant list is fetched first because it parameterizes the
// per-participant limit and position fetches, which then fan out concurrently.
func (c *Collector) Collect(ctx context.Context, rpt *report.Report, stl *settlement.Settlement) (*finalize.Data, error) {
	participants, err := c.ledger.GetParticipants(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve participants: %w", err)
	}

	data := &finalize.Data{
		AccountsParticipants:          make(map[int64]finalize.AccountParticipant),
		ParticipantsAccounts:          make(map[string]map[currency.Code]map[settlement.AccountType]finalize.AccountParticipant),
		ParticipantsLimits:            make(map[string]map[currency.Code]finalize.Limit),
		AccountsPositions:             make(map[int64]finalize.Position),
		SettlementParticipantAccounts: make(map[int64]finalize.SettlementAccountContext),
	}

	for _, p := range participants {
		for _, a := range p.Accounts {
			ap := finalize.AccountParticipant{Participant: p, Account: a}
			data.AccountsParticipants[a.ID] = ap

			byCurrency, ok := data.ParticipantsAccounts[p.Name]
			if !ok {
				byCurrency = make(map[currency.Code]map[settlement.AccountType]finalize.AccountParticipant)
				data.ParticipantsAccounts[p.Name] = byCurrency
			}
			byType, ok := byCurrency[a.Currency]
			if !ok {
				byType = make(map[settlement.AccountType]finalize.AccountParticipant)
				byCurrency[a.Currency] = byType
			}
			// At most one account per participant, currency and type.
			byType[a.Type] = ap
		}
	}

	for _, p := range stl.Participants {
		for _, a := range p.Accounts {
			data.SettlementParticipantAccounts[a.ID] = finalize.SettlementAccountContext{
				Participant: p,
				Account:     a,
			}
		}
	}

	names := c.relevantParticipantNames(rpt, stl, data)
	if err := c.fetchParticipantDetails(ctx, names, data); err != nil {
		return nil, err
	}

	c.logger.Debug("Collected finalize data",
		"settlement_id", stl.ID,
		"participants", len(names),
		"accounts", len(data.AccountsParticipants),
		"positions", len(data.AccountsPositions),
	)
	return data, nil
}

// relevantParticipantNames resolves the participants actually touched by the
// report or the settlement. Account IDs that do not resolve are skipped here;
// the validation engine reports them.
func (c *Collector) relevantParticipantNames(rpt *report.Report, stl *settlement.Settlement, data *finalize.Data) []string {
	seen := make(map[string]bool)
	var names []string
	add := func(accountID int64) {
		ap, ok := data.AccountsParticipants[accountID]
		if !ok || seen[ap.Participant.Name] {
			return
		}
		seen[ap.Participant.Name] = true
		names = append(names, ap.Participant.Name)
	}

	for _, e := range rpt.Entries {
		add(e.PositionAccountID)
	}
	for _, pa := range stl.Accounts() {
		add(pa.Account.ID)
	}
	return names
}

// fetchParticipantDetails fans the per-participant limit and position fetches
// out through the worker pool and folds the results into data under a mutex.
func (c *Collector) fetchParticipantDetails(ctx context.Context, names []string, data *finalize.Data) error {
	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		firstErr error
	)

	fetch := func(name string) {
		defer wg.Done()

		limits, err := c.ledger.GetParticipantLimits(ctx, name)
		if err != nil {
			mu.Lock()
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to retrieve limits for participant %s: %w", name, err)
			}
			mu.Unlock()
			return
		}

		positions, err := c.ledger.GetParticipantPositions(ctx, name)
		if err != nil {
			mu.Lock()
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to retrieve positions for participant %s: %w", name, err)
			}
			mu.Unlock()
			return
		}

		mu.Lock()
		defer mu.Unlock()
		for _, l := range limits {
			if l.Type != NetDebitCapLimitType {
				continue
			}
			byCurrency, ok := data.ParticipantsLimits[name]
			if !ok {
				byCurrency = make(map[currency.Code]finalize.Limit)
				data.ParticipantsLimits[name] = byCurrency
			}
			byCurrency[l.Currency] = l
		}
		for _, p := range positions {
			data.AccountsPositions[p.AccountID] = p
		}
	}

	for _, name := range names {
		name := name
		wg.Add(1)
		if c.pool == nil {
			fetch(name)
			continue
		}
		if err := c.pool.Submit(func() { fetch(name) }); err != nil {
			wg.Done()
			return fmt.Errorf("failed to submit fetch for participant %s: %w", name, err)
		}
	}
	wg.Wait()

	return firstErr
}
