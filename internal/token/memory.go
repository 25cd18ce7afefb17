package token

import (
	"context"
	"sync"

	"indexcover/pkg/domain"
)

// Memory is an in-process fungible token with ERC-20 transfer semantics.
// It backs local runs and the engine's own tests; production deployments
// point the port at a real token adapter instead.
type Memory struct {
	mu         sync.Mutex
	engine     domain.AccountID
	balances   map[domain.AccountID]uint64
	allowances map[domain.AccountID]map[domain.AccountID]uint64
}

// NewMemory creates an empty token ledger. Transfers out of escrow debit the
// engine account.
func NewMemory(engine domain.AccountID) *Memory {
	return &Memory{
		engine:     engine,
		balances:   make(map[domain.AccountID]uint64),
		allowances: make(map[domain.AccountID]map[domain.AccountID]uint64),
	}
}

// Mint credits an account. Test and development setup only.
func (m *Memory) Mint(account domain.AccountID, amount uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[account] += amount
}

// Approve sets the allowance owner grants to spender.
func (m *Memory) Approve(owner, spender domain.AccountID, amount uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.allowances[owner] == nil {
		m.allowances[owner] = make(map[domain.AccountID]uint64)
	}
	m.allowances[owner][spender] = amount
}

func (m *Memory) Transfer(_ context.Context, to domain.AccountID, amount uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.move(m.engine, to, amount)
}

func (m *Memory) TransferFrom(_ context.Context, from, to domain.AccountID, amount uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := m.allowances[from][m.engine]
	if allowed < amount {
		return ErrInsufficientAllowance
	}
	if err := m.move(from, to, amount); err != nil {
		return err
	}
	m.allowances[from][m.engine] = allowed - amount
	return nil
}

func (m *Memory) BalanceOf(_ context.Context, account domain.AccountID) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[account], nil
}

func (m *Memory) Allowance(_ context.Context, owner, spender domain.AccountID) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.allowances[owner][spender], nil
}

// move requires m.mu to be held.
func (m *Memory) move(from, to domain.AccountID, amount uint64) error {
	if m.balances[from] < amount {
		return ErrInsufficientBalance
	}
	m.balances[from] -= amount
	m.balances[to] += amount
	return nil
}
