package token

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"crowdfund/internal/domain"
	"crowdfund/internal/ledger"
)

// Memory is an in-process token with ERC-20 transfer rules. It backs local
// development and tests.
type Memory struct {
	mu         sync.Mutex
	custody    domain.Address
	balances   map[domain.Address]ledger.Amount
	allowances map[domain.Address]map[domain.Address]ledger.Amount
}

// NewMemory creates an empty token whose custody account is custody.
func NewMemory(custody domain.Address) *Memory {
	return &Memory{
		custody:    custody,
		balances:   make(map[domain.Address]ledger.Amount),
		allowances: make(map[domain.Address]map[domain.Address]ledger.Amount),
	}
}

func (m *Memory) Custody() domain.Address {
	return m.custody
}

// Mint credits amount to owner.
func (m *Memory) Mint(owner domain.Address, amount ledger.Amount) error {
	if domain.IsZeroAddress(owner) {
		return fmt.Errorf("%w: mint to zero address", domain.ErrTransferFailed)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	next, err := ledger.Add(m.balances[owner], amount)
	if err != nil {
		return err
	}
	m.balances[owner] = next
	return nil
}

// Approve sets the amount spender may pull from owner.
func (m *Memory) Approve(owner, spender domain.Address, amount ledger.Amount) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.allowances[owner] == nil {
		m.allowances[owner] = make(map[domain.Address]ledger.Amount)
	}
	m.allowances[owner][spender] = amount
}

// BalanceOf returns owner's balance.
func (m *Memory) BalanceOf(owner domain.Address) ledger.Amount {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[owner]
}

func (m *Memory) Allowance(_ context.Context, owner, spender domain.Address) (ledger.Amount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.allowances[owner][spender], nil
}

// TransferFrom moves amount from from to to, spending the custody account's
// allowance.
func (m *Memory) TransferFrom(ctx context.Context, from, to domain.Address, amount ledger.Amount) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, fmt.Errorf("%w: %v", domain.ErrTransferFailed, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := m.allowances[from][m.custody]
	if allowed.LessThan(amount) {
		return Receipt{}, fmt.Errorf("%w: insufficient allowance", domain.ErrTransferFailed)
	}
	if err := m.move(from, to, amount); err != nil {
		return Receipt{}, err
	}
	if spenders := m.allowances[from]; spenders != nil {
		remaining, _ := ledger.Sub(allowed, amount)
		spenders[m.custody] = remaining
	}
	return Receipt{Ref: uuid.NewString()}, nil
}

// Transfer moves amount out of the custody account.
func (m *Memory) Transfer(ctx context.Context, to domain.Address, amount ledger.Amount) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, fmt.Errorf("%w: %v", domain.ErrTransferFailed, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.move(m.custody, to, amount); err != nil {
		return Receipt{}, err
	}
	return Receipt{Ref: uuid.NewString()}, nil
}

func (m *Memory) move(from, to domain.Address, amount ledger.Amount) error {
	if domain.IsZeroAddress(to) {
		return fmt.Errorf("%w: transfer to zero address", domain.ErrTransferFailed)
	}
	balance := m.balances[from]
	if balance.LessThan(amount) {
		return fmt.Errorf("%w: insufficient balance", domain.ErrTransferFailed)
	}
	if from == to {
		return nil
	}
	credited, err := ledger.Add(m.balances[to], amount)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTransferFailed, err)
	}
	debited, _ := ledger.Sub(balance, amount)
	m.balances[from] = debited
	m.balances[to] = credited
	return nil
}

var _ Service = (*Memory)(nil)
