// Package token implements the engine's external token collaborator. The
// Vault is a Postgres-backed token account table used in deployments where
// the backing token lives alongside the ledger; MemVault backs the memory
// store provider.
package token

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrRejected is returned when a pull or push cannot move value, e.g. the
// payer's token balance is too low. The engine surfaces it as a transfer
// failure.
var ErrRejected = errors.New("token transfer rejected")

type Vault struct {
	db *pgxpool.Pool
}

func NewVault(db *pgxpool.Pool) *Vault {
	return &Vault{db: db}
}

// Pull moves amount out of the account's token balance into the engine.
// The conditional update makes the balance check and the debit one atomic
// statement.
func (v *Vault) Pull(ctx context.Context, from string, amount uint64) error {
	tag, err := v.db.Exec(ctx,
		`UPDATE token_accounts SET balance = balance - $2 WHERE account = $1 AND balance >= $2`,
		from, int64(amount))
	if err != nil {
		return fmt.Errorf("token pull: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRejected
	}
	return nil
}

// Push moves amount from the engine back to the account's token balance.
func (v *Vault) Push(ctx context.Context, to string, amount uint64) error {
	_, err := v.db.Exec(ctx,
		`INSERT INTO token_accounts (account, balance) VALUES ($1, $2)
		 ON CONFLICT (account) DO UPDATE SET balance = token_accounts.balance + EXCLUDED.balance`,
		to, int64(amount))
	if err != nil {
		return fmt.Errorf("token push: %w", err)
	}
	return nil
}

func (v *Vault) BalanceOf(ctx context.Context, account string) (uint64, error) {
	var balance int64
	err := v.db.QueryRow(ctx,
		`SELECT COALESCE((SELECT balance FROM token_accounts WHERE account = $1), 0)`,
		account).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("token balance: %w", err)
	}
	return uint64(balance), nil
}

// MemVault is the in-process token used with the memory store provider.
type MemVault struct {
	mu       sync.Mutex
	balances map[string]uint64
}

func NewMemVault() *MemVault {
	return &MemVault{balances: make(map[string]uint64)}
}

// Mint funds an account out of thin air; memory-mode bootstrap only.
func (v *MemVault) Mint(account string, amount uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.balances[account] += amount
}

func (v *MemVault) Pull(ctx context.Context, from string, amount uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.balances[from] < amount {
		return ErrRejected
	}
	v.balances[from] -= amount
	return nil
}

func (v *MemVault) Push(ctx context.Context, to string, amount uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.balances[to] += amount
	return nil
}

func (v *MemVault) BalanceOf(ctx context.Context, account string) (uint64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.balances[account], nil
}
