package registry

import "context"

// MockOracle is a test double for Oracle.
// All function fields must be set before the corresponding method is called.
type MockOracle struct {
	OwnerOfFn       func(ctx context.Context, tokenID uint64) (string, error)
	BalanceOfFn     func(ctx context.Context, owner string) (uint64, error)
	CurrentSupplyFn func(ctx context.Context) (uint64, error)
}

func (m *MockOracle) OwnerOf(ctx context.Context, tokenID uint64) (string, error) {
	return m.OwnerOfFn(ctx, tokenID)
}
func (m *MockOracle) BalanceOf(ctx context.Context, owner string) (uint64, error) {
	return m.BalanceOfFn(ctx, owner)
}
func (m *MockOracle) CurrentSupply(ctx context.Context) (uint64, error) {
	return m.CurrentSupplyFn(ctx)
}
