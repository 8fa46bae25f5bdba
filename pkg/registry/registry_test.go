package registry

import (
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Naveen-6087/sui-tma/pkg/codec"
	"github.com/Naveen-6087/sui-tma/pkg/identity"
	"github.com/Naveen-6087/sui-tma/pkg/logger"
	"github.com/Naveen-6087/sui-tma/pkg/models"
)

const (
	testNow    = int64(1_700_000_000_000)
	testExpiry = testNow + 3_600_000 // one hour out
)

var (
	testOwner = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testPair  = codec.PairFingerprint("SUI/USDC")
)

type testEnv struct {
	reg     *Registry
	enclave *identity.Enclave
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	reg := New(&logger.EmptyLogger{})
	enclave, err := identity.GenerateEnclave()
	require.NoError(t, err)
	require.NoError(t, reg.RegisterEnclave(enclave.Address()))

	return &testEnv{reg: reg, enclave: enclave}
}

func (e *testEnv) createIntent(t *testing.T) string {
	t.Helper()

	id, err := e.reg.Create(testOwner, []byte("ciphertext"), models.PriceBelow,
		100*models.PriceScale, testPair, testExpiry, testNow)
	require.NoError(t, err)
	return id
}

func (e *testEnv) sign(t *testing.T, op models.EventOp, id string) []byte {
	t.Helper()

	sig, err := e.enclave.SignOp(op, id)
	require.NoError(t, err)
	return sig
}

func (e *testEnv) claim(t *testing.T, id string, nowMs int64) error {
	t.Helper()
	return e.reg.ClaimForExecution(id, e.sign(t, models.OpClaim, id), nowMs)
}

func TestCreateValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name    string
		payload []byte
		kind    models.TriggerKind
		expires int64
		wantErr error
	}{
		{name: "valid", payload: []byte("c"), kind: models.PriceBelow, expires: testExpiry},
		{name: "expiry in past", payload: []byte("c"), kind: models.PriceBelow, expires: testNow - 1, wantErr: ErrInvalidExpiry},
		{name: "expiry exactly now", payload: []byte("c"), kind: models.PriceBelow, expires: testNow, wantErr: ErrInvalidExpiry},
		{name: "invalid trigger", payload: []byte("c"), kind: models.TriggerKind(9), expires: testExpiry, wantErr: ErrInvalidTrigger},
		{name: "empty payload", payload: nil, kind: models.PriceAbove, expires: testExpiry, wantErr: ErrEmptyPayload},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			id, err := env.reg.Create(testOwner, tc.payload, tc.kind, 100, testPair, tc.expires, testNow)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, id)

			got, err := env.reg.Get(id, testNow)
			require.NoError(t, err)
			assert.Equal(t, models.StatusActive, got.Status)
			assert.Equal(t, testOwner, got.Owner)
		})
	}
}

func TestIDsAreUnique(t *testing.T) {
	env := newTestEnv(t)

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := env.createIntent(t)
		assert.False(t, seen[id], "intent id reused")
		seen[id] = true
	}
}

func TestCancel(t *testing.T) {
	stranger := common.HexToAddress("0x2222222222222222222222222222222222222222")

	tests := []struct {
		name    string
		caller  common.Address
		prepare func(t *testing.T, env *testEnv, id string)
		wantErr error
	}{
		{name: "owner cancels active", caller: testOwner},
		{name: "stranger cannot cancel", caller: stranger, wantErr: ErrNotOwner},
		{
			name:   "cannot cancel executing",
			caller: testOwner,
			prepare: func(t *testing.T, env *testEnv, id string) {
				require.NoError(t, env.claim(t, id, testNow))
			},
			wantErr: ErrInvalidState,
		},
		{
			name:   "cannot cancel twice",
			caller: testOwner,
			prepare: func(t *testing.T, env *testEnv, id string) {
				require.NoError(t, env.reg.Cancel(id, testOwner, testNow))
			},
			wantErr: ErrInvalidState,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			id := env.createIntent(t)
			before, err := env.reg.Get(id, testNow)
			require.NoError(t, err)

			if tc.prepare != nil {
				tc.prepare(t, env, id)
				before, err = env.reg.Get(id, testNow)
				require.NoError(t, err)
			}

			err = env.reg.Cancel(id, tc.caller, testNow)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				after, getErr := env.reg.Get(id, testNow)
				require.NoError(t, getErr)
				assert.Equal(t, before.Status, after.Status, "failed cancel must not mutate state")
				return
			}

			require.NoError(t, err)
			after, err := env.reg.Get(id, testNow)
			require.NoError(t, err)
			assert.Equal(t, models.StatusCancelled, after.Status)
		})
	}
}

func TestCancelUnknownIntent(t *testing.T) {
	env := newTestEnv(t)
	err := env.reg.Cancel("no-such-intent", testOwner, testNow)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClaimExclusivity(t *testing.T) {
	env := newTestEnv(t)
	id := env.createIntent(t)
	sig := env.sign(t, models.OpClaim, id)

	const attempts = 32
	var wg sync.WaitGroup
	results := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- env.reg.ClaimForExecution(id, sig, testNow)
		}()
	}
	wg.Wait()
	close(results)

	var succeeded, invalidState int
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		default:
			assert.ErrorIs(t, err, ErrInvalidState)
			invalidState++
		}
	}

	assert.Equal(t, 1, succeeded, "exactly one concurrent claim must win")
	assert.Equal(t, attempts-1, invalidState)
}

func TestClaimRequiresEnclaveSignature(t *testing.T) {
	env := newTestEnv(t)
	id := env.createIntent(t)

	rogue, err := identity.GenerateEnclave()
	require.NoError(t, err)
	rogueSig, err := rogue.SignOp(models.OpClaim, id)
	require.NoError(t, err)

	assert.ErrorIs(t, env.reg.ClaimForExecution(id, rogueSig, testNow), ErrUnauthorized)
	assert.ErrorIs(t, env.reg.ClaimForExecution(id, []byte("junk"), testNow), ErrUnauthorized)

	// Unauthorized callers learn nothing and change nothing.
	got, err := env.reg.Get(id, testNow)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, got.Status)
}

func TestClaimBeforeEnclaveRegistered(t *testing.T) {
	reg := New(&logger.EmptyLogger{})
	id, err := reg.Create(testOwner, []byte("c"), models.PriceBelow, 100, testPair, testExpiry, testNow)
	require.NoError(t, err)

	err = reg.ClaimForExecution(id, []byte("sig"), testNow)
	assert.ErrorIs(t, err, ErrNoEnclave)
}

func TestRegisterEnclaveOnce(t *testing.T) {
	env := newTestEnv(t)
	err := env.reg.RegisterEnclave(common.HexToAddress("0x3333333333333333333333333333333333333333"))
	assert.ErrorIs(t, err, ErrEnclaveRegistered)
}

func TestExpiredIntentCanNeverBeClaimed(t *testing.T) {
	env := newTestEnv(t)
	id := env.createIntent(t)

	// Even with the trigger condition satisfied, claiming past the deadline
	// must fail.
	afterExpiry := testExpiry + 1
	err := env.claim(t, id, afterExpiry)
	assert.ErrorIs(t, err, ErrExpired)

	got, err := env.reg.Get(id, afterExpiry)
	require.NoError(t, err)
	assert.Equal(t, models.StatusExpired, got.Status)

	// Recognized expiry excludes the intent from further claiming.
	err = env.claim(t, id, afterExpiry)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestLazyExpiryVisibleToReaders(t *testing.T) {
	env := newTestEnv(t)
	id := env.createIntent(t)

	got, err := env.reg.Get(id, testExpiry+1)
	require.NoError(t, err)
	assert.Equal(t, models.StatusExpired, got.Status, "readers recognize expiry without a write")

	assert.Empty(t, env.reg.ActiveByPair(testPair, testExpiry+1))
	assert.Empty(t, env.reg.ActivePairs(testExpiry+1))

	// Reads never mutate: before the deadline the intent is still active.
	got, err = env.reg.Get(id, testNow)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, got.Status)
}

func TestFinalizeSuccess(t *testing.T) {
	env := newTestEnv(t)
	id := env.createIntent(t)
	require.NoError(t, env.claim(t, id, testNow))

	sig := env.sign(t, models.OpFinalizeSuccess, id)
	err := env.reg.FinalizeSuccess(id, sig, 94_80000000, "0xdigest", testNow+500)
	require.NoError(t, err)

	got, err := env.reg.Get(id, testNow+500)
	require.NoError(t, err)
	assert.Equal(t, models.StatusExecuted, got.Status)
	assert.Equal(t, int64(94_80000000), got.ExecutedPrice)
	assert.Equal(t, "0xdigest", got.ExecutionReference)
	assert.Equal(t, testNow+500, got.ExecutedAt)
}

func TestFinalizeRequiresExecuting(t *testing.T) {
	env := newTestEnv(t)
	id := env.createIntent(t)

	err := env.reg.FinalizeSuccess(id, env.sign(t, models.OpFinalizeSuccess, id), 1, "ref", testNow)
	assert.ErrorIs(t, err, ErrInvalidState)

	err = env.reg.FinalizeFailure(id, env.sign(t, models.OpFinalizeFailure, id), "reason", testNow)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestFinalizeFailureCapturesReason(t *testing.T) {
	env := newTestEnv(t)
	id := env.createIntent(t)
	require.NoError(t, env.claim(t, id, testNow))

	// Drain events emitted so far.
	for len(env.reg.Events()) > 0 {
		<-env.reg.Events()
	}

	err := env.reg.FinalizeFailure(id, env.sign(t, models.OpFinalizeFailure, id), "venue rejected: no liquidity", testNow+200)
	require.NoError(t, err)

	got, err := env.reg.Get(id, testNow+200)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)

	ev := <-env.reg.Events()
	assert.Equal(t, models.OpFinalizeFailure, ev.Op)
	assert.Equal(t, "venue rejected: no liquidity", ev.Reason)

	// Failed is terminal: the intent never re-enters the active pool on its own.
	assert.Empty(t, env.reg.ActiveByPair(testPair, testNow+300))
	assert.ErrorIs(t, env.claim(t, id, testNow+300), ErrInvalidState)
}

func TestRecoverStuck(t *testing.T) {
	stuck := 5 * time.Minute
	env := newTestEnv(t)
	id := env.createIntent(t)
	require.NoError(t, env.claim(t, id, testNow))

	// Too early: the claim is still presumed live.
	err := env.reg.RecoverStuck(id, testNow+stuck.Milliseconds()-1, stuck)
	assert.ErrorIs(t, err, ErrNotStuck)

	// Past the threshold the intent returns to the eligible pool.
	recoverAt := testNow + stuck.Milliseconds()
	require.NoError(t, env.reg.RecoverStuck(id, recoverAt, stuck))

	got, err := env.reg.Get(id, recoverAt)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, got.Status)

	// And can be re-claimed and finalized normally.
	require.NoError(t, env.claim(t, id, recoverAt+1000))
	sig := env.sign(t, models.OpFinalizeSuccess, id)
	require.NoError(t, env.reg.FinalizeSuccess(id, sig, 99, "0xref", recoverAt+2000))
}

func TestRecoverStuckRequiresExecuting(t *testing.T) {
	env := newTestEnv(t)
	id := env.createIntent(t)

	err := env.reg.RecoverStuck(id, testNow+time.Hour.Milliseconds(), time.Minute)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestExecutingOlderThan(t *testing.T) {
	env := newTestEnv(t)
	id := env.createIntent(t)
	require.NoError(t, env.claim(t, id, testNow))

	assert.Empty(t, env.reg.ExecutingOlderThan(testNow+1, time.Minute))
	assert.Equal(t, []string{id}, env.reg.ExecutingOlderThan(testNow+time.Minute.Milliseconds(), time.Minute))
}

func TestNoIllegalTransitionsFromTerminalStates(t *testing.T) {
	env := newTestEnv(t)

	// Cancelled -> Executing is impossible.
	cancelled := env.createIntent(t)
	require.NoError(t, env.reg.Cancel(cancelled, testOwner, testNow))
	assert.ErrorIs(t, env.claim(t, cancelled, testNow), ErrInvalidState)

	// Executed -> anything is impossible.
	executed := env.createIntent(t)
	require.NoError(t, env.claim(t, executed, testNow))
	require.NoError(t, env.reg.FinalizeSuccess(executed, env.sign(t, models.OpFinalizeSuccess, executed), 1, "r", testNow))
	assert.ErrorIs(t, env.claim(t, executed, testNow), ErrInvalidState)
	assert.ErrorIs(t, env.reg.Cancel(executed, testOwner, testNow), ErrInvalidState)
	assert.ErrorIs(t, env.reg.RecoverStuck(executed, testNow+time.Hour.Milliseconds(), time.Minute), ErrInvalidState)
}

func TestStatsCounters(t *testing.T) {
	env := newTestEnv(t)

	a := env.createIntent(t)
	b := env.createIntent(t)
	c := env.createIntent(t)

	stats := env.reg.Stats()
	assert.Equal(t, int64(3), stats.TotalCreated)
	assert.Equal(t, int64(3), stats.ActiveCount)
	assert.Equal(t, int64(0), stats.ExecutedCount)

	require.NoError(t, env.reg.Cancel(a, testOwner, testNow))

	require.NoError(t, env.claim(t, b, testNow))
	require.NoError(t, env.reg.FinalizeSuccess(b, env.sign(t, models.OpFinalizeSuccess, b), 1, "r", testNow))

	require.NoError(t, env.claim(t, c, testNow))
	require.NoError(t, env.reg.FinalizeFailure(c, env.sign(t, models.OpFinalizeFailure, c), "boom", testNow))

	stats = env.reg.Stats()
	assert.Equal(t, int64(3), stats.TotalCreated)
	assert.Equal(t, int64(0), stats.ActiveCount)
	assert.Equal(t, int64(1), stats.ExecutedCount)
}

func TestListByOwner(t *testing.T) {
	env := newTestEnv(t)
	other := common.HexToAddress("0x4444444444444444444444444444444444444444")

	first := env.createIntent(t)
	second := env.createIntent(t)
	_, err := env.reg.Create(other, []byte("c"), models.PriceAbove, 1, testPair, testExpiry, testNow)
	require.NoError(t, err)

	mine := env.reg.ListByOwner(testOwner, testNow)
	require.Len(t, mine, 2)
	assert.Equal(t, first, mine[0].ID)
	assert.Equal(t, second, mine[1].ID)

	assert.Len(t, env.reg.ListByOwner(other, testNow), 1)
}

func TestPayloadIsWriteOnce(t *testing.T) {
	env := newTestEnv(t)
	id := env.createIntent(t)

	got, err := env.reg.Get(id, testNow)
	require.NoError(t, err)

	// Mutating the returned copy must not affect the stored record.
	got.EncryptedPayload[0] = 'X'

	again, err := env.reg.Get(id, testNow)
	require.NoError(t, err)
	assert.Equal(t, byte('c'), again.EncryptedPayload[0])
}

func TestEventEmissionPerTransition(t *testing.T) {
	env := newTestEnv(t)

	id := env.createIntent(t)
	require.NoError(t, env.claim(t, id, testNow))
	require.NoError(t, env.reg.FinalizeSuccess(id, env.sign(t, models.OpFinalizeSuccess, id), 42, "0xref", testNow))

	var ops []models.EventOp
	for len(env.reg.Events()) > 0 {
		ops = append(ops, (<-env.reg.Events()).Op)
	}
	assert.Equal(t, []models.EventOp{models.OpCreate, models.OpClaim, models.OpFinalizeSuccess}, ops)
}
