package coordinator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Naveen-6087/sui-tma/pkg/codec"
	"github.com/Naveen-6087/sui-tma/pkg/identity"
	"github.com/Naveen-6087/sui-tma/pkg/logger"
	"github.com/Naveen-6087/sui-tma/pkg/models"
	"github.com/Naveen-6087/sui-tma/pkg/registry"
	"github.com/Naveen-6087/sui-tma/pkg/seal"
	"github.com/Naveen-6087/sui-tma/pkg/venue"
)

const (
	testNow    = int64(1_700_000_000_000)
	testExpiry = testNow + 3_600_000
)

var testOwner = common.HexToAddress("0x1111111111111111111111111111111111111111")

// fakeGateway decrypts any envelope to a fixed plaintext.
type fakeGateway struct {
	plaintext []byte
	err       error
	calls     int
}

func (g *fakeGateway) Encrypt(_ context.Context, _ []byte, _ string) (*seal.Envelope, error) {
	panic("coordinator never encrypts")
}

func (g *fakeGateway) Decrypt(_ context.Context, _ *seal.Envelope, proof []byte) ([]byte, error) {
	g.calls++
	if len(proof) == 0 {
		return nil, seal.ErrUnauthorized
	}
	if g.err != nil {
		return nil, g.err
	}
	out := make([]byte, len(g.plaintext))
	copy(out, g.plaintext)
	return out, nil
}

// fakeVenue returns a scripted fill or error and records submissions.
type fakeVenue struct {
	fill        venue.Fill
	err         error
	submissions []models.OrderFields
	refPrices   []int64
}

func (v *fakeVenue) SubmitTrade(_ context.Context, order models.OrderFields, referencePrice int64) (venue.Fill, error) {
	v.submissions = append(v.submissions, order)
	v.refPrices = append(v.refPrices, referencePrice)
	if v.err != nil {
		return venue.Fill{}, v.err
	}
	return v.fill, nil
}

type fixture struct {
	reg     *registry.Registry
	enclave *identity.Enclave
	gateway *fakeGateway
	venue   *fakeVenue
	coord   *Coordinator
	nowMs   int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	reg := registry.New(&logger.EmptyLogger{})
	enclave, err := identity.GenerateEnclave()
	require.NoError(t, err)
	require.NoError(t, reg.RegisterEnclave(enclave.Address()))

	order := models.OrderFields{
		Pair:        "SUI/USDC",
		Side:        models.SideBuy,
		OrderType:   models.OrderMarket,
		Quantity:    10 * models.PriceScale,
		Leverage:    1,
		SlippageBps: 50,
		ExpiryMs:    testExpiry,
	}
	plaintext, err := codec.Encode(order)
	require.NoError(t, err)

	f := &fixture{
		reg:     reg,
		enclave: enclave,
		gateway: &fakeGateway{plaintext: plaintext},
		venue:   &fakeVenue{fill: venue.Fill{FilledPrice: 94_80000000, Reference: "0xdigest"}},
		nowMs:   testNow,
	}
	f.coord = New(reg, f.gateway, f.venue, enclave, nil, 1,
		5*time.Minute, time.Minute,
		BreakerConfig{Enabled: false}, &logger.EmptyLogger{})
	f.coord.now = func() int64 { return f.nowMs }
	return f
}

func (f *fixture) createCandidate(t *testing.T) models.Candidate {
	t.Helper()

	env := &seal.Envelope{
		Version:    1,
		Threshold:  2,
		Identity:   identity.PolicyIdentity(f.enclave.Address()),
		Ciphertext: make([]byte, 64),
	}
	payload, err := env.Marshal()
	require.NoError(t, err)

	id, err := f.reg.Create(testOwner, payload, models.PriceBelow,
		100*models.PriceScale, codec.PairFingerprint("SUI/USDC"), testExpiry, testNow)
	require.NoError(t, err)

	intent, err := f.reg.Get(id, testNow)
	require.NoError(t, err)
	return models.Candidate{Intent: intent, ObservedPrice: 95 * models.PriceScale}
}

func (f *fixture) status(t *testing.T, id string) models.Status {
	t.Helper()

	intent, err := f.reg.Get(id, f.nowMs)
	require.NoError(t, err)
	return intent.Status
}

func TestProcessExecutesCandidate(t *testing.T) {
	f := newFixture(t)
	candidate := f.createCandidate(t)

	f.coord.Process(context.Background(), candidate)

	intent, err := f.reg.Get(candidate.Intent.ID, f.nowMs)
	require.NoError(t, err)
	assert.Equal(t, models.StatusExecuted, intent.Status)
	assert.Equal(t, int64(94_80000000), intent.ExecutedPrice)
	assert.Equal(t, "0xdigest", intent.ExecutionReference)

	require.Len(t, f.venue.submissions, 1)
	assert.Equal(t, "SUI/USDC", f.venue.submissions[0].Pair)
	assert.Equal(t, candidate.Intent.TriggerValue, f.refPrice(t),
		"the trigger price anchors the slippage check")
}

func (f *fixture) refPrice(t *testing.T) int64 {
	t.Helper()
	require.NotEmpty(t, f.venue.refPrices)
	return f.venue.refPrices[0]
}

func TestProcessVenueFailureFinalizesFailed(t *testing.T) {
	f := newFixture(t)
	f.venue.err = errors.New("insufficient liquidity")
	candidate := f.createCandidate(t)

	f.coord.Process(context.Background(), candidate)

	assert.Equal(t, models.StatusFailed, f.status(t, candidate.Intent.ID))

	// The failure is terminal: no automatic retry, no silent return to Active.
	assert.Empty(t, f.reg.ActiveByPair(candidate.Intent.PairFingerprint, f.nowMs))
	history := drainEvents(f.reg)
	last := history[len(history)-1]
	assert.Equal(t, models.OpFinalizeFailure, last.Op)
	assert.Contains(t, last.Reason, "insufficient liquidity")
}

func TestProcessDecryptionFailureFinalizesFailed(t *testing.T) {
	f := newFixture(t)
	f.gateway.err = seal.ErrUnauthorized
	candidate := f.createCandidate(t)

	f.coord.Process(context.Background(), candidate)

	assert.Equal(t, models.StatusFailed, f.status(t, candidate.Intent.ID))
	assert.Empty(t, f.venue.submissions, "no submission without decrypted parameters")
}

func TestProcessCorruptPayloadFinalizesFailed(t *testing.T) {
	f := newFixture(t)
	candidate := f.createCandidate(t)
	candidate.Intent.EncryptedPayload = []byte("not an envelope")

	f.coord.Process(context.Background(), candidate)

	assert.Equal(t, models.StatusFailed, f.status(t, candidate.Intent.ID))
	assert.Zero(t, f.gateway.calls, "corrupt envelope rejected before contacting the service")
}

func TestProcessAbandonsLostRace(t *testing.T) {
	f := newFixture(t)
	candidate := f.createCandidate(t)

	// A competing executor claimed first.
	sig, err := f.enclave.SignOp(models.OpClaim, candidate.Intent.ID)
	require.NoError(t, err)
	require.NoError(t, f.reg.ClaimForExecution(candidate.Intent.ID, sig, testNow))

	f.coord.Process(context.Background(), candidate)

	// Abandoned silently: the competing claim still owns the intent.
	assert.Equal(t, models.StatusExecuting, f.status(t, candidate.Intent.ID))
	assert.Empty(t, f.venue.submissions)
}

func TestProcessAbandonsCancelledIntent(t *testing.T) {
	f := newFixture(t)
	candidate := f.createCandidate(t)

	require.NoError(t, f.reg.Cancel(candidate.Intent.ID, testOwner, testNow))

	f.coord.Process(context.Background(), candidate)

	assert.Equal(t, models.StatusCancelled, f.status(t, candidate.Intent.ID))
	assert.Empty(t, f.venue.submissions)
}

func TestRecoverySweepReturnsStuckIntent(t *testing.T) {
	f := newFixture(t)
	candidate := f.createCandidate(t)
	id := candidate.Intent.ID

	// Executor crashed between claim and finalize.
	sig, err := f.enclave.SignOp(models.OpClaim, id)
	require.NoError(t, err)
	require.NoError(t, f.reg.ClaimForExecution(id, sig, testNow))

	// Before the threshold the sweep leaves it alone.
	f.nowMs = testNow + (5 * time.Minute).Milliseconds() - 1
	f.coord.SweepOnce()
	assert.Equal(t, models.StatusExecuting, f.status(t, id))

	// Past the threshold it returns to the eligible pool.
	f.nowMs = testNow + (5 * time.Minute).Milliseconds()
	f.coord.SweepOnce()
	assert.Equal(t, models.StatusActive, f.status(t, id))

	// And completes normally on a later cycle.
	refreshed, err := f.reg.Get(id, f.nowMs)
	require.NoError(t, err)
	f.coord.Process(context.Background(), models.Candidate{Intent: refreshed, ObservedPrice: 95 * models.PriceScale})
	assert.Equal(t, models.StatusExecuted, f.status(t, id))
}

func TestCircuitBreakerPausesPair(t *testing.T) {
	f := newFixture(t)
	f.coord.breakerCfg = BreakerConfig{
		Enabled:      true,
		Threshold:    1,
		Window:       time.Minute,
		ResetTimeout: time.Hour,
	}
	f.venue.err = errors.New("venue down")

	first := f.createCandidate(t)
	f.coord.Process(context.Background(), first)
	assert.Equal(t, models.StatusFailed, f.status(t, first.Intent.ID))

	// Same pair, circuit now open: abandoned without even claiming.
	second := f.createCandidate(t)
	f.coord.Process(context.Background(), second)
	assert.Equal(t, models.StatusActive, f.status(t, second.Intent.ID))
	assert.Len(t, f.venue.submissions, 1)
}

func TestWorkerPoolDrainsCandidates(t *testing.T) {
	f := newFixture(t)
	candidates := make(chan models.Candidate, 4)
	f.coord.candidates = candidates
	f.coord.workers = 2

	first := f.createCandidate(t)
	second := f.createCandidate(t)
	candidates <- first
	candidates <- second

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.coord.Start(ctx)
		close(done)
	}()

	executed := func(id string) bool {
		intent, err := f.reg.Get(id, f.nowMs)
		return err == nil && intent.Status == models.StatusExecuted
	}
	require.Eventually(t, func() bool {
		return executed(first.Intent.ID) && executed(second.Intent.ID)
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

func drainEvents(reg *registry.Registry) []models.LifecycleEvent {
	var out []models.LifecycleEvent
	for {
		select {
		case ev := <-reg.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}
