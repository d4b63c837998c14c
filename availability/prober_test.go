package availability

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ruteri/encrypted-name-registry/interfaces"
	"github.com/ruteri/encrypted-name-registry/network"
	"github.com/ruteri/encrypted-name-registry/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func sessionWith(reg interfaces.OnchainRegistry) SessionSource {
	session := &interfaces.Session{ChainID: network.Sepolia().ChainID, Registry: reg}
	return func() *interfaces.Session { return session }
}

func newTestProber(reg interfaces.OnchainRegistry) *Prober {
	p := NewProber(sessionWith(reg), nil, nil)
	p.Debounce = 20 * time.Millisecond
	p.RetryInterval = time.Millisecond
	return p
}

func TestProbe_Verdicts(t *testing.T) {
	revert := &network.ProviderRPCError{Code: 3, Message: "execution reverted"}

	testCases := []struct {
		name    string
		handle  *big.Int
		err     error
		verdict interfaces.Verdict
	}{
		{"zero handle is available", big.NewInt(0), nil, interfaces.VerdictAvailable},
		{"missing handle is available", nil, nil, interfaces.VerdictAvailable},
		{"bound handle is taken", big.NewInt(0xcafe), nil, interfaces.VerdictTaken},
		{"read error is taken", nil, revert, interfaces.VerdictTaken},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			reg := new(registry.MockRegistry)
			reg.On("ResolveOwnerHandle", mock.Anything, "alice").Return(tc.handle, tc.err).Once()

			p := newTestProber(reg)
			assert.Equal(t, tc.verdict, p.Probe(context.Background(), "  alice "))
			assert.Equal(t, tc.verdict, p.Verdict("alice"))
			assert.Equal(t, interfaces.VerdictUnknown, p.Verdict("bob"))
			reg.AssertExpectations(t)
		})
	}
}

func TestProbe_TransientErrorIsRetried(t *testing.T) {
	reg := new(registry.MockRegistry)
	reg.On("ResolveOwnerHandle", mock.Anything, "alice").Return(nil, errors.New("connection refused")).Once()
	reg.On("ResolveOwnerHandle", mock.Anything, "alice").Return(big.NewInt(0), nil).Once()

	p := newTestProber(reg)
	assert.Equal(t, interfaces.VerdictAvailable, p.Probe(context.Background(), "alice"))
	reg.AssertNumberOfCalls(t, "ResolveOwnerHandle", 2)
}

func TestProbe_PersistentErrorIsTaken(t *testing.T) {
	reg := new(registry.MockRegistry)
	reg.On("ResolveOwnerHandle", mock.Anything, "bob").Return(nil, errors.New("connection refused"))

	p := newTestProber(reg)
	assert.Equal(t, interfaces.VerdictTaken, p.Probe(context.Background(), "bob"))
	reg.AssertNumberOfCalls(t, "ResolveOwnerHandle", int(DefaultRetries)+1)
}

func TestProbe_NoOpWithoutNameOrSession(t *testing.T) {
	reg := new(registry.MockRegistry)

	p := newTestProber(reg)
	assert.Equal(t, interfaces.VerdictUnknown, p.Probe(context.Background(), "   "))

	p = NewProber(nil, nil, nil)
	assert.Equal(t, interfaces.VerdictUnknown, p.Probe(context.Background(), "alice"))

	p.SetName("alice")
	time.Sleep(3 * p.Debounce)
	assert.Equal(t, interfaces.VerdictUnknown, p.Query().Verdict)

	reg.AssertNotCalled(t, "ResolveOwnerHandle", mock.Anything, mock.Anything)
}

func TestSetName_Debounces(t *testing.T) {
	reg := new(registry.MockRegistry)
	reg.On("ResolveOwnerHandle", mock.Anything, "alice").Return(big.NewInt(0), nil)

	p := newTestProber(reg)
	for _, prefix := range []string{"a", "al", "ali", "alic", "alice"} {
		p.SetName(prefix)
	}

	require.Eventually(t, func() bool {
		return p.Verdict("alice") == interfaces.VerdictAvailable
	}, time.Second, 5*time.Millisecond)
	reg.AssertNumberOfCalls(t, "ResolveOwnerHandle", 1)
}

func TestSetName_PublishesQueries(t *testing.T) {
	reg := new(registry.MockRegistry)
	reg.On("ResolveOwnerHandle", mock.Anything, "alice").Return(big.NewInt(1), nil)

	p := newTestProber(reg)
	queries := make(chan interfaces.DomainQuery, 8)
	sub := p.subscribeQueries(queries)
	defer sub.Unsubscribe()

	p.SetName("alice")

	var seen []interfaces.DomainQuery
	for len(seen) < 3 {
		select {
		case q := <-queries:
			seen = append(seen, q)
		case <-time.After(time.Second):
			t.Fatalf("only %d queries published", len(seen))
		}
	}
	assert.Equal(t, interfaces.DomainQuery{Name: "alice", Token: seen[0].Token}, seen[0])
	assert.True(t, seen[1].Checking)
	assert.Equal(t, interfaces.DomainQuery{Name: "alice", Verdict: interfaces.VerdictTaken, Token: seen[0].Token}, seen[2])
}

func TestSetName_PublishesInChangeOrder(t *testing.T) {
	p := NewProber(nil, nil, nil)
	queries := make(chan interfaces.DomainQuery, 256)
	sub := p.subscribeQueries(queries)
	defer sub.Unsubscribe()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 16; j++ {
				p.SetName(fmt.Sprintf("name-%d-%d", i, j))
			}
		}(i)
	}
	wg.Wait()

	require.Len(t, queries, 128)
	var last interfaces.DomainQuery
	for len(queries) > 0 {
		q := <-queries
		assert.Greater(t, q.Token, last.Token)
		last = q
	}
	assert.Equal(t, p.Query(), last)
}

// gatedRegistry holds lookups of gated names until released and ignores
// cancellation, so their answers arrive after newer ones.
type gatedRegistry struct {
	interfaces.OnchainRegistry

	handles  map[string]*big.Int
	gates    map[string]chan struct{}
	started  chan string
	finished chan string
}

func (g *gatedRegistry) ResolveOwnerHandle(ctx context.Context, name string) (*big.Int, error) {
	g.started <- name
	if gate, ok := g.gates[name]; ok {
		<-gate
	}
	defer func() { g.finished <- name }()
	return g.handles[name], nil
}

func newGatedRegistry() *gatedRegistry {
	return &gatedRegistry{
		handles:  map[string]*big.Int{"bob": big.NewInt(7), "alice": big.NewInt(0)},
		gates:    map[string]chan struct{}{"bob": make(chan struct{})},
		started:  make(chan string, 4),
		finished: make(chan string, 4),
	}
}

func TestSetName_StaleResultIsDiscarded(t *testing.T) {
	reg := newGatedRegistry()
	p := newTestProber(reg)

	p.SetName("bob")
	require.Equal(t, "bob", <-reg.started)

	p.SetName("alice")
	require.Equal(t, "alice", <-reg.started)
	require.Equal(t, "alice", <-reg.finished)
	require.Eventually(t, func() bool {
		return p.Verdict("alice") == interfaces.VerdictAvailable
	}, time.Second, 5*time.Millisecond)

	close(reg.gates["bob"])
	require.Equal(t, "bob", <-reg.finished)
	time.Sleep(20 * time.Millisecond)

	q := p.Query()
	assert.Equal(t, "alice", q.Name)
	assert.Equal(t, interfaces.VerdictAvailable, q.Verdict)
	assert.False(t, q.Checking)
}

func TestProbe_StaleSynchronousResultIsDiscarded(t *testing.T) {
	reg := newGatedRegistry()
	p := newTestProber(reg)

	done := make(chan interfaces.Verdict)
	go func() { done <- p.Probe(context.Background(), "bob") }()
	require.Equal(t, "bob", <-reg.started)

	assert.Equal(t, interfaces.VerdictAvailable, p.Probe(context.Background(), "alice"))
	<-reg.finished

	close(reg.gates["bob"])
	assert.Equal(t, interfaces.VerdictTaken, <-done)

	assert.Equal(t, "alice", p.Query().Name)
	assert.Equal(t, interfaces.VerdictAvailable, p.Verdict("alice"))
}

func TestReset(t *testing.T) {
	reg := new(registry.MockRegistry)
	reg.On("ResolveOwnerHandle", mock.Anything, "alice").Return(big.NewInt(0), nil)

	p := newTestProber(reg)
	p.Probe(context.Background(), "alice")
	before := p.Query().Token

	p.Reset()
	q := p.Query()
	assert.Empty(t, q.Name)
	assert.Equal(t, interfaces.VerdictUnknown, q.Verdict)
	assert.Greater(t, q.Token, before)
}
