package packet

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolSizeClasses(t *testing.T) {
	p := NewPool(4, 2)

	small := p.Take(SmallPacketMaxSize)
	assert.Equal(t, SizeSmall, small.SizeClass())
	assert.Equal(t, 4096, small.WritableBytes())
	assert.Equal(t, ReservedPrepend, small.PrependableBytes())
	small.Release()

	assert.Equal(t, SizeSmall, p.Take(4096).SizeClass())
	assert.Equal(t, SizeLarge, p.Take(4097).SizeClass())

	large := p.Take(SmallPacketMaxSize + 1)
	assert.Equal(t, SizeLarge, large.SizeClass())
	assert.GreaterOrEqual(t, large.WritableBytes(), LargeBufferInitialSize)

	huge := p.Take(1 << 20)
	assert.GreaterOrEqual(t, huge.WritableBytes(), 1<<20)
	assert.Equal(t, ReservedPrepend, huge.PrependableBytes())
}

func TestPoolResetOnPut(t *testing.T) {
	p := NewPool(4, 2)
	pkt := p.Take(10)
	pkt.SetCmd(9)
	pkt.Append([]byte("dirty"))
	pkt.Release()

	again := p.Take(10)
	assert.Same(t, pkt, again)
	assert.Equal(t, 0, again.ReadableBytes())
	assert.Equal(t, uint16(0), again.Cmd())
	assert.Equal(t, ReservedPrepend, again.PrependableBytes())
}

func TestPoolAccounting(t *testing.T) {
	p := NewPool(64, 8)
	const n = 32

	// warm the free lists so the measured round starts in steady state
	take := func() []*Packet {
		var out []*Packet
		for i := 0; i < n; i++ {
			size := 100
			if i%4 == 0 {
				size = 10000
			}
			out = append(out, p.Take(size))
		}
		return out
	}
	for _, pkt := range take() {
		pkt.Release()
	}

	smallBefore, largeBefore := p.SmallLen(), p.LargeLen()
	for _, pkt := range take() {
		pkt.Release()
	}
	assert.Equal(t, smallBefore, p.SmallLen())
	assert.Equal(t, largeBefore, p.LargeLen())

	st := p.Stats()
	assert.Equal(t, st.SmallTaken, st.SmallPut)
	assert.Equal(t, st.LargeTaken, st.LargePut)
	assert.Equal(t, uint64(0), st.LargeDiscarded)
}

func TestPoolDiscardsSurplusLarge(t *testing.T) {
	p := NewPool(4, 2)
	var pkts []*Packet
	for i := 0; i < 5; i++ {
		pkts = append(pkts, p.Take(SmallPacketMaxSize*2))
	}
	for _, pkt := range pkts {
		p.Put(pkt)
	}
	assert.Equal(t, 2, p.LargeLen())
	assert.Equal(t, uint64(3), p.Stats().LargeDiscarded)
}

func TestPoolForeignPacketDropped(t *testing.T) {
	a, b := NewPool(4, 2), NewPool(4, 2)
	pkt := a.Take(1)
	b.Put(pkt)
	assert.Equal(t, 0, b.SmallLen())
	assert.Equal(t, 0, a.SmallLen())
}

func TestPoolConcurrent(t *testing.T) {
	p := NewPool(128, 8)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				pkt := p.Take(64)
				pkt.Append([]byte{byte(i)})
				pkt.Release()
			}
		}()
	}
	wg.Wait()
	st := p.Stats()
	require.Equal(t, uint64(8000), st.SmallTaken)
	assert.Equal(t, st.SmallTaken, st.SmallPut)
	assert.LessOrEqual(t, p.SmallLen(), 128)
}
