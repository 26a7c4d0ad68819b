package packet

import (
	"sync/atomic"

	"github.com/lcx/commlib/log"
	"github.com/lcx/commlib/metrics"
)

const (
	// BufferInitialSize is the payload room of a small packet. The reserved
	// prepend comes on top of it.
	BufferInitialSize = 4096
	// SmallPacketMaxSize is the largest payload served from the small list.
	SmallPacketMaxSize = BufferInitialSize
	// LargeBufferInitialSize is the minimum payload room of a large packet.
	LargeBufferInitialSize = BufferInitialSize * 4

	DefaultSmallPoolCap = 8192
	DefaultLargePoolCap = 128
)

var (
	_smallDims = metrics.Dimension{"class": "small"}
	_largeDims = metrics.Dimension{"class": "large"}
)

// PoolStats counts pool traffic since creation.
type PoolStats struct {
	SmallTaken     uint64
	SmallPut       uint64
	SmallAllocated uint64
	LargeTaken     uint64
	LargePut       uint64
	LargeAllocated uint64
	LargeDiscarded uint64
}

// Pool keeps two bounded free lists of packets. Take and Put may be called
// from any goroutine; a packet must go back to the pool it was taken from.
type Pool struct {
	small chan *Packet
	large chan *Packet

	smallTaken, smallPut, smallAllocated atomic.Uint64

	largeTaken, largePut, largeAllocated, largeDiscarded atomic.Uint64
}

// NewPool creates a pool caching at most smallCap small and largeCap large
// packets.
func NewPool(smallCap, largeCap int) *Pool {
	if smallCap <= 0 {
		smallCap = DefaultSmallPoolCap
	}
	if largeCap <= 0 {
		largeCap = DefaultLargePoolCap
	}
	return &Pool{
		small: make(chan *Packet, smallCap),
		large: make(chan *Packet, largeCap),
	}
}

var _defaultPool atomic.Pointer[Pool]

func init() {
	_defaultPool.Store(NewPool(DefaultSmallPoolCap, DefaultLargePoolCap))
}

// DefaultPool returns the process pool.
func DefaultPool() *Pool {
	return _defaultPool.Load()
}

// SetDefaultPool replaces the process pool. Packets of the previous pool
// still go back to it.
func SetDefaultPool(p *Pool) {
	_defaultPool.Store(p)
}

// Take returns an empty packet with room for n payload bytes.
func Take(n int) *Packet {
	return DefaultPool().Take(n)
}

// Take returns an empty packet with room for n payload bytes: a small one
// when n fits SmallPacketMaxSize, a large one sized max(LargeBufferInitialSize, n)
// otherwise.
func (p *Pool) Take(n int) *Packet {
	if n <= SmallPacketMaxSize {
		p.smallTaken.Add(1)
		metrics.IncrCounterWithDimGroup("net.packet", "pool_take_total", 1, _smallDims)
		select {
		case pkt := <-p.small:
			return pkt
		default:
			p.smallAllocated.Add(1)
			return newPacket(SizeSmall, SmallPacketMaxSize, p)
		}
	}

	p.largeTaken.Add(1)
	metrics.IncrCounterWithDimGroup("net.packet", "pool_take_total", 1, _largeDims)
	size := max(LargeBufferInitialSize, n)
	select {
	case pkt := <-p.large:
		pkt.EnsureWritable(size)
		return pkt
	default:
		p.largeAllocated.Add(1)
		return newPacket(SizeLarge, size, p)
	}
}

// Put resets pkt and caches it. Surplus packets are left to the GC.
func (p *Pool) Put(pkt *Packet) {
	if pkt == nil {
		return
	}
	if pkt.pool != p {
		log.Error().Str("class", pkt.sizeClass.String()).Msg("packet returned to a foreign pool, dropped")
		return
	}
	pkt.reset()

	if pkt.sizeClass == SizeSmall {
		p.smallPut.Add(1)
		metrics.IncrCounterWithDimGroup("net.packet", "pool_put_total", 1, _smallDims)
		select {
		case p.small <- pkt:
		default:
		}
		return
	}

	p.largePut.Add(1)
	metrics.IncrCounterWithDimGroup("net.packet", "pool_put_total", 1, _largeDims)
	select {
	case p.large <- pkt:
	default:
		p.largeDiscarded.Add(1)
		metrics.IncrCounterWithGroup("net.packet", "pool_large_discarded_total", 1)
	}
}

// SmallLen returns the number of cached small packets.
func (p *Pool) SmallLen() int {
	return len(p.small)
}

// LargeLen returns the number of cached large packets.
func (p *Pool) LargeLen() int {
	return len(p.large)
}

// Stats returns the traffic counters.
func (p *Pool) Stats() PoolStats {
	return PoolStats{
		SmallTaken:     p.smallTaken.Load(),
		SmallPut:       p.smallPut.Load(),
		SmallAllocated: p.smallAllocated.Load(),
		LargeTaken:     p.largeTaken.Load(),
		LargePut:       p.largePut.Load(),
		LargeAllocated: p.largeAllocated.Load(),
		LargeDiscarded: p.largeDiscarded.Load(),
	}
}
