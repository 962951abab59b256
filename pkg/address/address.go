// Package address hands out bind targets for deployed services.
package address

import (
	"net"
	"strconv"
)

const (
	DefaultHost     = "0.0.0.0"
	DefaultBasePort = 5000
)

// Address is a (host, port) bind target
type Address struct {
	Host string
	Port int
}

// String renders the address as "host:port"
func (a Address) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// Sequence is a lazy, infinite and non-restartable stream of addresses on a
// single host. Ports increase by one on every call to Next, starting at the
// base port. Addresses are never handed out twice.
//
// No upper bound is enforced; ports past 65535 are the caller's problem.
type Sequence struct {
	host string
	next int
}

// Allocate starts a new sequence at startPort
func Allocate(host string, startPort int) *Sequence {
	return &Sequence{
		host: host,
		next: startPort,
	}
}

// Next returns the next unused address
func (s *Sequence) Next() Address {
	addr := Address{Host: s.host, Port: s.next}
	s.next++
	return addr
}

// Take returns the next n addresses in allocation order
func (s *Sequence) Take(n int) []Address {
	if n <= 0 {
		return nil
	}
	addrs := make([]Address, 0, n)
	for i := 0; i < n; i++ {
		addrs = append(addrs, s.Next())
	}
	return addrs
}
