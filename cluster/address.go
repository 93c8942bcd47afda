package cluster

import "github.com/vx-labs/grid/channel"

// Address identifies a cluster member. Addresses are comparable with ==.
type Address struct {
	native channel.Addr
}

func (a Address) String() string {
	if a.native == "" {
		return "<nil>"
	}
	return string(a.native)
}

// IsZero reports whether a is the zero Address.
func (a Address) IsZero() bool {
	return a.native == ""
}

// FromNative wraps a substrate address.
func FromNative(a channel.Addr) Address {
	return Address{native: a}
}

// ToNative unwraps a into its substrate address.
func ToNative(a Address) channel.Addr {
	return a.native
}

// ToNativeList translates a recipient list. A nil list stays nil, as it denotes a
// broadcast to the whole view.
func ToNativeList(list []Address) []channel.Addr {
	if list == nil {
		return nil
	}
	out := make([]channel.Addr, len(list))
	for idx := range list {
		out[idx] = list[idx].native
	}
	return out
}

// FromNativeList translates a substrate member list. The returned slice never aliases list.
func FromNativeList(list []channel.Addr) []Address {
	if len(list) == 0 {
		return []Address{}
	}
	out := make([]Address, len(list))
	for idx := range list {
		out[idx] = Address{native: list[idx]}
	}
	return out
}
