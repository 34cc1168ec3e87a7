package decode

const (
	// PPSTicks is one pulse-per-second period of the 10 MHz hardware clock
	PPSTicks = 10_000_000

	// DefaultUnwrapThreshold is the backward jump, in ticks, beyond which
	// the tracker treats an apparent regression as a counter wrap
	DefaultUnwrapThreshold = 1_000_000

	// MaxTimeTicks is the largest value of the 24-bit raw counter
	MaxTimeTicks = tickMask
)

// ClockUnwrapper converts the truncated 24-bit hardware tick counter
// into a monotonically non-decreasing 64-bit tick count.
//
// The 24-bit field overflows roughly once per second at 10 MHz; the
// 1-PPS discipline pulse resets it to near zero, which shows up as a
// large backward jump. The tracker reinterprets any backward jump
// larger than the threshold as "one more second elapsed" and adds one
// PPS period to the running offset.
//
// One instance tracks one clock domain. The hardware stream shares a
// single counter across all channels, so one unwrapper per decoding
// run is the expected usage; records must arrive in non-decreasing
// raw-time order for the wrap detection to hold.
type ClockUnwrapper struct {
	threshold uint64
	offset    uint64
	last      uint64
	hasLast   bool
}

// NewClockUnwrapper creates a tracker with the given backward-jump
// threshold in ticks. A threshold of 0 selects the default.
func NewClockUnwrapper(threshold uint64) *ClockUnwrapper {
	if threshold == 0 {
		threshold = DefaultUnwrapThreshold
	}
	return &ClockUnwrapper{threshold: threshold}
}

// Unwrap converts a raw 24-bit tick reading into the unwrapped 64-bit
// count. Must be called once per record, in arrival order.
func (c *ClockUnwrapper) Unwrap(timeTicks uint32) uint64 {
	candidate := uint64(timeTicks) + c.offset
	if c.hasLast && c.last > candidate && c.last-candidate > c.threshold {
		c.offset += PPSTicks
		candidate = uint64(timeTicks) + c.offset
	}
	c.last = candidate
	c.hasLast = true
	return candidate
}

// WrapOffset returns the accumulated wrap offset in ticks
func (c *ClockUnwrapper) WrapOffset() uint64 {
	return c.offset
}

// Reset clears the tracker state for a new decoding run
func (c *ClockUnwrapper) Reset() {
	c.offset = 0
	c.last = 0
	c.hasLast = false
}
