package decode

// Bit layout of the 64-bit packed word, bit 0 = least significant:
//
//	bit 63     no_data
//	bits 51-62 adc_x (12 bits)
//	bits 39-50 adc_gtop (12 bits)
//	bits 27-38 adc_gbot (12 bits)
//	bit 26     is_g_event
//	bits 2-25  time_ticks (24 bits)
//	bit 1      trg_g
//	bit 0      trg_x
const (
	adcMask  = 0xFFF
	tickMask = 0xFFFFFF
)

// Fields holds the values extracted from one packed word
type Fields struct {
	NoData    bool
	ADCX      uint16
	ADCGTop   uint16
	ADCGBot   uint16
	IsGEvent  bool
	TimeTicks uint32
	TrgG      bool
	TrgX      bool
}

// UnpackWord extracts the bit-packed fields from a subrecord word
func UnpackWord(word uint64) Fields {
	return Fields{
		NoData:    word>>63&0x1 == 1,
		ADCX:      uint16(word >> 51 & adcMask),
		ADCGTop:   uint16(word >> 39 & adcMask),
		ADCGBot:   uint16(word >> 27 & adcMask),
		IsGEvent:  word>>26&0x1 == 1,
		TimeTicks: uint32(word >> 2 & tickMask),
		TrgG:      word>>1&0x1 == 1,
		TrgX:      word&0x1 == 1,
	}
}

// PackWord assembles a word from fields. The inverse of UnpackWord,
// used by the simulator and by tests to build wire-exact records.
func PackWord(f Fields) uint64 {
	var word uint64
	if f.NoData {
		word |= 1 << 63
	}
	word |= uint64(f.ADCX&adcMask) << 51
	word |= uint64(f.ADCGTop&adcMask) << 39
	word |= uint64(f.ADCGBot&adcMask) << 27
	if f.IsGEvent {
		word |= 1 << 26
	}
	word |= uint64(f.TimeTicks&tickMask) << 2
	if f.TrgG {
		word |= 1 << 1
	}
	if f.TrgX {
		word |= 1
	}
	return word
}
