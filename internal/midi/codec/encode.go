package codec

import "fmt"

// Encode produces the minimal conformant wire byte sequence for msg. It
// never emits running status: every call is self-contained, which keeps
// Encode pure and lets callers freely interleave encoded frames from
// different sources without a shared cursor.
func Encode(msg Message) []byte {
	switch msg.Kind {
	case KindNote:
		status := statusNoteOn
		if !msg.NoteOn {
			status = statusNoteOff
		}
		return []byte{byte(status) | (msg.Channel & 0x0F), msg.Data1 & 0x7F, msg.Data2 & 0x7F}
	case KindPolyPressure:
		return []byte{statusPolyPressure | (msg.Channel & 0x0F), msg.Data1 & 0x7F, msg.Data2 & 0x7F}
	case KindCC:
		return []byte{statusCC | (msg.Channel & 0x0F), msg.Data1 & 0x7F, msg.Data2 & 0x7F}
	case KindProgramChange:
		return []byte{statusProgramChange | (msg.Channel & 0x0F), msg.Data1 & 0x7F}
	case KindChanPressure:
		return []byte{statusChanPressure | (msg.Channel & 0x0F), msg.Data1 & 0x7F}
	case KindPB:
		lsb, msb := SplitTo14(msg.Value14)
		return []byte{statusPB | (msg.Channel & 0x0F), lsb, msb}
	case KindSysEx:
		out := make([]byte, 0, len(msg.SysEx)+2)
		out = append(out, statusSysExStart)
		out = append(out, msg.SysEx...)
		out = append(out, statusSysExEnd)
		return out
	case KindRealtime:
		out := []byte{msg.Status}
		switch msg.Status {
		case 0xF1, 0xF3:
			out = append(out, msg.Data1&0x7F)
		case 0xF2:
			out = append(out, msg.Data1&0x7F, msg.Data2&0x7F)
		}
		return out
	default:
		return nil
	}
}

// FormatHex renders msg as its encoded wire bytes in "XX XX XX" hex form.
func FormatHex(msg Message) string {
	b := Encode(msg)
	s := make([]byte, 0, len(b)*3)
	for i, v := range b {
		if i > 0 {
			s = append(s, ' ')
		}
		s = append(s, []byte(fmt.Sprintf("%02X", v))...)
	}
	return string(s)
}

// String renders msg in a human-readable form, e.g. "PB ch=0 v=8192".
func (m Message) String() string {
	switch m.Kind {
	case KindNote:
		onoff := "off"
		if m.NoteOn {
			onoff = "on"
		}
		return fmt.Sprintf("Note%s ch=%d n=%d vel=%d", onoff, m.Channel, m.Data1, m.Data2)
	case KindPolyPressure:
		return fmt.Sprintf("PolyPressure ch=%d n=%d p=%d", m.Channel, m.Data1, m.Data2)
	case KindCC:
		return fmt.Sprintf("CC ch=%d cc=%d v=%d", m.Channel, m.Data1, m.Data2)
	case KindProgramChange:
		return fmt.Sprintf("ProgramChange ch=%d p=%d", m.Channel, m.Data1)
	case KindChanPressure:
		return fmt.Sprintf("ChanPressure ch=%d p=%d", m.Channel, m.Data1)
	case KindPB:
		return fmt.Sprintf("PB ch=%d v=%d", m.Channel, m.Value14)
	case KindSysEx:
		return fmt.Sprintf("SysEx len=%d", len(m.SysEx))
	case KindRealtime:
		return fmt.Sprintf("Realtime status=0x%02X", m.Status)
	default:
		return "Unknown"
	}
}
