package dnswire

// Flags decomposes the DNS header's second 16-bit word (spec §4.D):
// [qr:1][opcode:4][aa:1][tc:1][rd:1][ra:1][z:3][rcode:4].
type Flags struct {
	QR     bool
	Opcode Opcode
	AA     bool
	TC     bool
	RD     bool
	RA     bool
	Z      uint8 // 3 bits
	Rcode  Rcode
}

func (f Flags) encode() uint16 {
	var v uint16
	if f.QR {
		v |= 1 << 15
	}
	v |= uint16(f.Opcode&0x0F) << 11
	if f.AA {
		v |= 1 << 10
	}
	if f.TC {
		v |= 1 << 9
	}
	if f.RD {
		v |= 1 << 8
	}
	if f.RA {
		v |= 1 << 7
	}
	v |= uint16(f.Z&0x07) << 4
	v |= uint16(f.Rcode & 0x0F)
	return v
}

func decodeFlags(v uint16) Flags {
	return Flags{
		QR:     v&(1<<15) != 0,
		Opcode: Opcode((v >> 11) & 0x0F),
		AA:     v&(1<<10) != 0,
		TC:     v&(1<<9) != 0,
		RD:     v&(1<<8) != 0,
		RA:     v&(1<<7) != 0,
		Z:      uint8((v >> 4) & 0x07),
		Rcode:  Rcode(v & 0x0F),
	}
}

// TSIGSigner computes a TSIG RR over the already-serialized prior bytes of
// a message. Implemented by dnssig.Signer; kept as a narrow interface here
// so the wire codec does not import the signer package.
type TSIGSigner interface {
	Sign(requestID uint16, priorBytes []byte) (RR, error)
}

// Message is a complete DNS message: header, four RR sections, and an
// optional TSIG signer used only when writing an UPDATE (spec §3, §4.D).
type Message struct {
	ID         uint16
	Flags      Flags
	Question   []RR
	Answer     []RR
	Authority  []RR
	Additional []RR
	Signer     TSIGSigner
}

// NewMessage returns a zero-value Message with an explicit ID.
func NewMessage(id uint16) *Message {
	return &Message{ID: id}
}

// headerLen is the fixed 12-byte DNS header size.
const headerLen = 12

// DecodeMessage parses a complete wire-format DNS message.
func DecodeMessage(data []byte) *Message {
	r := NewReader(data)
	m := &Message{}
	m.ID = r.U16()
	m.Flags = decodeFlags(r.U16())
	qd := int(r.U16())
	an := int(r.U16())
	ns := int(r.U16())
	ar := int(r.U16())

	m.Question = make([]RR, 0, qd)
	for i := 0; i < qd; i++ {
		var rr RR
		rr.read(r, true)
		m.Question = append(m.Question, rr)
	}
	m.Answer = readSection(r, an)
	m.Authority = readSection(r, ns)
	m.Additional = readSection(r, ar)
	return m
}

func readSection(r *Reader, count int) []RR {
	out := make([]RR, 0, count)
	for i := 0; i < count; i++ {
		var rr RR
		rr.read(r, false)
		out = append(out, rr)
	}
	return out
}

// Encode serializes m to wire format. If a Signer is attached and the
// opcode is UPDATE, a TSIG RR is computed over the message bytes written so
// far, appended to the additional section, and ARCOUNT is incremented
// in-place on the already-written header (RFC 2845 §3.4.1, spec invariant:
// ARCOUNT == len(additional)+1 for a signed UPDATE).
func (m *Message) Encode() ([]byte, error) {
	w := NewWriter(make([]byte, MaxMessageSize))
	if err := m.encodeInto(w); err != nil {
		return nil, err
	}
	if w.Overflowed() {
		return nil, &codecError{msg: "dnswire: message exceeds the 65535-byte wire limit"}
	}
	out := make([]byte, w.Offset())
	copy(out, w.Buffer())
	return out, nil
}

func (m *Message) encodeInto(w *Writer) error {
	w.WriteU16(m.ID)
	w.WriteU16(m.Flags.encode())
	w.WriteU16(uint16(len(m.Question)))
	w.WriteU16(uint16(len(m.Answer)))
	w.WriteU16(uint16(len(m.Authority)))
	w.WriteU16(uint16(len(m.Additional)))

	for i := range m.Question {
		if err := m.Question[i].write(w, true); err != nil {
			return err
		}
	}
	for i := range m.Answer {
		if err := m.Answer[i].write(w, false); err != nil {
			return err
		}
	}
	for i := range m.Authority {
		if err := m.Authority[i].write(w, false); err != nil {
			return err
		}
	}
	for i := range m.Additional {
		if err := m.Additional[i].write(w, false); err != nil {
			return err
		}
	}

	if m.Signer != nil && m.Flags.Opcode == OpcodeUpdate {
		tsigRR, err := m.Signer.Sign(m.ID, w.Buffer())
		if err != nil {
			return err
		}
		if err := tsigRR.write(w, false); err != nil {
			return err
		}
		arcount := uint16(len(m.Additional) + 1)
		patchU16(w.buf, headerLen-2, arcount)
	}
	return nil
}

// patchU16 overwrites a big-endian uint16 already written at offset.
func patchU16(buf []byte, offset int, v uint16) {
	if offset+2 > len(buf) {
		return
	}
	buf[offset] = byte(v >> 8)
	buf[offset+1] = byte(v)
}
