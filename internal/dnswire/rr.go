package dnswire

// RR is a single resource record: name, type, class, TTL and optional typed
// RDATA. In the question section TTL and RDATA are absent (spec §3).
type RR struct {
	Name  string
	Type  RRType
	Class Class
	TTL   uint32
	RDATA RDATA
}

// Question builds a question-section RR (no TTL/RDATA).
func Question(name string, rtype RRType) RR {
	return RR{Name: name, Type: rtype, Class: ClassIN}
}

// read populates rr from r. When isQuestion is true, TTL and RDATA are not
// present on the wire and are left zero-valued.
func (rr *RR) read(r *Reader, isQuestion bool) {
	rr.Name = r.Name()
	rr.Type = RRType(r.U16())
	rr.Class = Class(r.U16())
	if isQuestion {
		return
	}
	rr.TTL = r.U32()
	rdlength := int(r.U16())
	rr.RDATA = decodeRDATA(rr.Type, r, rdlength)
}

// write serializes rr into w. The RDLENGTH field is back-filled from the
// actual number of bytes the RDATA encoder wrote (spec invariant: RDLENGTH
// equals the exact number of bytes written by the RDATA encoder).
func (rr *RR) write(w *Writer, isQuestion bool) error {
	if err := w.WriteName(rr.Name); err != nil {
		return err
	}
	w.WriteU16(uint16(rr.Type))
	w.WriteU16(uint16(rr.Class))
	if isQuestion {
		return nil
	}
	w.WriteU32(rr.TTL)

	lenWindow := w.Reserve(2)
	before := w.Offset()
	if rr.RDATA != nil {
		if err := rr.RDATA.encode(w); err != nil {
			return err
		}
	}
	rdlen := w.Offset() - before
	lenWindow.WriteU16(uint16(rdlen))
	return nil
}

// WireLen returns the header-only byte length of rr: 10 bytes (TYPE, CLASS,
// TTL, RDLENGTH) plus the encoded name length plus the encoded RDATA
// length, with every name written uncompressed. dnssig.VerifyMessage uses
// it to locate the trailing TSIG RR in a received message.
func (rr *RR) WireLen() int {
	scratch := NewWriter(make([]byte, MaxMessageSize))
	_ = rr.write(scratch, false)
	return scratch.Offset()
}
