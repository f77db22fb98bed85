package dnswire

import (
	"net"
	"strings"
)

// RDATA is the type-specific payload of a resource record. Concrete types
// below implement it; an unrecognized numeric type decodes into Opaque.
type RDATA interface {
	// Type returns the numeric RR type this value encodes as.
	Type() RRType
	// encode writes the RDATA body (not including RDLENGTH) into w.
	encode(w *Writer) error
}

// EDNSOption is a single (code, data) pair inside an OPT pseudo-RR.
type EDNSOption struct {
	Code uint16
	Data []byte
}

// A is the IPv4 address RDATA (type 1).
type A struct{ IP net.IP }

func (A) Type() RRType { return TypeA }
func (r A) encode(w *Writer) error {
	ip4 := r.IP.To4()
	if ip4 == nil {
		ip4 = net.IPv4zero.To4()
	}
	w.WriteRaw(ip4)
	return nil
}

// AAAA is the IPv6 address RDATA (type 28).
type AAAA struct{ IP net.IP }

func (AAAA) Type() RRType { return TypeAAAA }
func (r AAAA) encode(w *Writer) error {
	ip16 := r.IP.To16()
	if ip16 == nil {
		ip16 = net.IPv6zero
	}
	w.WriteRaw(ip16)
	return nil
}

// NameRDATA covers the single-name record types NS, CNAME, PTR and DNAME,
// which all share the "one domain name" wire shape.
type NameRDATA struct {
	RRType RRType
	Name   string
}

func (r NameRDATA) Type() RRType { return r.RRType }
func (r NameRDATA) encode(w *Writer) error {
	return w.WriteName(r.Name)
}

// SOA is the zone-authority RDATA (type 6).
type SOA struct {
	MName   string
	RName   string
	Serial  uint32
	Refresh uint32
	Retry   uint32
	Expire  uint32
	Minimum uint32
}

func (SOA) Type() RRType { return TypeSOA }
func (r SOA) encode(w *Writer) error {
	if err := w.WriteName(r.MName); err != nil {
		return err
	}
	if err := w.WriteName(r.RName); err != nil {
		return err
	}
	w.WriteU32(r.Serial)
	w.WriteU32(r.Refresh)
	w.WriteU32(r.Retry)
	w.WriteU32(r.Expire)
	w.WriteU32(r.Minimum)
	return nil
}

// MX is the mail-exchange RDATA (type 15).
type MX struct {
	Preference uint16
	Exchange   string
}

func (MX) Type() RRType { return TypeMX }
func (r MX) encode(w *Writer) error {
	w.WriteU16(r.Preference)
	return w.WriteName(r.Exchange)
}

// TXT is one or more character-strings concatenated (type 16).
type TXT struct {
	Strings []string
}

func (TXT) Type() RRType { return TypeTXT }
func (r TXT) encode(w *Writer) error {
	strs := r.Strings
	if len(strs) == 0 {
		strs = []string{""}
	}
	for _, s := range strs {
		if err := w.WriteCharString(s); err != nil {
			return err
		}
	}
	return nil
}

// Joined concatenates the TXT strings without the length framing, for
// callers that just want the text content.
func (r TXT) Joined() string { return strings.Join(r.Strings, "") }

// SRV is the service-location RDATA (type 33, RFC 2782).
type SRV struct {
	Priority uint16
	Weight   uint16
	Port     uint16
	Target   string
}

func (SRV) Type() RRType { return TypeSRV }
func (r SRV) encode(w *Writer) error {
	w.WriteU16(r.Priority)
	w.WriteU16(r.Weight)
	w.WriteU16(r.Port)
	return w.WriteName(r.Target)
}

// OPT is the EDNS(0) pseudo-RR body (type 41); this codec only encodes the
// option list, per the Non-goal on extended EDNS0 option semantics.
type OPT struct {
	Options []EDNSOption
}

func (OPT) Type() RRType { return TypeOPT }
func (r OPT) encode(w *Writer) error {
	for _, opt := range r.Options {
		w.WriteU16(opt.Code)
		w.WriteU16(uint16(len(opt.Data)))
		w.WriteRaw(opt.Data)
	}
	return nil
}

// TSIGData is the TSIG RR body (type 250, RFC 2845 §2.3).
type TSIGData struct {
	Algorithm  string
	TimeSigned uint64
	Fudge      uint16
	MAC        []byte
	OriginalID uint16
	Error      uint16
	Other      []byte
}

func (TSIGData) Type() RRType { return TypeTSIG }
func (r TSIGData) encode(w *Writer) error {
	if err := w.WriteName(r.Algorithm); err != nil {
		return err
	}
	w.WriteU48(r.TimeSigned)
	w.WriteU16(r.Fudge)
	w.WriteU16(uint16(len(r.MAC)))
	w.WriteRaw(r.MAC)
	w.WriteU16(r.OriginalID)
	w.WriteU16(r.Error)
	w.WriteU16(uint16(len(r.Other)))
	w.WriteRaw(r.Other)
	return nil
}

// ANYData is the empty RDATA used by RFC 2136 UPDATE to mean "delete name"
// (type 255).
type ANYData struct{}

func (ANYData) Type() RRType { return TypeANY }
func (ANYData) encode(*Writer) error { return nil }

// Opaque preserves an unrecognized RR type as a raw byte blob.
type Opaque struct {
	RRType RRType
	Data   []byte
}

func (r Opaque) Type() RRType { return r.RRType }
func (r Opaque) encode(w *Writer) error {
	w.WriteRaw(r.Data)
	return nil
}

// decodeRDATA dispatches on rtype and decodes exactly rdlength bytes from r
// (r must already be positioned at the start of the RDATA).
func decodeRDATA(rtype RRType, r *Reader, rdlength int) RDATA {
	body := r.Sub(rdlength)
	switch rtype {
	case TypeA:
		return A{IP: net.IP(body.Raw(4))}
	case TypeAAAA:
		return AAAA{IP: net.IP(body.Raw(16))}
	case TypeNS, TypeCNAME, TypePTR, TypeDNAME:
		return NameRDATA{RRType: rtype, Name: body.Name()}
	case TypeSOA:
		return SOA{
			MName:   body.Name(),
			RName:   body.Name(),
			Serial:  body.U32(),
			Refresh: body.U32(),
			Retry:   body.U32(),
			Expire:  body.U32(),
			Minimum: body.U32(),
		}
	case TypeMX:
		return MX{Preference: body.U16(), Exchange: body.Name()}
	case TypeTXT:
		return TXT{Strings: body.CharStrings(rdlength)}
	case TypeSRV:
		return SRV{
			Priority: body.U16(),
			Weight:   body.U16(),
			Port:     body.U16(),
			Target:   body.Name(),
		}
	case TypeOPT:
		var opts []EDNSOption
		for body.Remaining() >= 4 {
			code := body.U16()
			dataLen := int(body.U16())
			if dataLen > body.Remaining() {
				break
			}
			opts = append(opts, EDNSOption{Code: code, Data: body.Raw(dataLen)})
		}
		return OPT{Options: opts}
	case TypeTSIG:
		algo := body.Name()
		timeSigned := body.U48()
		fudge := body.U16()
		macLen := int(body.U16())
		mac := body.Raw(macLen)
		originalID := body.U16()
		errCode := body.U16()
		otherLen := int(body.U16())
		other := body.Raw(otherLen)
		return TSIGData{
			Algorithm:  algo,
			TimeSigned: timeSigned,
			Fudge:      fudge,
			MAC:        mac,
			OriginalID: originalID,
			Error:      errCode,
			Other:      other,
		}
	case TypeANY:
		return ANYData{}
	default:
		return Opaque{RRType: rtype, Data: body.Raw(rdlength)}
	}
}
