package dnswire

import "errors"

// UpdateBuilder assembles an RFC 2136 dynamic-update Message through
// chained operations. Zone section maps to Message.Question, the
// prerequisite section to Message.Answer, the update section to
// Message.Authority, following RFC 2136 §3's renaming of the four header
// counts (ZOCOUNT/PRCOUNT/UPCOUNT/ADCOUNT).
type UpdateBuilder struct {
	msg *Message
	err error
}

// NewUpdate starts a builder for an UPDATE message with the given
// transaction ID.
func NewUpdate(id uint16) *UpdateBuilder {
	return &UpdateBuilder{msg: &Message{ID: id, Flags: Flags{Opcode: OpcodeUpdate}}}
}

// Zone sets the single SOA question that names the zone being updated. A
// second call replaces the first; RFC 2136 allows exactly one zone entry.
func (b *UpdateBuilder) Zone(name string) *UpdateBuilder {
	b.msg.Question = []RR{Question(name, TypeSOA)}
	return b
}

// Present adds a "name is in use" prerequisite (RFC 2136 §2.4.4): type ANY,
// class ANY, empty RDATA.
func (b *UpdateBuilder) Present(name string) *UpdateBuilder {
	b.msg.Answer = append(b.msg.Answer, RR{Name: name, Type: TypeANY, Class: ClassANY, RDATA: ANYData{}})
	return b
}

// Absent adds a "name is not in use" prerequisite (RFC 2136 §2.4.5): class
// NONE, empty RDATA.
func (b *UpdateBuilder) Absent(name string) *UpdateBuilder {
	b.msg.Answer = append(b.msg.Answer, RR{Name: name, Type: TypeANY, Class: ClassNONE, RDATA: ANYData{}})
	return b
}

// Update appends rr to the update (authority) section. The caller sets
// Class to IN to add an RRset, or NONE/ANY to delete one, per RFC 2136
// §2.5.
func (b *UpdateBuilder) Update(rr RR) *UpdateBuilder {
	b.msg.Authority = append(b.msg.Authority, rr)
	return b
}

// Sign attaches a TSIG signer; Encode will append its MAC and bump ARCOUNT
// once the message body is otherwise complete. A nil signer is a no-op, so
// callers can pass an optionally-configured signer unconditionally.
func (b *UpdateBuilder) Sign(signer TSIGSigner) *UpdateBuilder {
	if signer != nil {
		b.msg.Signer = signer
	}
	return b
}

// Build validates and returns the assembled Message.
func (b *UpdateBuilder) Build() (*Message, error) {
	if b.err != nil {
		return nil, b.err
	}
	if len(b.msg.Question) != 1 {
		return nil, errors.New("dnswire: update message requires exactly one zone")
	}
	return b.msg, nil
}
