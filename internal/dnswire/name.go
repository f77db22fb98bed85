package dnswire

import (
	"fmt"
	"strings"
)

type codecError struct {
	msg string
}

func (e *codecError) Error() string { return e.msg }

func errLabelTooLong(what string, got, max int) error {
	return &codecError{msg: fmt.Sprintf("dnswire: %s too long: %d bytes (max %d)", what, got, max)}
}

// splitName splits a presentation-format name on unescaped dots, honouring
// `\.` as an escaped literal dot inside a label, and drops the trailing
// empty label produced by an input's trailing dot (idempotent: "a.b." and
// "a.b" split the same way).
func splitName(name string) ([]string, error) {
	if name == "" || name == "." {
		return nil, nil
	}
	var labels []string
	var cur strings.Builder
	escaped := false
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case escaped:
			cur.WriteByte(c)
			escaped = false
		case c == '\\':
			escaped = true
		case c == '.':
			labels = append(labels, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	if cur.Len() > 0 {
		labels = append(labels, cur.String())
	}
	return labels, nil
}

// writeName lower-cases and emits each label, rejecting labels over 63
// bytes, and terminates with a zero byte. When the window's compression
// dictionary is enabled (EnableCompression), a repeated name suffix already
// written earlier in the message is replaced with a 2-byte pointer instead
// of being re-emitted.
func (w *Writer) writeName(name string) error {
	labels, err := splitName(name)
	if err != nil {
		return err
	}
	if len(labels) == 0 {
		w.Write(0)
		return nil
	}

	for i, label := range labels {
		if len(label) > 63 {
			return errLabelTooLong("label", len(label), 63)
		}
		if w.names != nil {
			suffix := strings.ToLower(strings.Join(labels[i:], "."))
			if pos, ok := w.names[suffix]; ok {
				w.WriteU16(uint16(pos) | 0xC000)
				return nil
			}
			if w.pos < 0x4000 {
				w.names[suffix] = w.pos
			}
		}
		lower := strings.ToLower(label)
		w.Write(byte(len(lower)))
		w.WriteRaw([]byte(lower))
	}
	w.Write(0)
	return nil
}
