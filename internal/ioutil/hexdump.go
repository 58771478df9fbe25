package ioutil

import (
	"fmt"
	"strings"
)

// RenderHexdump renders buf as a hexdump split into the given annotations.
// Annotations must be in ascending, non-overlapping order; violations and
// unannotated gaps are reported inline as ERROR lines rather than failing.
func RenderHexdump(annotations []Annotation, buf []byte) string {
	var s strings.Builder
	var pos int64
	for _, a := range annotations {
		if a.Hi <= a.Lo {
			continue
		}
		name := a.Name()
		lo, hi := a.Lo, a.Hi-1
		if lo < pos {
			fmt.Fprintf(&s, "- ERROR: out-of-order lo for %s\n", name)
		}
		if hi < pos {
			fmt.Fprintf(&s, "- ERROR: out-of-order hi for %s\n", name)
		}
		if lo > pos {
			fmt.Fprintf(&s, "- ERROR: unannotated (%d bytes)\n", lo-pos)
		}
		pos = hi + 1
		fmt.Fprintf(&s, "- %s (%d bytes):\n", name, a.Hi-a.Lo)
		if a.Hi > int64(len(buf)) {
			fmt.Fprintf(&s, "- ERROR: annotation past end of buffer\n")
			continue
		}
		dumpLines(&s, buf[lo:a.Hi], int(lo))
	}
	if pos < int64(len(buf)) {
		fmt.Fprintf(&s, "- ERROR: unannotated (%d bytes)\n", int64(len(buf))-pos)
	}
	return s.String()
}

func dumpLines(s *strings.Builder, bytes []byte, base int) {
	var prev []byte
	skipped, skipStart := 0, 0
	flushSkipped := func() {
		if skipped > 0 {
			fmt.Fprintf(s, "\t %08x | ... previous line repeated %d times\n", skipStart, skipped)
			skipped = 0
		}
	}
	for n := 0; n*16 < len(bytes); n++ {
		line := bytes[n*16 : min(len(bytes), (n+1)*16)]
		if len(line) == 16 && string(prev) == string(line) {
			if skipped == 0 {
				skipStart = base + n*16
			}
			skipped++
			continue
		}
		if len(line) == 16 {
			prev = line
		}
		flushSkipped()
		fmt.Fprintf(s, "\t %08x |", base+n*16)
		for g := 0; g < len(line); g += 4 {
			s.WriteString("  ")
			for _, b := range line[g:min(len(line), g+4)] {
				fmt.Fprintf(s, " %02x", b)
			}
		}
		for pad := 0; pad < 16-len(line); pad++ {
			s.WriteString("   ")
			if pad&3 == 3 {
				s.WriteString("  ")
			}
		}
		s.WriteString("   | ")
		for _, ch := range line {
			if ch > ' ' && ch < 0x7f {
				s.WriteByte(ch)
			} else {
				s.WriteByte('.')
			}
		}
		s.WriteByte('\n')
	}
	flushSkipped()
}
