package timeline

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/codebuildervaibhav/lecture-transcriber/internal/types"
)

// FormatTimestamp renders seconds as HH:MM:SS, flooring fractions. Hours are
// not wrapped at 24.
func FormatTimestamp(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	total := int64(math.Floor(seconds))
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total/60)%60, total%60)
}

// WriteTo writes the transcript in its persisted text form:
//
//	PART 0
//	00:00:03 first utterance
//	PART 1
//	00:15:01 next utterance
func (t Transcript) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	var n int64
	for _, b := range t.Blocks {
		c, err := bw.WriteString(b.Label + "\n")
		n += int64(c)
		if err != nil {
			return n, err
		}
		for _, l := range b.Lines {
			c, err := fmt.Fprintf(bw, "%s %s\n", FormatTimestamp(l.Timestamp), l.Text)
			n += int64(c)
			if err != nil {
				return n, err
			}
		}
	}
	return n, bw.Flush()
}

// Render returns the persisted text form
func (t Transcript) Render() []byte {
	var buf bytes.Buffer
	t.WriteTo(&buf)
	return buf.Bytes()
}

var (
	headerLine    = regexp.MustCompile(`^(PART|SLIDE) (\d+)$`)
	utteranceLine = regexp.MustCompile(`^(\d{2,}):([0-5]\d):([0-5]\d) (.*)$`)
)

// Parse reads a rendered transcript back into blocks. Blank lines are ignored.
func Parse(r io.Reader) (Transcript, error) {
	var t Transcript
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		if headerLine.MatchString(line) {
			t.Blocks = append(t.Blocks, Block{Label: line, Lines: []types.TranscriptLine{}})
			continue
		}

		m := utteranceLine.FindStringSubmatch(line)
		if m == nil {
			return Transcript{}, fmt.Errorf("line %d: unrecognized transcript line %q", lineNo, line)
		}
		if len(t.Blocks) == 0 {
			return Transcript{}, fmt.Errorf("line %d: utterance before first section header", lineNo)
		}
		h, _ := strconv.ParseInt(m[1], 10, 64)
		min, _ := strconv.ParseInt(m[2], 10, 64)
		sec, _ := strconv.ParseInt(m[3], 10, 64)

		last := &t.Blocks[len(t.Blocks)-1]
		last.Lines = append(last.Lines, types.TranscriptLine{
			Timestamp: float64(h*3600 + min*60 + sec),
			Text:      m[4],
		})
	}
	if err := scanner.Err(); err != nil {
		return Transcript{}, err
	}
	return t, nil
}
