package fiscal

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/shopspring/decimal"
)

func init() {
	decimal.MarshalJSONWithoutQuotes = true
}

// Operations and events are persisted as JSONL: one JSON object per line,
// with a stable field order, so that files are human readable, diff well and
// identical inputs give byte identical outputs.

// maxLine is the longest line accepted by decoders.
const maxLine = 1 << 20

// decodeLines calls fn for every non blank line of r with its line number.
func decodeLines(r io.Reader, fn func(n int, line []byte) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)
	n := 0
	for scanner.Scan() {
		n++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if err := fn(n, line); err != nil {
			return fmt.Errorf("line %d: %w", n, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading from input: %w", err)
	}
	return nil
}

// DecodeOperations reads operations from a JSONL stream, in stream order.
func DecodeOperations(r io.Reader) ([]Operation, error) {
	var ops []Operation
	err := decodeLines(r, func(_ int, line []byte) error {
		var op Operation
		if err := json.Unmarshal(line, &op); err != nil {
			return err
		}
		ops = append(ops, op)
		return nil
	})
	return ops, err
}

// EncodeOperations writes operations as JSONL.
func EncodeOperations(w io.Writer, ops []Operation) error {
	return encodeLines(w, ops)
}

// DecodeEvents reads taxable events from a JSONL stream.
func DecodeEvents(r io.Reader) ([]TaxableEvent, error) {
	var events []TaxableEvent
	err := decodeLines(r, func(_ int, line []byte) error {
		var e TaxableEvent
		if err := json.Unmarshal(line, &e); err != nil {
			return err
		}
		events = append(events, e)
		return nil
	})
	return events, err
}

// EncodeEvents writes taxable events as JSONL.
func EncodeEvents(w io.Writer, events []TaxableEvent) error {
	return encodeLines(w, events)
}

func encodeLines[T any](w io.Writer, values []T) error {
	bw := bufio.NewWriter(w)
	for _, v := range values {
		line, err := json.Marshal(v)
		if err != nil {
			return err
		}
		bw.Write(line)
		bw.WriteByte('\n')
	}
	return bw.Flush()
}
