package storage

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/sharpcoredb/core/internal/plan"
)

// rowByteOrder is the byte order for every multi-byte field a row
// encodes, matching the WAL and page codecs' choice (spec §6 is
// little-endian throughout).
var rowByteOrder = binary.LittleEndian

// EncodeRow serialises values into the compact self-describing binary
// format of spec §4.8: a per-table schema id followed by typed column
// values. Fixed-width types (int, real, bool, datetime) occupy a constant
// number of bytes; text is length-prefixed. A leading null bitmap (one
// bit per column, rounded up to a byte) lets any column hold SQL NULL
// without reserving a sentinel value in its domain.
func EncodeRow(schema plan.Schema, schemaID uint32, row plan.Row) ([]byte, error) {
	if len(row) != len(schema.Columns) {
		return nil, fmt.Errorf("storage: row has %d values, schema %q has %d columns", len(row), schema.Name, len(schema.Columns))
	}
	bitmapLen := (len(row) + 7) / 8
	buf := make([]byte, 4+bitmapLen)
	rowByteOrder.PutUint32(buf[0:4], schemaID)
	bitmap := buf[4 : 4+bitmapLen]

	for i, v := range row {
		if v.Kind == plan.KindNull {
			bitmap[i/8] |= 1 << uint(i%8)
			continue
		}
		col := schema.Columns[i]
		if v.Kind != col.Type {
			return nil, fmt.Errorf("storage: column %q expects %s, got %s", col.Name, col.Type, v.Kind)
		}
		switch v.Kind {
		case plan.KindInt:
			var b [8]byte
			rowByteOrder.PutUint64(b[:], uint64(v.Int))
			buf = append(buf, b[:]...)
		case plan.KindReal:
			var b [8]byte
			rowByteOrder.PutUint64(b[:], math.Float64bits(v.Real))
			buf = append(buf, b[:]...)
		case plan.KindBool:
			if v.Bool {
				buf = append(buf, 1)
			} else {
				buf = append(buf, 0)
			}
		case plan.KindDateTime:
			var b [8]byte
			rowByteOrder.PutUint64(b[:], uint64(v.Time.UTC().UnixNano()))
			buf = append(buf, b[:]...)
		case plan.KindText:
			var lb [4]byte
			text := []byte(v.Text)
			rowByteOrder.PutUint32(lb[:], uint32(len(text)))
			buf = append(buf, lb[:]...)
			buf = append(buf, text...)
		default:
			return nil, fmt.Errorf("storage: unknown value kind %d", v.Kind)
		}
	}
	return buf, nil
}

// DecodeRow parses a row previously produced by EncodeRow against schema,
// returning the values in schema column order. The schema id prefix is
// consumed but not validated here — callers that need to confirm it
// matches the table's current schema id do so themselves.
func DecodeRow(schema plan.Schema, buf []byte) (plan.Row, uint32, error) {
	bitmapLen := (len(schema.Columns) + 7) / 8
	if len(buf) < 4+bitmapLen {
		return nil, 0, fmt.Errorf("storage: row buffer too short for header")
	}
	schemaID := rowByteOrder.Uint32(buf[0:4])
	bitmap := buf[4 : 4+bitmapLen]
	off := 4 + bitmapLen

	row := make(plan.Row, len(schema.Columns))
	for i, col := range schema.Columns {
		if bitmap[i/8]&(1<<uint(i%8)) != 0 {
			row[i] = plan.Null()
			continue
		}
		switch col.Type {
		case plan.KindInt:
			if off+8 > len(buf) {
				return nil, 0, fmt.Errorf("storage: row buffer truncated at column %q", col.Name)
			}
			row[i] = plan.Int(int64(rowByteOrder.Uint64(buf[off : off+8])))
			off += 8
		case plan.KindReal:
			if off+8 > len(buf) {
				return nil, 0, fmt.Errorf("storage: row buffer truncated at column %q", col.Name)
			}
			row[i] = plan.Real(math.Float64frombits(rowByteOrder.Uint64(buf[off : off+8])))
			off += 8
		case plan.KindBool:
			if off+1 > len(buf) {
				return nil, 0, fmt.Errorf("storage: row buffer truncated at column %q", col.Name)
			}
			row[i] = plan.Bool(buf[off] != 0)
			off++
		case plan.KindDateTime:
			if off+8 > len(buf) {
				return nil, 0, fmt.Errorf("storage: row buffer truncated at column %q", col.Name)
			}
			nanos := int64(rowByteOrder.Uint64(buf[off : off+8]))
			row[i] = plan.DateTime(time.Unix(0, nanos).UTC())
			off += 8
		case plan.KindText:
			if off+4 > len(buf) {
				return nil, 0, fmt.Errorf("storage: row buffer truncated at column %q length", col.Name)
			}
			l := int(rowByteOrder.Uint32(buf[off : off+4]))
			off += 4
			if off+l > len(buf) {
				return nil, 0, fmt.Errorf("storage: row buffer truncated at column %q text", col.Name)
			}
			row[i] = plan.Text(string(buf[off : off+l]))
			off += l
		default:
			return nil, 0, fmt.Errorf("storage: schema column %q has unknown type", col.Name)
		}
	}
	return row, schemaID, nil
}
