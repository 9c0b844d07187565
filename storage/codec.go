package storage

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/richinex/contactdb/model"
	"golang.org/x/text/encoding/unicode"
)

var wideEncoding = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// encodeVariant returns the kind tag and payload persisted for v.
// Numbers are little-endian, wide strings are UTF-16LE.
func encodeVariant(v model.Variant) (model.Kind, []byte, error) {
	switch v.Kind() {
	case model.KindByte:
		b, _ := v.AsByte()
		return model.KindByte, []byte{b}, nil
	case model.KindWord:
		w, _ := v.AsWord()
		return model.KindWord, binary.LittleEndian.AppendUint16(nil, w), nil
	case model.KindDWord:
		d, _ := v.AsDWord()
		return model.KindDWord, binary.LittleEndian.AppendUint32(nil, d), nil
	case model.KindASCII, model.KindBlob:
		b, _ := v.AsBytes()
		return v.Kind(), b, nil
	case model.KindUTF8:
		s, _ := v.AsString()
		return model.KindUTF8, []byte(s), nil
	case model.KindWide:
		s, _ := v.AsString()
		b, err := wideEncoding.NewEncoder().Bytes([]byte(s))
		if err != nil {
			return 0, nil, fmt.Errorf("failed to encode wide string: %w", err)
		}
		return model.KindWide, b, nil
	default:
		return 0, nil, fmt.Errorf("%w: cannot store %s variant", ErrInvalidValue, v.Kind())
	}
}

// decodeVariant reverses encodeVariant.
func decodeVariant(kind model.Kind, payload []byte) (model.Variant, error) {
	if !kind.Valid() || kind == model.KindNone {
		return model.None(), fmt.Errorf("%w: unknown kind %d", ErrCorrupt, byte(kind))
	}
	switch kind {
	case model.KindByte:
		if len(payload) != 1 {
			return model.None(), fmt.Errorf("%w: byte payload of %d bytes", ErrCorrupt, len(payload))
		}
		return model.Byte(payload[0]), nil
	case model.KindWord:
		if len(payload) != 2 {
			return model.None(), fmt.Errorf("%w: word payload of %d bytes", ErrCorrupt, len(payload))
		}
		return model.Word(binary.LittleEndian.Uint16(payload)), nil
	case model.KindDWord:
		if len(payload) != 4 {
			return model.None(), fmt.Errorf("%w: dword payload of %d bytes", ErrCorrupt, len(payload))
		}
		return model.DWord(binary.LittleEndian.Uint32(payload)), nil
	case model.KindASCII:
		return model.ASCIIBytes(payload), nil
	case model.KindBlob:
		return model.Blob(payload), nil
	case model.KindUTF8:
		return model.UTF8(string(payload)), nil
	case model.KindWide:
		if len(payload)%2 != 0 {
			return model.None(), fmt.Errorf("%w: odd wide payload of %d bytes", ErrCorrupt, len(payload))
		}
		b, err := wideEncoding.NewDecoder().Bytes(payload)
		if err != nil {
			return model.None(), fmt.Errorf("%w: wide payload: %v", ErrCorrupt, err)
		}
		return model.Wide(string(b)), nil
	default:
		return model.None(), fmt.Errorf("%w: unknown kind %d", ErrCorrupt, byte(kind))
	}
}

// packVariant prefixes the payload with its kind tag for key/value stores.
func packVariant(v model.Variant) ([]byte, error) {
	kind, payload, err := encodeVariant(v)
	if err != nil {
		return nil, err
	}
	return append([]byte{byte(kind)}, payload...), nil
}

func unpackVariant(b []byte) (model.Variant, error) {
	if len(b) == 0 {
		return model.None(), fmt.Errorf("%w: empty setting record", ErrCorrupt)
	}
	return decodeVariant(model.Kind(b[0]), b[1:])
}

// blobChecksum guards event payloads against silent corruption.
func blobChecksum(blob []byte) uint64 {
	return xxhash.Sum64(blob)
}

// eventRecord is the fixed-layout form of an event in key/value stores:
//
//	contact u32 | type u16 | flags u32 | timestamp i64 | checksum u64 |
//	module len u16 + bytes | sid len u16 + bytes | sid module len u16 + bytes |
//	blob len u32 + bytes
type eventRecord struct {
	contact model.ContactID
	// idModule namespaces event.ID in the id index.
	idModule string
	event    model.Event
}

const eventHeaderSize = 4 + 2 + 4 + 8 + 8

func encodeEvent(rec eventRecord) ([]byte, error) {
	ev := rec.event
	if len(ev.Module) > 0xFFFF || len(ev.ID) > 0xFFFF || len(rec.idModule) > 0xFFFF {
		return nil, fmt.Errorf("%w: event module or id too long", ErrInvalidValue)
	}
	buf := make([]byte, 0, eventHeaderSize+6+len(ev.Module)+len(ev.ID)+len(rec.idModule)+4+len(ev.Blob))
	buf = binary.BigEndian.AppendUint32(buf, uint32(rec.contact))
	buf = binary.BigEndian.AppendUint16(buf, uint16(ev.Type))
	buf = binary.BigEndian.AppendUint32(buf, uint32(ev.Flags))
	buf = binary.BigEndian.AppendUint64(buf, uint64(ev.Timestamp.Unix()))
	buf = binary.BigEndian.AppendUint64(buf, blobChecksum(ev.Blob))
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(ev.Module)))
	buf = append(buf, ev.Module...)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(ev.ID)))
	buf = append(buf, ev.ID...)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(rec.idModule)))
	buf = append(buf, rec.idModule...)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(ev.Blob)))
	buf = append(buf, ev.Blob...)
	return buf, nil
}

func decodeEvent(b []byte) (eventRecord, error) {
	var rec eventRecord
	if len(b) < eventHeaderSize {
		return rec, fmt.Errorf("%w: short event header", ErrCorrupt)
	}
	rec.contact = model.ContactID(binary.BigEndian.Uint32(b[0:4]))
	rec.event.Type = model.EventType(binary.BigEndian.Uint16(b[4:6]))
	rec.event.Flags = model.EventFlags(binary.BigEndian.Uint32(b[6:10]))
	rec.event.Timestamp = time.Unix(int64(binary.BigEndian.Uint64(b[10:18])), 0)
	sum := binary.BigEndian.Uint64(b[18:26])
	rest := b[eventHeaderSize:]

	module, rest, err := readField16(rest)
	if err != nil {
		return rec, err
	}
	sid, rest, err := readField16(rest)
	if err != nil {
		return rec, err
	}
	idModule, rest, err := readField16(rest)
	if err != nil {
		return rec, err
	}
	if len(rest) < 4 {
		return rec, fmt.Errorf("%w: short blob length", ErrCorrupt)
	}
	n := binary.BigEndian.Uint32(rest[:4])
	rest = rest[4:]
	if uint32(len(rest)) != n {
		return rec, fmt.Errorf("%w: blob length %d, have %d bytes", ErrCorrupt, n, len(rest))
	}
	if blobChecksum(rest) != sum {
		return rec, fmt.Errorf("%w: blob checksum mismatch", ErrCorrupt)
	}

	rec.event.Module = string(module)
	rec.event.ID = string(sid)
	rec.idModule = string(idModule)
	rec.event.Blob = append([]byte{}, rest...)
	return rec, nil
}

func readField16(b []byte) ([]byte, []byte, error) {
	if len(b) < 2 {
		return nil, nil, fmt.Errorf("%w: short field length", ErrCorrupt)
	}
	n := int(binary.BigEndian.Uint16(b[:2]))
	b = b[2:]
	if len(b) < n {
		return nil, nil, fmt.Errorf("%w: short field", ErrCorrupt)
	}
	return b[:n], b[n:], nil
}

// blobSizeFromRecord reads the blob length without decoding the record.
func blobSizeFromRecord(b []byte) int {
	if len(b) < eventHeaderSize {
		return -1
	}
	rest := b[eventHeaderSize:]
	for i := 0; i < 3; i++ {
		if len(rest) < 2 {
			return -1
		}
		n := int(binary.BigEndian.Uint16(rest[:2]))
		if len(rest) < 2+n {
			return -1
		}
		rest = rest[2+n:]
	}
	if len(rest) < 4 {
		return -1
	}
	return int(binary.BigEndian.Uint32(rest[:4]))
}

// idKey and contactKey encode handles as big-endian keys so bbolt cursors
// walk them in numeric order.
func idKey(id uint32) []byte {
	return binary.BigEndian.AppendUint32(nil, id)
}

func keyID(k []byte) uint32 {
	if len(k) != 4 {
		return 0
	}
	return binary.BigEndian.Uint32(k)
}
