package journal

import (
	"encoding/binary"
	"hash/crc32"
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

var (
	prefixEntry = []byte("j/e/")
	keyMeta     = []byte("j/m")
)

func entryKey(seq uint64) []byte {
	k := make([]byte, len(prefixEntry)+8)
	copy(k, prefixEntry)
	binary.BigEndian.PutUint64(k[len(prefixEntry):], seq)
	return k
}

func seqFromKey(k []byte) (uint64, bool) {
	if len(k) != len(prefixEntry)+8 {
		return 0, false
	}
	return binary.BigEndian.Uint64(k[len(prefixEntry):]), true
}

func encodeFrame(header, payload []byte) []byte {
	out := make([]byte, 0, binary.MaxVarintLen64+len(header)+len(payload)+4)
	out = binary.AppendUvarint(out, uint64(len(header)))
	out = append(out, header...)
	out = append(out, payload...)
	crc := crc32.Update(0, castagnoli, header)
	crc = crc32.Update(crc, castagnoli, payload)
	return binary.BigEndian.AppendUint32(out, crc)
}

// decodeFrame returns copies of header and payload, or false when the frame
// is truncated or its checksum does not match.
func decodeFrame(b []byte) (header, payload []byte, ok bool) {
	if len(b) < 1+4 {
		return nil, nil, false
	}
	hlen, n := binary.Uvarint(b)
	if n <= 0 || uint64(len(b)) < uint64(n)+hlen+4 {
		return nil, nil, false
	}
	h := b[n : n+int(hlen)]
	p := b[n+int(hlen) : len(b)-4]
	crc := crc32.Update(0, castagnoli, h)
	crc = crc32.Update(crc, castagnoli, p)
	if crc != binary.BigEndian.Uint32(b[len(b)-4:]) {
		return nil, nil, false
	}
	return append([]byte(nil), h...), append([]byte(nil), p...), true
}

func encodeHeader(tsMillis int64, kind string) []byte {
	h := make([]byte, 8, 8+len(kind))
	binary.BigEndian.PutUint64(h, uint64(tsMillis))
	return append(h, kind...)
}

func decodeHeader(h []byte) (tsMillis int64, kind string) {
	if len(h) < 8 {
		return 0, ""
	}
	return int64(binary.BigEndian.Uint64(h[:8])), string(h[8:])
}
